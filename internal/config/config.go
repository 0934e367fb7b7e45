// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Engine holds the scoring engine tunables. The original system tuned
// these differently across its several scoring reimplementations; this
// is the one canonical set, exposed as configuration rather than
// hard-coded so deployments can adjust sensitivity without a rebuild.
type Engine struct {
	// SigmoidScale controls how quickly the balance-to-score mapping
	// saturates: score = 100 / (1 + e^(-balance/scale)).
	SigmoidScale float64

	// MaxDepth bounds the recursive composer. Recursion past it returns
	// a neutral contribution, which is the cycle-safety mechanism.
	MaxDepth int

	// DepthDecay grows the per-depth discount: discount(d) = 1 + decay*d.
	// The default 1.0 reproduces the 1/(depth+1) attenuation law.
	DepthDecay float64

	// SimilarityThreshold is the pairwise similarity above which sibling
	// items are clustered as near-duplicates.
	SimilarityThreshold float64

	// IndirectLinkageBaseline is the default linkage strength for items
	// attached indirectly (direct attachment defaults to 1.0).
	IndirectLinkageBaseline float64

	// Damping blends newly computed and prior-iteration values in the
	// global propagator: v' = damping*computed + (1-damping)*prior.
	Damping float64

	// MaxIterations caps the global propagator.
	MaxIterations int

	// Epsilon is the propagator convergence threshold on the maximum
	// per-node score delta.
	Epsilon float64

	// NoveltyBoost and NoveltyHalfLife configure the time-decaying
	// premium for recently submitted arguments. Boost 0 disables it.
	NoveltyBoost    float64
	NoveltyHalfLife time.Duration
}

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings. DatabaseURL empty selects local mode: an
	// embedded SQLite file at SQLitePath instead of Postgres.
	DatabaseURL string
	SQLitePath  string

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Bootstrap API keys, one per role. Empty disables that role's key.
	AdminAPIKey  string
	EditorAPIKey string
	ReaderAPIKey string

	// Embedding provider settings for semantic similarity.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaURL           string
	OllamaModel         string

	// Qdrant near-duplicate candidate index (optional; empty disables).
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64

	// Rate limiting (in-process token bucket).
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// RecomputeDebounce coalesces bursts of invalidations per claim
	// before the background recompute runs.
	RecomputeDebounce time.Duration

	// PropagateInterval schedules the global fixed-point pass.
	// Zero disables the scheduled job (on-demand global mode still works).
	PropagateInterval time.Duration
	// PropagateTimeout bounds one scheduled pass on pathological graphs.
	PropagateTimeout time.Duration

	Engine Engine
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("REASONRANK_PORT", 8080),
		ReadTimeout:         envDuration("REASONRANK_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("REASONRANK_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		SQLitePath:          envStr("REASONRANK_SQLITE_PATH", "reasonrank.db"),
		JWTPrivateKeyPath:   envStr("REASONRANK_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("REASONRANK_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("REASONRANK_JWT_EXPIRATION", 24*time.Hour),
		AdminAPIKey:         envStr("REASONRANK_ADMIN_API_KEY", ""),
		EditorAPIKey:        envStr("REASONRANK_EDITOR_API_KEY", ""),
		ReaderAPIKey:        envStr("REASONRANK_READER_API_KEY", ""),
		EmbeddingProvider:   envStr("REASONRANK_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:      envStr("REASONRANK_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: envInt("REASONRANK_EMBEDDING_DIMENSIONS", 1024),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		QdrantURL:           envStr("QDRANT_URL", ""),
		QdrantAPIKey:        envStr("QDRANT_API_KEY", ""),
		QdrantCollection:    envStr("QDRANT_COLLECTION", "reasonrank_arguments"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "reasonrank"),
		LogLevel:            envStr("REASONRANK_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("REASONRANK_MAX_REQUEST_BODY_BYTES", 1*1024*1024)),
		RateLimitEnabled:    envBool("REASONRANK_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:        envFloat("REASONRANK_RATE_LIMIT_RPS", 10),
		RateLimitBurst:      envInt("REASONRANK_RATE_LIMIT_BURST", 30),
		RecomputeDebounce:   envDuration("REASONRANK_RECOMPUTE_DEBOUNCE", 250*time.Millisecond),
		PropagateInterval:   envDuration("REASONRANK_PROPAGATE_INTERVAL", 0),
		PropagateTimeout:    envDuration("REASONRANK_PROPAGATE_TIMEOUT", 2*time.Minute),
		Engine: Engine{
			SigmoidScale:            envFloat("REASONRANK_SIGMOID_SCALE", 40),
			MaxDepth:                envInt("REASONRANK_MAX_DEPTH", 5),
			DepthDecay:              envFloat("REASONRANK_DEPTH_DECAY", 1.0),
			SimilarityThreshold:     envFloat("REASONRANK_SIMILARITY_THRESHOLD", 0.85),
			IndirectLinkageBaseline: envFloat("REASONRANK_INDIRECT_LINKAGE", 0.75),
			Damping:                 envFloat("REASONRANK_DAMPING", 0.85),
			MaxIterations:           envInt("REASONRANK_MAX_ITERATIONS", 50),
			Epsilon:                 envFloat("REASONRANK_EPSILON", 1e-4),
			NoveltyBoost:            envFloat("REASONRANK_NOVELTY_BOOST", 0),
			NoveltyHalfLife:         envDuration("REASONRANK_NOVELTY_HALF_LIFE", 72*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and the engine
// tunables are inside their legal ranges.
func (c Config) Validate() error {
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		return fmt.Errorf("config: DATABASE_URL or REASONRANK_SQLITE_PATH is required")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: REASONRANK_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: REASONRANK_EMBEDDING_DIMENSIONS must be positive")
	}
	return c.Engine.Validate()
}

// Validate checks the engine tunables.
func (e Engine) Validate() error {
	if e.SigmoidScale <= 0 {
		return fmt.Errorf("config: REASONRANK_SIGMOID_SCALE must be positive")
	}
	if e.MaxDepth < 1 {
		return fmt.Errorf("config: REASONRANK_MAX_DEPTH must be at least 1")
	}
	if e.DepthDecay < 0 {
		return fmt.Errorf("config: REASONRANK_DEPTH_DECAY must not be negative")
	}
	if e.SimilarityThreshold <= 0 || e.SimilarityThreshold > 1 {
		return fmt.Errorf("config: REASONRANK_SIMILARITY_THRESHOLD must be in (0,1]")
	}
	if e.IndirectLinkageBaseline < -1 || e.IndirectLinkageBaseline > 1 {
		return fmt.Errorf("config: REASONRANK_INDIRECT_LINKAGE must be in [-1,1]")
	}
	if e.Damping <= 0 || e.Damping > 1 {
		return fmt.Errorf("config: REASONRANK_DAMPING must be in (0,1]")
	}
	if e.MaxIterations < 1 {
		return fmt.Errorf("config: REASONRANK_MAX_ITERATIONS must be at least 1")
	}
	if e.Epsilon <= 0 {
		return fmt.Errorf("config: REASONRANK_EPSILON must be positive")
	}
	if e.NoveltyBoost < 0 {
		return fmt.Errorf("config: REASONRANK_NOVELTY_BOOST must not be negative")
	}
	return nil
}

// DefaultEngine returns the canonical engine tunables, for tests and
// embedded use without environment lookups.
func DefaultEngine() Engine {
	return Engine{
		SigmoidScale:            40,
		MaxDepth:                5,
		DepthDecay:              1.0,
		SimilarityThreshold:     0.85,
		IndirectLinkageBaseline: 0.75,
		Damping:                 0.85,
		MaxIterations:           50,
		Epsilon:                 1e-4,
		NoveltyBoost:            0,
		NoveltyHalfLife:         72 * time.Hour,
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
