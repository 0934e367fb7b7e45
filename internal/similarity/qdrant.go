package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
)

// Neighbor is one near-duplicate candidate from the index.
type Neighbor struct {
	ID    uuid.UUID
	Score float64
}

// CandidateIndex narrows the pairwise comparison set for large sibling
// lists. The uniqueness resolver is quadratic in the number of items on
// one side of one claim; above a cutoff it asks the index for each
// item's nearest neighbors instead of comparing every pair.
// Implementations must be safe for concurrent use.
type CandidateIndex interface {
	// Upsert stores or refreshes items (with embeddings) in the index.
	Upsert(ctx context.Context, items []Item) error

	// Neighbors returns the closest items to the given one, excluding
	// itself, ordered by descending similarity.
	Neighbors(ctx context.Context, item Item, limit int) ([]Neighbor, error)

	// Healthy returns nil if the index is reachable.
	Healthy(ctx context.Context) error
}

// NoopIndex is the disabled index: no candidates, always healthy.
// With it in place the resolver compares all pairs.
type NoopIndex struct{}

// Upsert implements CandidateIndex.
func (NoopIndex) Upsert(context.Context, []Item) error { return nil }

// Neighbors implements CandidateIndex.
func (NoopIndex) Neighbors(context.Context, Item, int) ([]Neighbor, error) { return nil, nil }

// Healthy implements CandidateIndex.
func (NoopIndex) Healthy(context.Context) error { return nil }

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantIndex implements CandidateIndex backed by a Qdrant collection of
// argument/evidence statement embeddings.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error; inner error may be nil
	healthAt    atomic.Int64 // unix nanos of last check
}

const healthCacheTTL = 15 * time.Second

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// The go client speaks gRPC, so the REST port 6333 is mapped to 6334.
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("similarity: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("similarity: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity: connect to qdrant at %s:%d: %w", host, port, err)
	}

	q := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("similarity: check collection exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dims,
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("similarity: create collection %q: %w", q.collection, err)
	}
	q.logger.Info("qdrant: created collection", "collection", q.collection, "dims", q.dims)
	return nil
}

// Upsert implements CandidateIndex. Items without embeddings are skipped.
func (q *QdrantIndex) Upsert(ctx context.Context, items []Item) error {
	points := make([]*qdrant.PointStruct, 0, len(items))
	for _, it := range items {
		if len(it.Embedding) == 0 {
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(it.ID.String()),
			Vectors: qdrant.NewVectorsDense(it.Embedding),
		})
	}
	if len(points) == 0 {
		return nil
	}

	wait := true
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("similarity: qdrant upsert: %w", err)
	}
	return nil
}

// Neighbors implements CandidateIndex.
func (q *QdrantIndex) Neighbors(ctx context.Context, item Item, limit int) ([]Neighbor, error) {
	if len(item.Embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	// Over-fetch by 1 to absorb removal of the item itself.
	fetchLimit := uint64(limit + 1) //nolint:gosec
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(item.Embedding),
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("similarity: qdrant neighbors: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(scored))
	for _, p := range scored {
		id, err := uuid.Parse(p.GetId().GetUuid())
		if err != nil || id == item.ID {
			continue
		}
		neighbors = append(neighbors, Neighbor{ID: id, Score: float64(p.GetScore())})
		if len(neighbors) == limit {
			break
		}
	}
	return neighbors, nil
}

// Healthy implements CandidateIndex. Results are cached briefly and
// concurrent probes are collapsed through singleflight so a slow or
// down Qdrant doesn't stack up health checks.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < healthCacheTTL {
		if v := q.healthErr.Load(); v != nil {
			if errp := v.(*error); *errp != nil {
				return *errp
			}
			return nil
		}
	}

	result, err, _ := q.healthGroup.Do("health", func() (any, error) {
		_, err := q.client.HealthCheck(ctx)
		q.healthErr.Store(&err)
		q.healthAt.Store(time.Now().UnixNano())
		return nil, err
	})
	_ = result
	if err != nil {
		return fmt.Errorf("similarity: qdrant health: %w", err)
	}
	return nil
}
