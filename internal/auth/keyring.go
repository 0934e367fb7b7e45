package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashAPIKey hashes an API key using Argon2id.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyAPIKey checks an API key against an Argon2id hash.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("auth: invalid hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	expected, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	computed := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(expected, computed) == 1, nil
}

// dummyVerify performs an Argon2id hash with the same cost parameters as
// real verification, so response timing does not reveal whether any key is
// configured for a role.
func dummyVerify() {
	argon2.IDKey([]byte("dummy"), make([]byte, saltLen), argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Keyring maps bootstrap API keys to roles. Keys are hashed at
// construction so the plaintext does not linger in memory beyond startup.
type Keyring struct {
	hashes map[Role]string
}

// NewKeyring hashes the configured per-role keys. Empty keys disable the
// role.
func NewKeyring(adminKey, editorKey, readerKey string) (*Keyring, error) {
	kr := &Keyring{hashes: make(map[Role]string, 3)}
	for role, key := range map[Role]string{
		RoleAdmin:  adminKey,
		RoleEditor: editorKey,
		RoleReader: readerKey,
	} {
		if key == "" {
			continue
		}
		h, err := HashAPIKey(key)
		if err != nil {
			return nil, fmt.Errorf("auth: hash %s key: %w", role, err)
		}
		kr.hashes[role] = h
	}
	return kr, nil
}

// Empty reports whether no keys are configured at all.
func (kr *Keyring) Empty() bool { return len(kr.hashes) == 0 }

// Resolve returns the role for an API key, checking admin first so a key
// accidentally reused across roles grants its highest level. Returns false
// with flat timing when nothing matches.
func (kr *Keyring) Resolve(apiKey string) (Role, bool) {
	checked := false
	for _, role := range []Role{RoleAdmin, RoleEditor, RoleReader} {
		encoded, ok := kr.hashes[role]
		if !ok {
			continue
		}
		checked = true
		if match, err := VerifyAPIKey(apiKey, encoded); err == nil && match {
			return role, true
		}
	}
	if !checked {
		dummyVerify()
	}
	return "", false
}
