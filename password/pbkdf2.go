package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	algorithmID          = "pbkdf2"
	minIterations        = 100_000
	minSaltLength        = 16
	minKeyLength         = 16
	defaultMaxIterations = 5_000_000
)

// ErrMalformedHash is returned by Verify and NeedsUpgrade when the stored hash
// cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// Config controls key derivation parameters for newly created hashes.
type Config struct {
	Iterations int
	SaltLength int
	KeyLength  int
	// MaxIterations bounds the work a stored hash can demand during Verify.
	// Zero selects a built-in ceiling.
	MaxIterations int
}

// DefaultConfig returns the parameters used when none are configured:
// 100,000 iterations, a 16-byte salt and a 256-bit derived key.
func DefaultConfig() Config {
	return Config{
		Iterations: minIterations,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// PBKDF2 hashes and verifies passwords with PBKDF2 over SHA-256.
//
// A PBKDF2 value is immutable after construction and safe for concurrent use.
type PBKDF2 struct {
	config Config
}

type parsedHash struct {
	iterations int
	salt       []byte
	key        []byte
}

// NewPBKDF2 validates cfg and returns a hasher.
func NewPBKDF2(cfg Config) (*PBKDF2, error) {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &PBKDF2{config: cfg}, nil
}

// Hash derives a new hash for password using a fresh random salt. Two calls
// with the same input never return the same string.
func (p *PBKDF2) Hash(password string) (string, error) {
	salt := make([]byte, p.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := pbkdf2.Key([]byte(password), salt, p.config.Iterations, p.config.KeyLength, sha256.New)

	return fmt.Sprintf(
		"%s$%d$%s$%s",
		algorithmID,
		p.config.Iterations,
		hex.EncodeToString(salt),
		hex.EncodeToString(key),
	), nil
}

// Verify re-derives the key for password with the salt and iteration count
// embedded in encodedHash and compares it in constant time.
//
// A malformed hash never verifies: Verify returns false together with
// ErrMalformedHash.
func (p *PBKDF2) Verify(password string, encodedHash string) (bool, error) {
	parsed, err := p.parse(encodedHash)
	if err != nil {
		return false, err
	}

	computed := pbkdf2.Key([]byte(password), parsed.salt, parsed.iterations, len(parsed.key), sha256.New)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was derived with weaker parameters
// than the hasher is configured with.
func (p *PBKDF2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := p.parse(encodedHash)
	if err != nil {
		return false, err
	}

	if parsed.iterations < p.config.Iterations {
		return true, nil
	}
	if len(parsed.key) != p.config.KeyLength {
		return true, nil
	}
	return len(parsed.salt) < p.config.SaltLength, nil
}

func (p *PBKDF2) parse(encodedHash string) (*parsedHash, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 4 || parts[0] != algorithmID {
		return nil, ErrMalformedHash
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < 1 || iterations > p.config.MaxIterations {
		return nil, ErrMalformedHash
	}

	salt, err := hex.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return nil, ErrMalformedHash
	}

	key, err := hex.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return nil, ErrMalformedHash
	}

	return &parsedHash{iterations: iterations, salt: salt, key: key}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Iterations < minIterations {
		return fmt.Errorf("pbkdf2 iterations must be >= %d", minIterations)
	}
	if cfg.SaltLength < minSaltLength {
		return fmt.Errorf("pbkdf2 salt length must be >= %d", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return fmt.Errorf("pbkdf2 key length must be >= %d", minKeyLength)
	}
	if cfg.MaxIterations < cfg.Iterations {
		return errors.New("pbkdf2 max iterations must be >= iterations")
	}
	return nil
}
