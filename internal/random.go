package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"time"
)

const (
	sessionIDSize = 32
	tokenSize     = 32
)

// NewSessionID returns 32 random bytes in hex.
func NewSessionID() (string, error) {
	return NewToken(sessionIDSize)
}

// NewToken returns n random bytes in hex. Zero selects the default size.
func NewToken(n int) (string, error) {
	if n == 0 {
		n = tokenSize
	}
	if n < 16 {
		return "", errors.New("token too short")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashToken is the at-rest form of a bearer token: hex SHA-256.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RandomDuration returns a uniformly distributed duration in [lo, hi]. It
// returns lo when hi <= lo.
func RandomDuration(lo, hi time.Duration) (time.Duration, error) {
	if hi <= lo {
		return lo, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo)+1))
	if err != nil {
		return 0, err
	}
	return lo + time.Duration(n.Int64()), nil
}
