package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const minKeyLength = 32

// Config controls handle signing.
type Config struct {
	Key        []byte
	KeyID      string
	VerifyKeys map[string][]byte
	TTL        time.Duration
	Issuer     string
	Leeway     time.Duration
	// Now overrides the clock for issuing and validating. Nil selects time.Now.
	Now func() time.Time
}

// ClientClaims are the claims of a client handle.
type ClientClaims struct {
	CID string `json:"cid"`
	jwt.RegisteredClaims
}

// Manager signs and verifies client handles. It is safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Key) < minKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes", minKeyLength)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < minKeyLength {
			return nil, fmt.Errorf("verify key for kid %q is too short", kid)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg}, nil
}

// NewClientID returns a random 128-bit client identifier in hex.
func NewClientID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Issue signs a handle for clientID.
func (m *Manager) Issue(clientID string) (string, error) {
	if clientID == "" {
		return "", errors.New("empty client id")
	}
	now := m.config.Now()
	claims := ClientClaims{
		CID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.config.KeyID != "" {
		tok.Header["kid"] = m.config.KeyID
	}
	return tok.SignedString(m.config.Key)
}

// Parse verifies handle and returns its client id.
func (m *Manager) Parse(handle string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(handle, &ClientClaims{}, m.keyFor)
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(*ClientClaims)
	if !ok || !parsed.Valid || claims.CID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.CID, nil
}

func (m *Manager) keyFor(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" || kid == m.config.KeyID {
		if kid == "" && m.config.KeyID != "" {
			return nil, errors.New("missing kid")
		}
		return m.config.Key, nil
	}
	key, ok := m.config.VerifyKeys[kid]
	if !ok {
		return nil, errors.New("unknown kid")
	}
	return key, nil
}
