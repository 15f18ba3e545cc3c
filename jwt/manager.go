package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim written and required on every token.
const DefaultIssuer = "virtual-hospital"

const (
	// TypeAccess marks access tokens.
	TypeAccess = "access"
	// TypeRefresh marks refresh tokens.
	TypeRefresh = "refresh"
)

var (
	// ErrMalformed is returned when a token cannot be decoded or lacks the
	// user or session id.
	ErrMalformed = errors.New("malformed token")
	// ErrWrongType is returned when a refresh token is presented as an access
	// token or vice versa.
	ErrWrongType = errors.New("unexpected token type")
)

// Config controls token lifetimes and validation strictness.
type Config struct {
	BaseSecret   []byte
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Leeway       time.Duration
	MaxFutureIAT time.Duration

	// Now overrides the clock used for iat/exp. Nil means time.Now.
	Now func() time.Time
}

// Manager creates and parses tokens. It holds no per-session state and is
// safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID       string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username,omitempty"`
	Provider     string `json:"provider,omitempty"`
	SessionID    string `json:"sessionId"`
	TokenVersion int64  `json:"tokenVersion"`
	Type         string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token.
type RefreshClaims struct {
	UserID       string `json:"id"`
	SessionID    string `json:"sessionId"`
	TokenVersion int64  `json:"tokenVersion"`
	Type         string `json:"type"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.BaseSecret) == 0 {
		return nil, errors.New("base secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.BaseSecret = append([]byte(nil), cfg.BaseSecret...)
	return &Manager{config: cfg}, nil
}

// AccessTTL returns the default access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// DeriveSecret returns the HMAC key for (userID, sessionID): the lowercase hex
// SHA-256 of "base:userID:sessionID". The hex text itself is the key.
func (m *Manager) DeriveSecret(userID, sessionID string) []byte {
	h := sha256.New()
	h.Write(m.config.BaseSecret)
	h.Write([]byte(":" + userID + ":" + sessionID))
	return []byte(hex.EncodeToString(h.Sum(nil)))
}

// CreateAccess signs an access token for claims. ttl <= 0 selects the
// configured access lifetime. Registered claims are overwritten.
func (m *Manager) CreateAccess(claims AccessClaims, ttl time.Duration) (string, error) {
	if claims.UserID == "" || claims.SessionID == "" {
		return "", ErrMalformed
	}
	if ttl <= 0 {
		ttl = m.config.AccessTTL
	}
	claims.Type = TypeAccess
	claims.RegisteredClaims = m.registered(claims.UserID, ttl)
	return m.sign(claims, claims.UserID, claims.SessionID)
}

// CreateRefresh signs a refresh token bound to a session at a token version.
func (m *Manager) CreateRefresh(userID, sessionID string, tokenVersion int64) (string, error) {
	if userID == "" || sessionID == "" {
		return "", ErrMalformed
	}
	claims := RefreshClaims{
		UserID:           userID,
		SessionID:        sessionID,
		TokenVersion:     tokenVersion,
		Type:             TypeRefresh,
		RegisteredClaims: m.registered(userID, m.config.RefreshTTL),
	}
	return m.sign(claims, userID, sessionID)
}

// PeekAccess decodes an access token WITHOUT verifying it. The result is only
// fit for locating the session to verify against.
func (m *Manager) PeekAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.peek(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrMalformed
	}
	if claims.Type == TypeRefresh {
		return nil, ErrWrongType
	}
	return claims, nil
}

// PeekRefresh decodes a refresh token WITHOUT verifying it.
func (m *Manager) PeekRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.peek(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrMalformed
	}
	if claims.Type != TypeRefresh {
		return nil, ErrWrongType
	}
	return claims, nil
}

// ParseAccess fully verifies an access token against the secret derived for
// (userID, sessionID).
func (m *Manager) ParseAccess(tokenStr, userID, sessionID string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, userID, sessionID); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, ErrWrongType
	}
	if claims.UserID != userID || claims.SessionID != sessionID {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ParseRefresh fully verifies a refresh token against the secret derived for
// (userID, sessionID).
func (m *Manager) ParseRefresh(tokenStr, userID, sessionID string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, userID, sessionID); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, ErrWrongType
	}
	if claims.UserID != userID || claims.SessionID != sessionID {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (m *Manager) registered(userID string, ttl time.Duration) jwt.RegisteredClaims {
	now := m.config.Now()
	return jwt.RegisteredClaims{
		Issuer:    m.config.Issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{userID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (m *Manager) sign(claims jwt.Claims, userID, sessionID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.DeriveSecret(userID, sessionID))
}

func (m *Manager) peek(tokenStr string, claims jwt.Claims) error {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, _, err := parser.ParseUnverified(tokenStr, claims)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return fmt.Errorf("%w: unexpected signing algorithm", ErrMalformed)
	}
	return nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, userID, sessionID string) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(userID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.DeriveSecret(userID, sessionID), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}

	iat, err := claims.GetIssuedAt()
	if err == nil && iat != nil && iat.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
		return errors.New("token iat too far in the future")
	}
	return nil
}
