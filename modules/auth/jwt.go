// Package auth issues and verifies the bearer tokens that bind a connection
// or a profile request to a durable user id.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrNoSecret is returned when the manager has no signing key.
	ErrNoSecret = errors.New("jwt secret not configured")
)

// DefaultTokenDuration is used when Config.TokenDuration is zero.
const DefaultTokenDuration = 24 * time.Hour

// Config holds JWT configuration.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
	Issuer        string
}

// Claims are the custom claims carried by a world token. The subject is the
// durable user id.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and validates HS256 tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager creates a new Manager with the given configuration.
func NewManager(config Config) *Manager {
	if config.TokenDuration <= 0 {
		config.TokenDuration = DefaultTokenDuration
	}
	if config.Issuer == "" {
		config.Issuer = "modular-world"
	}
	return &Manager{config: config, now: time.Now}
}

// Enabled reports whether a signing key is configured.
func (m *Manager) Enabled() bool {
	return m != nil && m.config.SecretKey != ""
}

// GenerateToken issues a token for the user.
func (m *Manager) GenerateToken(userID, username string) (string, error) {
	if !m.Enabled() {
		return "", ErrNoSecret
	}
	now := m.now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// ValidateToken validates the token and returns the claims if valid.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	if !m.Enabled() {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.config.SecretKey), nil
	},
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserID validates the token and returns its subject.
func (m *Manager) UserID(tokenString string) (string, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
