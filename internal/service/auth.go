// Package service holds cross-cutting services shared by the HTTP API, the
// MCP server and the CLI.
package service

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrAuthDisabled       = errors.New("authentication is not configured")
)

// Token scopes. ScopeRead covers suggestions, plans and features; ScopeRun
// allows execute-mode runs.
const (
	ScopeRead = "read"
	ScopeRun  = "run"
)

const issuer = "tablekeeper"

// Principal is the identity carried by a validated bearer token.
type Principal struct {
	Subject string
	Scopes  []string
}

// Can reports whether the principal holds scope.
func (p *Principal) Can(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// AuthService issues and validates HS256 bearer tokens for the HTTP API.
type AuthService struct {
	jwtSecret []byte
	now       func() time.Time
}

// NewAuthService returns an AuthService. An empty secret disables it.
func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{jwtSecret: []byte(jwtSecret), now: time.Now}
}

// Enabled reports whether a signing secret is configured.
func (s *AuthService) Enabled() bool { return len(s.jwtSecret) > 0 }

// ValidateJWT verifies a JWT bearer token and returns its principal.
func (s *AuthService) ValidateJWT(tokenStr string) (*Principal, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &Principal{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
	}, nil
}

// IssueJWT creates a new signed token for subject with the given scopes.
func (s *AuthService) IssueJWT(subject string, scopes []string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	now := s.now()
	claims := jwtClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type jwtClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}
