// Package auth issues and validates the admin API's bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Config contains auth configuration. The admin credential is a single
// operator account defined in deployment configuration.
type Config struct {
	AdminUser string
	// AdminPasswordHash is a bcrypt hash of the admin password.
	AdminPasswordHash string
	JWTSecret         string
	TokenDuration     time.Duration
}

// Service authenticates the admin operator and validates bearer tokens.
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates an auth service.
func NewService(config Config) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	if config.AdminUser == "" || config.AdminPasswordHash == "" {
		return nil, errors.New("auth: admin credentials are required")
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = 12 * time.Hour
	}
	return &Service{config: config, now: time.Now}, nil
}

// Login checks credentials and returns a signed access token.
func (s *Service) Login(_ context.Context, user, password string) (string, error) {
	if user != s.config.AdminUser {
		// Burn a comparison anyway so username probing costs the same as
		// a wrong password.
		_ = bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(password))
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, returning its subject.
// Implements the middleware's token validator interface.
func (s *Service) ValidateToken(_ context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// HashPassword produces a bcrypt hash for configuration bootstrapping.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
