// Package auth issues and verifies the bearer tokens that identify a principal. Accounts live
// outside this service: a token is trusted as long as its signature and claims check out.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"space-pulse/internal/config"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of tokens issued without an explicit one.
const DefaultTTL = 24 * time.Hour

// Service signs and verifies tokens with the configured algorithm.
type Service struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	log       *slog.Logger
	now       func() time.Time
}

// NewService resolves the signing keys. HS256 uses the secret as is; RS256 expects a PEM
// encoded RSA private key and verifies with its public half.
func NewService(cfg config.Config, log *slog.Logger) (*Service, error) {
	s := &Service{log: logger.Or(log), now: time.Now}
	secret := cfg.SigningSecret()

	switch strings.ToUpper(cfg.JWTAlgorithm) {
	case "HS256", "":
		s.method = jwt.SigningMethodHS256
		s.signKey = []byte(secret)
		s.verifyKey = []byte(secret)
	case "RS256":
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSigningKey, err)
		}
		s.method = jwt.SigningMethodRS256
		s.signKey = key
		s.verifyKey = &key.PublicKey
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedJWTAlg, cfg.JWTAlgorithm)
	}
	return s, nil
}

// SigningKey is the verification key in the shape the fiber jwt middleware expects.
func (s *Service) SigningKey() jwtware.SigningKey {
	return jwtware.SigningKey{JWTAlg: s.method.Alg(), Key: s.verifyKey}
}

// Issue signs a token for user valid for ttl, or DefaultTTL when ttl is zero.
func (s *Service) Issue(user model.UserSnapshot, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}
	if user.Name != "" {
		claims["name"] = user.Name
	}
	if user.Username != "" {
		claims["username"] = user.Username
	}
	if user.Avatar != "" {
		claims["avatar"] = user.Avatar
	}

	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		s.log.Error("token signing failed", "user_id", user.ID, "error", err)
		return "", ErrGenAccessToken
	}
	return token, nil
}

// Verify checks the signature and expiry of raw and returns its principal.
func (s *Service) Verify(raw string) (model.UserSnapshot, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.verifyKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return model.UserSnapshot{}, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.UserSnapshot{}, ErrInvalidToken
	}
	return PrincipalFromClaims(claims)
}

// PrincipalFromClaims reads user_id and email (required) plus the optional profile claims.
// A missing username falls back to the local part of the email.
func PrincipalFromClaims(claims jwt.MapClaims) (model.UserSnapshot, error) {
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return model.UserSnapshot{}, ErrInvalidTokenMissingUserID
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return model.UserSnapshot{}, ErrInvalidTokenMissingEmail
	}

	p := model.UserSnapshot{ID: userID, Email: email}
	p.Name, _ = claims["name"].(string)
	p.Username, _ = claims["username"].(string)
	p.Avatar, _ = claims["avatar"].(string)
	if p.Username == "" {
		p.Username, _, _ = strings.Cut(email, "@")
	}
	if p.Name == "" {
		p.Name = p.Username
	}
	return p, nil
}
