package security

// Dev/testing helper: mints tokens for checking the JWT auth path. Not used
// in the indexing pipeline.

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"subgraphx/internal/config"
)

type RS256Signer struct {
	Priv *rsa.PrivateKey
	Iss  string
	Aud  string
}

// Loads a PEM-encoded RSA private key, PKCS1 or PKCS8.
func NewRS256Signer(cfg *config.JWTConfig) (*RS256Signer, error) {
	if cfg.PrivateKeyPath == "" {
		return nil, errors.New("private key path is empty")
	}

	b, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	priv, err := parseRSAPrivateKeyFromPem(b)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &RS256Signer{
		Priv: priv,
		Iss:  cfg.Issuer,
		Aud:  cfg.Audience,
	}, nil
}

// Mint creates a signed JWT with RegisteredClaims. sub and ttl are required;
// id (jti) and notBefore are optional.
func (s *RS256Signer) Mint(sub string, ttl time.Duration, id string, notBefore time.Time, extra map[string]any) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub": sub,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
	if s.Iss != "" {
		claims["iss"] = s.Iss
	}
	if s.Aud != "" {
		claims["aud"] = s.Aud
	}
	if id != "" {
		claims["jti"] = id
	}
	if !notBefore.IsZero() {
		claims["nbf"] = notBefore.Unix()
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.Priv)
}
