package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"subgraphx/internal/config"
)

var ErrNoBearerToken = errors.New("authorization header must be: Bearer <token>")

// RS256Verifier checks JWT RS256 with audience/issuer and a clock-skew
// allowance (Leeway).
type RS256Verifier struct {
	PubKey *rsa.PublicKey
	Aud    string
	Iss    string
	Leeway time.Duration
}

// Loads and parses the public key. Audience/issuer left empty are not checked.
func NewRS256Verifier(cfg *config.JWTConfig) (*RS256Verifier, error) {
	b, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	pub, err := parseRSAPublicKeyFromPem(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = time.Minute
	}

	return &RS256Verifier{
		PubKey: pub,
		Aud:    cfg.Audience,
		Iss:    cfg.Issuer,
		Leeway: leeway,
	}, nil
}

// VerifyBearer takes the Authorization header and validates the token.
func (v *RS256Verifier) VerifyBearer(authHeader string) (any, error) {
	tokenStr, err := extractBearer(authHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to extract bearer token: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), // only RS256
		jwt.WithLeeway(v.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}

	if v.Aud != "" {
		opts = append(opts, jwt.WithAudience(v.Aud))
	}
	if v.Iss != "" {
		opts = append(opts, jwt.WithIssuer(v.Iss))
	}

	claims := &jwt.RegisteredClaims{}
	if _, err = jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return v.PubKey, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return claims, nil
}

func extractBearer(h string) (string, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", ErrNoBearerToken
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrNoBearerToken
	}

	return strings.TrimSpace(parts[1]), nil
}
