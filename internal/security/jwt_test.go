package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgraphx/internal/config"
)

// writeTestKeyPair generates an RSA key pair and writes both PEM files under
// a temp dir.
func writeTestKeyPair(t *testing.T) (privPath, pubPath string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()

	privPath = filepath.Join(dir, "key.pem")
	privPem := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(privPath, privPem, 0o600))

	pubDer, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	pubPath = filepath.Join(dir, "key.pub.pem")
	pubPem := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDer,
	})
	require.NoError(t, os.WriteFile(pubPath, pubPem, 0o600))

	return privPath, pubPath
}

func testJWTConfig(t *testing.T) *config.JWTConfig {
	privPath, pubPath := writeTestKeyPair(t)
	return &config.JWTConfig{
		Enabled:        true,
		Alg:            "RS256",
		PublicKeyPath:  pubPath,
		PrivateKeyPath: privPath,
		Audience:       "subgraphx-api",
		Issuer:         "subgraphx",
		Leeway:         time.Minute,
	}
}

func TestSignAndVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig(t)

	signer, err := NewRS256Signer(cfg)
	require.NoError(t, err)

	verifier, err := NewRS256Verifier(cfg)
	require.NoError(t, err)

	token, err := signer.Mint("user-42", time.Hour, "jti-1", time.Time{}, nil)
	require.NoError(t, err)

	claimsAny, err := verifier.VerifyBearer("Bearer " + token)
	require.NoError(t, err)

	rc, ok := claimsAny.(*jwt.RegisteredClaims)
	require.True(t, ok)
	assert.Equal(t, "user-42", rc.Subject)
	assert.Equal(t, "subgraphx", rc.Issuer)
}

func TestVerify_ExpiredToken(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig(t)
	cfg.Leeway = time.Millisecond

	signer, err := NewRS256Signer(cfg)
	require.NoError(t, err)
	verifier, err := NewRS256Verifier(cfg)
	require.NoError(t, err)

	token, err := signer.Mint("user-42", -2*time.Hour, "", time.Time{}, nil)
	require.NoError(t, err)

	_, err = verifier.VerifyBearer("Bearer " + token)
	assert.Error(t, err)
}

func TestVerify_WrongAudience(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig(t)

	signer, err := NewRS256Signer(cfg)
	require.NoError(t, err)

	verifyCfg := *cfg
	verifyCfg.Audience = "other-api"
	verifier, err := NewRS256Verifier(&verifyCfg)
	require.NoError(t, err)

	token, err := signer.Mint("user-42", time.Hour, "", time.Time{}, nil)
	require.NoError(t, err)

	_, err = verifier.VerifyBearer("Bearer " + token)
	assert.Error(t, err)
}

func TestVerify_WrongKeyPair(t *testing.T) {
	t.Parallel()

	cfgA := testJWTConfig(t)
	cfgB := testJWTConfig(t)

	signer, err := NewRS256Signer(cfgA)
	require.NoError(t, err)
	verifier, err := NewRS256Verifier(cfgB)
	require.NoError(t, err)

	token, err := signer.Mint("user-42", time.Hour, "", time.Time{}, nil)
	require.NoError(t, err)

	_, err = verifier.VerifyBearer("Bearer " + token)
	assert.Error(t, err)
}

func TestExtractBearer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		ok     bool
	}{
		{"Bearer abc.def.ghi", true},
		{"bearer abc.def.ghi", true},
		{"", false},
		{"abc.def.ghi", false},
		{"Bearer ", false},
		{"Basic abc", false},
	}

	for _, tc := range cases {
		got, err := extractBearer(tc.header)
		if tc.ok {
			assert.NoError(t, err, tc.header)
			assert.NotEmpty(t, got)
		} else {
			assert.ErrorIs(t, err, ErrNoBearerToken, tc.header)
		}
	}
}

func TestNewVerifier_BadKeyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a pem"), 0o600))

	_, err := NewRS256Verifier(&config.JWTConfig{PublicKeyPath: bad})
	assert.Error(t, err)

	_, err = NewRS256Verifier(&config.JWTConfig{PublicKeyPath: filepath.Join(dir, "missing.pem")})
	assert.Error(t, err)
}
