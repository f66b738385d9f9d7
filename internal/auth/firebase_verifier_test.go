package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testProjectID = "dividis-test"
	testKeyID     = "test-key"
)

type jwksFixture struct {
	privateKey *rsa.PrivateKey
	server     *httptest.Server
	requests   *atomic.Int32
}

func newJWKSFixture(t *testing.T) jwksFixture {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	jwksResponse := map[string]any{
		"keys": []any{map[string]string{
			"kty": "RSA",
			"alg": "RS256",
			"kid": testKeyID,
			"use": "sig",
			"n":   encodeBigInt(privateKey.PublicKey.N),
			"e":   encodeBigInt(privateKey.PublicKey.E),
		}},
	}
	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_ = json.NewEncoder(w).Encode(jwksResponse)
	}))
	t.Cleanup(server.Close)
	return jwksFixture{privateKey: privateKey, server: server, requests: requests}
}

func (f jwksFixture) verifier(t *testing.T, clock func() time.Time) *FirebaseVerifier {
	t.Helper()
	verifier, err := NewFirebaseVerifier(FirebaseVerifierConfig{
		ProjectID:  testProjectID,
		JWKSURL:    f.server.URL,
		HTTPClient: f.server.Client(),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return verifier
}

func (f jwksFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(f.privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func firebaseClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"aud":      testProjectID,
		"iss":      "https://securetoken.google.com/" + testProjectID,
		"sub":      "firebase-uid-1",
		"email":    "ana@example.com",
		"name":     "Ana",
		"exp":      now.Add(5 * time.Minute).Unix(),
		"iat":      now.Add(-time.Minute).Unix(),
		"firebase": map[string]any{"sign_in_provider": "google.com"},
	}
}

func TestFirebaseVerifierValidatesTokenUsingJWKS(t *testing.T) {
	fixture := newJWKSFixture(t)
	now := time.Now().UTC()
	verifier := fixture.verifier(t, nil)

	verified, err := verifier.Verify(context.Background(), fixture.sign(t, firebaseClaims(now)))
	if err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}
	if verified.Subject != "firebase-uid-1" || verified.Email != "ana@example.com" || verified.DisplayName != "Ana" {
		t.Fatalf("unexpected claims %#v", verified)
	}
	if verified.Provider != "google.com" {
		t.Fatalf("unexpected provider %q", verified.Provider)
	}

	if _, err := verifier.Verify(context.Background(), fixture.sign(t, firebaseClaims(now))); err != nil {
		t.Fatalf("expected cached verification to succeed: %v", err)
	}
	if fixture.requests.Load() != 1 {
		t.Fatalf("expected keys to be fetched once, got %d", fixture.requests.Load())
	}
}

func TestFirebaseVerifierRejectsInvalidTokens(t *testing.T) {
	fixture := newJWKSFixture(t)
	now := time.Now().UTC()
	verifier := fixture.verifier(t, nil)

	testCases := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{name: "wrong audience", mutate: func(claims jwt.MapClaims) { claims["aud"] = "other-project" }},
		{name: "wrong issuer", mutate: func(claims jwt.MapClaims) { claims["iss"] = "https://accounts.google.com" }},
		{name: "expired", mutate: func(claims jwt.MapClaims) { claims["exp"] = now.Add(-time.Minute).Unix() }},
		{name: "missing subject", mutate: func(claims jwt.MapClaims) { delete(claims, "sub") }},
		{name: "missing expiry", mutate: func(claims jwt.MapClaims) { delete(claims, "exp") }},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			claims := firebaseClaims(now)
			testCase.mutate(claims)
			_, err := verifier.Verify(context.Background(), fixture.sign(t, claims))
			if !errors.Is(err, ErrInvalidIDToken) {
				t.Fatalf("expected invalid token error, got %v", err)
			}
		})
	}

	if _, err := verifier.Verify(context.Background(), "  "); !errors.Is(err, ErrInvalidIDToken) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}
}

func TestFirebaseVerifierRejectsUnknownKey(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := fixture.verifier(t, nil)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, firebaseClaims(time.Now().UTC()))
	token.Header["kid"] = "rotated-key"
	signed, err := token.SignedString(fixture.privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	_, err = verifier.Verify(context.Background(), signed)
	if !errors.Is(err, ErrInvalidIDToken) || !strings.Contains(err.Error(), errKeyNotFound.Error()) {
		t.Fatalf("expected key lookup failure, got %v", err)
	}
}

func TestNewFirebaseVerifierRequiresProjectAndJWKS(t *testing.T) {
	_, err := NewFirebaseVerifier(FirebaseVerifierConfig{JWKSURL: DefaultFirebaseJWKSURL})
	if !errors.Is(err, ErrInvalidVerifierConfig) {
		t.Fatalf("expected invalid verifier config error, got %v", err)
	}
	if !strings.Contains(err.Error(), errMissingProjectID.Error()) {
		t.Fatalf("expected project validation error to be reported, got %v", err)
	}

	_, err = NewFirebaseVerifier(FirebaseVerifierConfig{ProjectID: testProjectID, JWKSURL: " "})
	if !errors.Is(err, ErrInvalidVerifierConfig) {
		t.Fatalf("expected invalid verifier config error, got %v", err)
	}
	if !strings.Contains(err.Error(), errMissingJWKSURL.Error()) {
		t.Fatalf("expected jwks validation error to be reported, got %v", err)
	}
}

func encodeBigInt(value interface{}) string {
	switch v := value.(type) {
	case *big.Int:
		return base64.RawURLEncoding.EncodeToString(v.Bytes())
	case int:
		return encodeBigInt(int64(v))
	case int64:
		return base64.RawURLEncoding.EncodeToString(big.NewInt(v).Bytes())
	default:
		return ""
	}
}
