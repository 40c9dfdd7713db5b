package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func intToBytes(v int) []byte {
	var out []byte
	for v > 0 {
		out = append([]byte{byte(v & 0xff)}, out...)
		v >>= 8
	}
	return out
}

type jwksFixture struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	payload := jwksResponse{Keys: []jwkKey{{
		Kid: "test-kid",
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(intToBytes(key.PublicKey.E)),
	}}}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	return &jwksFixture{key: key, server: server}
}

func (f *jwksFixture) signToken(t *testing.T, issuer string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &ClerkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user_123",
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Email: "patient@example.com",
	})
	token.Header["kid"] = "test-kid"

	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestClerkJWTAcceptsValidToken(t *testing.T) {
	fixture := newJWKSFixture(t)
	issuer := "https://valid.clerk.test"
	cfg := ClerkConfig{Issuer: issuer, JWKSURL: fixture.server.URL}

	req := httptest.NewRequest(http.MethodGet, "/appointments/today", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.signToken(t, issuer, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()

	var gotEmail string
	ClerkJWT(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClerkClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		gotEmail = claims.UserEmail()
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotEmail != "patient@example.com" {
		t.Fatalf("unexpected email %q", gotEmail)
	}
}

func TestClerkJWTAcceptsQueryParamToken(t *testing.T) {
	fixture := newJWKSFixture(t)
	issuer := "https://query.clerk.test"
	cfg := ClerkConfig{Issuer: issuer, JWKSURL: fixture.server.URL}

	token := fixture.signToken(t, issuer, time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/appointments/today?token="+token, nil)
	rec := httptest.NewRecorder()

	ClerkJWT(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestClerkJWTRejectsExpiredTokenBeyondLeeway(t *testing.T) {
	fixture := newJWKSFixture(t)
	issuer := "https://expired.clerk.test"
	cfg := ClerkConfig{Issuer: issuer, JWKSURL: fixture.server.URL}

	req := httptest.NewRequest(http.MethodGet, "/appointments/today", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.signToken(t, issuer, time.Now().Add(-time.Minute)))
	rec := httptest.NewRecorder()

	ClerkJWT(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestClerkJWTToleratesClockSkewWithinLeeway(t *testing.T) {
	fixture := newJWKSFixture(t)
	issuer := "https://leeway.clerk.test"
	cfg := ClerkConfig{Issuer: issuer, JWKSURL: fixture.server.URL}

	// Expired five seconds ago, inside the ten second leeway.
	req := httptest.NewRequest(http.MethodGet, "/appointments/today", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.signToken(t, issuer, time.Now().Add(-5*time.Second)))
	rec := httptest.NewRecorder()

	ClerkJWT(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 within leeway, got %d", rec.Code)
	}
}

func TestClerkJWTRejectsMissingToken(t *testing.T) {
	cfg := ClerkConfig{Issuer: "https://missing.clerk.test"}

	req := httptest.NewRequest(http.MethodGet, "/appointments/today", nil)
	rec := httptest.NewRecorder()

	ClerkJWT(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOptionalClerkJWTAllowsAnonymous(t *testing.T) {
	cfg := ClerkConfig{Issuer: "https://anon.clerk.test"}

	req := httptest.NewRequest(http.MethodPost, "/ai_response", nil)
	rec := httptest.NewRecorder()

	called := false
	OptionalClerkJWT(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := ClerkClaimsFromContext(r.Context()); ok {
			t.Fatal("expected no claims for anonymous request")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected anonymous pass-through, got %d", rec.Code)
	}
}

func TestOptionalClerkJWTIgnoresInvalidToken(t *testing.T) {
	cfg := ClerkConfig{Issuer: "https://invalid.clerk.test"}

	req := httptest.NewRequest(http.MethodPost, "/ai_response", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()

	OptionalClerkJWT(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected anonymous pass-through on bad token, got %d", rec.Code)
	}
}

func TestClerkClaimsFromContextMissing(t *testing.T) {
	if _, ok := ClerkClaimsFromContext(context.Background()); ok {
		t.Fatal("expected no claims on empty context")
	}
}
