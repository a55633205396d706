package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Role:      role,
		ProfileID: "prov-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(testClaims(RoleProvider, time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := NewVerifier(secret, nil).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.ProfileID != "prov-1" || parsed.Role != RoleProvider {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewVerifier("wrong-secret", nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestVerifyRejectsExpiredAndIncomplete(t *testing.T) {
	secret := "test-secret"
	v := NewVerifier(secret, nil)

	expired, _ := SignHS256(testClaims(RoleCustomer, -time.Hour), secret)
	if _, err := v.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}

	c := testClaims(RoleCustomer, time.Hour)
	c.ProfileID = ""
	noProfile, _ := SignHS256(c, secret)
	if _, err := v.Verify(noProfile); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token without profile to fail, got %v", err)
	}

	c = testClaims(RoleCustomer, time.Hour)
	c.ExpiresAt = nil
	noExp, _ := SignHS256(c, secret)
	if _, err := v.Verify(noExp); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token without exp to fail, got %v", err)
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims(RoleCustomer, time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign RS256: %v", err)
	}

	v := NewVerifier("", NewJWKSClient(srv.URL, time.Minute))
	parsed, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify RS256 failed: %v", err)
	}
	if parsed.Role != RoleCustomer {
		t.Fatalf("unexpected role %q", parsed.Role)
	}

	// RS256 is refused when no JWKS is configured.
	if _, err := NewVerifier("secret", nil).Verify(signed); err == nil {
		t.Fatal("expected RS256 token to be rejected without jwks")
	}
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	secret := "mw-secret"
	v := NewVerifier(secret, nil)
	var seen *Claims
	h := Authenticate(v)(RequireRole(RoleProvider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-jwt", want: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + mustSign(t, testClaims(RoleCustomer, time.Hour), secret), want: http.StatusForbidden},
		{name: "provider", header: "Bearer " + mustSign(t, testClaims(RoleProvider, time.Hour), secret), want: http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/provider/availability", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
	if seen == nil || seen.ProfileID != "prov-1" {
		t.Fatalf("expected claims in context, got %+v", seen)
	}
}

func mustSign(t *testing.T, c Claims, secret string) string {
	t.Helper()
	tok, err := SignHS256(c, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}
