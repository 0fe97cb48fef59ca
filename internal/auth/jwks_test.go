package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// jwksJSON publishes pub under kid in JWK set form.
func jwksJSON(t *testing.T, pub *rsa.PublicKey, kid string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}})
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

// jwksServer serves whatever key set is currently stored and counts hits.
type jwksServer struct {
	*httptest.Server
	set  atomic.Value // []byte
	hits atomic.Int32
}

func newJWKSServer(t *testing.T, set []byte) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.set.Store(set)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write(s.set.Load().([]byte))
	}))
	t.Cleanup(s.Close)
	return s
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return key
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "https://tenant.example.com/",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func newKeyfunc(t *testing.T, url string) jwt.Keyfunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	keys, err := NewJWKSKeyfunc(ctx, url)
	if err != nil {
		t.Fatalf("NewJWKSKeyfunc: %v", err)
	}
	return keys
}

func TestJWKSVerifier(t *testing.T) {
	key := newRSAKey(t)
	srv := newJWKSServer(t, jwksJSON(t, &key.PublicKey, "k1"))

	v := NewJWKSVerifier(newKeyfunc(t, srv.URL), "https://tenant.example.com/", "")

	sub, err := v.Verify(context.Background(), signRS256(t, key, "k1", "auth0|abc"))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if sub != "auth0|abc" {
		t.Errorf("sub = %q, want %q", sub, "auth0|abc")
	}

	// cached: the second token does not refetch
	if _, err := v.Verify(context.Background(), signRS256(t, key, "k1", "auth0|def")); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got := srv.hits.Load(); got != 1 {
		t.Errorf("JWKS fetched %d times, want 1", got)
	}
}

func TestJWKSVerifier_RefetchesOnUnknownKid(t *testing.T) {
	oldKey, newKey := newRSAKey(t), newRSAKey(t)
	srv := newJWKSServer(t, jwksJSON(t, &oldKey.PublicKey, "old"))
	v := NewJWKSVerifier(newKeyfunc(t, srv.URL), "", "")

	if _, err := v.Verify(context.Background(), signRS256(t, oldKey, "old", "a")); err != nil {
		t.Fatalf("Verify(old) error = %v", err)
	}

	// provider rotates keys
	srv.set.Store(jwksJSON(t, &newKey.PublicKey, "new"))

	if _, err := v.Verify(context.Background(), signRS256(t, newKey, "new", "a")); err != nil {
		t.Fatalf("Verify(new) error = %v", err)
	}
	if got := srv.hits.Load(); got != 2 {
		t.Errorf("JWKS fetched %d times, want 2", got)
	}
}

func TestJWKSVerifier_StaticSet(t *testing.T) {
	key, other := newRSAKey(t), newRSAKey(t)
	k, err := keyfunc.NewJWKSetJSON(jwksJSON(t, &key.PublicKey, "k1"))
	if err != nil {
		t.Fatalf("NewJWKSetJSON: %v", err)
	}
	v := NewJWKSVerifier(k.Keyfunc, "", "")

	if _, err := v.Verify(context.Background(), signRS256(t, key, "k1", "a")); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"unknown kid", signRS256(t, key, "k2", "a")},
		{"wrong signer", signRS256(t, other, "k1", "a")},
		{"no kid", signRS256(t, key, "", "a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tt.token); err == nil {
				t.Fatal("Verify() should fail")
			}
		})
	}
}

func TestJWKSVerifier_RejectsHS256(t *testing.T) {
	key := newRSAKey(t)
	k, err := keyfunc.NewJWKSetJSON(jwksJSON(t, &key.PublicKey, "k1"))
	if err != nil {
		t.Fatalf("NewJWKSetJSON: %v", err)
	}
	v := NewJWKSVerifier(k.Keyfunc, "", "")

	iss, _ := NewTokenIssuer(testSecret, "", "")
	token, _ := iss.Generate("auth0|abc")

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatal("an RS256 verifier must not accept HS256 tokens")
	}
}

func TestJWKSVerifier_EndpointDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := NewJWKSVerifier(newKeyfunc(t, srv.URL), "", "")
	if _, err := v.Verify(context.Background(), signRS256(t, newRSAKey(t), "k1", "a")); err == nil {
		t.Fatal("Verify() should fail when no keys could be loaded")
	}
}

func TestJWKSURL(t *testing.T) {
	if got, want := JWKSURL("tenant.us.auth0.com"), "https://tenant.us.auth0.com/.well-known/jwks.json"; got != want {
		t.Errorf("JWKSURL() = %q, want %q", got, want)
	}
}
