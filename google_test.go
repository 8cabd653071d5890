package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-id.apps.googleusercontent.com"

// jwksServer serves the public half of key under the given kid, in the same
// document shape Google publishes.
func jwksServer(t *testing.T, kid string, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	doc := map[string]interface{}{
		"keys": []map[string]string{
			{
				"kty": "RSA",
				"kid": kid,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestVerifier(srv *httptest.Server) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: testClientID,
		jwksURL:  srv.URL,
		issuers:  googleIssuers,
		client:   srv.Client(),
	}
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims googleIDClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims() googleIDClaims {
	return googleIDClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "google-123",
			Audience:  jwt.ClaimStrings{testClientID},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email:   "g@x.com",
		Name:    "Gina",
		Picture: "https://example.com/pic.png",
	}
}

func TestGoogleVerifierAcceptsValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := jwksServer(t, "kid-1", key)
	v := newTestVerifier(srv)

	credential := signIDToken(t, key, "kid-1", baseClaims())
	claims, err := v.Verify(context.Background(), credential)
	require.NoError(t, err)
	require.Equal(t, "google-123", claims.Subject)
	require.Equal(t, "g@x.com", claims.Email)
	require.Equal(t, "Gina", claims.Name)
	require.Equal(t, "https://example.com/pic.png", claims.Picture)
}

func TestGoogleVerifierRejections(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := jwksServer(t, "kid-1", key)

	tests := []struct {
		name       string
		credential func(t *testing.T) string
	}{
		{
			name: "wrong audience",
			credential: func(t *testing.T) string {
				c := baseClaims()
				c.Audience = jwt.ClaimStrings{"someone-else"}
				return signIDToken(t, key, "kid-1", c)
			},
		},
		{
			name: "unexpected issuer",
			credential: func(t *testing.T) string {
				c := baseClaims()
				c.Issuer = "https://evil.example.com"
				return signIDToken(t, key, "kid-1", c)
			},
		},
		{
			name: "expired",
			credential: func(t *testing.T) string {
				c := baseClaims()
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				return signIDToken(t, key, "kid-1", c)
			},
		},
		{
			name: "missing expiry",
			credential: func(t *testing.T) string {
				c := baseClaims()
				c.ExpiresAt = nil
				return signIDToken(t, key, "kid-1", c)
			},
		},
		{
			name: "signed by an unpublished key",
			credential: func(t *testing.T) string {
				return signIDToken(t, foreignKey, "kid-1", baseClaims())
			},
		},
		{
			name: "unknown key id",
			credential: func(t *testing.T) string {
				return signIDToken(t, key, "kid-unknown", baseClaims())
			},
		},
		{
			name: "alg none",
			credential: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodNone, baseClaims())
				token.Header["kid"] = "kid-1"
				signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return signed
			},
		},
		{
			name: "hmac signed with the client id",
			credential: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
				token.Header["kid"] = "kid-1"
				signed, err := token.SignedString([]byte(testClientID))
				require.NoError(t, err)
				return signed
			},
		},
		{
			name:       "not a jwt at all",
			credential: func(t *testing.T) string { return "opaque-garbage" },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestVerifier(srv)
			_, err := v.Verify(context.Background(), tc.credential(t))
			require.ErrorIs(t, err, ErrInvalidGoogleCredential)
		})
	}
}

func TestGoogleVerifierRefetchesOnRotatedKey(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// the served document switches from kid-old to kid-new mid-test
	current := &struct {
		kid string
		key *rsa.PrivateKey
	}{kid: "kid-old", key: oldKey}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]interface{}{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": current.kid,
					"n":   base64.RawURLEncoding.EncodeToString(current.key.PublicKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(current.key.PublicKey.E)).Bytes()),
				},
			},
		}
		json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	v := newTestVerifier(srv)

	_, err = v.Verify(context.Background(), signIDToken(t, oldKey, "kid-old", baseClaims()))
	require.NoError(t, err)

	current.kid, current.key = "kid-new", newKey

	// unknown kid forces a refetch even though the cache is fresh
	_, err = v.Verify(context.Background(), signIDToken(t, newKey, "kid-new", baseClaims()))
	require.NoError(t, err)
}
