package main

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GoogleClaims is the verified identity asserted by a Google ID token.
type GoogleClaims struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// CredentialVerifier validates a federated sign-in credential and returns the
// identity it asserts. Client-supplied profile fields are never trusted
// without a successful verification.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (*GoogleClaims, error)
}

const (
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	jwksCacheTTL  = time.Hour
)

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// GoogleVerifier checks Google ID tokens against Google's published JWKS:
// RS256 signature, audience = the configured OAuth client ID, issuer and
// expiry. Keys are cached and refetched on unknown key IDs.
type GoogleVerifier struct {
	clientID string
	jwksURL  string
	issuers  []string
	client   *http.Client

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		jwksURL:  googleJWKSURL,
		issuers:  googleIssuers,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type googleIDClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*GoogleClaims, error) {
	claims := &googleIDClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no key id")
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoogleCredential, err)
	}
	if !token.Valid {
		return nil, ErrInvalidGoogleCredential
	}

	issuerOK := false
	for _, iss := range v.issuers {
		if claims.Issuer == iss {
			issuerOK = true
			break
		}
	}
	if !issuerOK {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidGoogleCredential, claims.Issuer)
	}

	return &GoogleClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// key returns the RSA public key for kid, refetching the JWKS when the kid is
// unknown or the cache is stale. Google rotates keys, so an unknown kid is a
// refetch trigger, not an error.
func (v *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if k, ok := v.keys[kid]; ok && time.Since(v.fetched) < jwksCacheTTL {
		return k, nil
	}
	if err := v.fetchLocked(ctx); err != nil {
		return nil, err
	}
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("no key with id %q in jwks", kid)
}

func (v *GoogleVerifier) fetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks request failed with status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}
	if len(keys) == 0 {
		return errors.New("jwks contained no usable keys")
	}
	v.keys = keys
	v.fetched = time.Now()
	return nil
}
