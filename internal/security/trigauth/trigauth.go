// Package trigauth authenticates trigger deliveries from the platform.
// Every delivery carries a signed JWT in the Authorization header; HS256
// with a shared secret is the default deployment, RS256 against the
// platform's JWKS endpoint the alternative.
package trigauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotConfigured = errors.New("trigauth: no shared secret and no jwks url configured")
	ErrInvalidToken  = errors.New("trigauth: invalid delivery token")
)

// Config selects the verification mode and the expected token envelope.
type Config struct {
	SharedSecret string // HS256
	JWKSURL      string // RS256
	Issuer       string // expected iss, optional
	Audience     string // expected aud, optional
}

// Verifier validates delivery tokens. Safe for concurrent use.
type Verifier struct {
	secret   []byte
	jwksURL  string
	issuer   string
	audience string

	http *http.Client

	mu       sync.RWMutex
	keys     map[string]*rsa.PublicKey
	keysAt   time.Time
	keysETag string
}

// New builds a verifier; at least one of SharedSecret / JWKSURL is required.
func New(cfg Config) (*Verifier, error) {
	if cfg.SharedSecret == "" && cfg.JWKSURL == "" {
		return nil, ErrNotConfigured
	}
	return &Verifier{
		secret:   []byte(cfg.SharedSecret),
		jwksURL:  cfg.JWKSURL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		http:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Verify parses and validates a delivery token, returning its claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (jwtv5.MapClaims, error) {
	var methods []string
	if len(v.secret) > 0 {
		methods = append(methods, "HS256")
	}
	if v.jwksURL != "" {
		methods = append(methods, "RS256")
	}

	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods(methods),
		jwtv5.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwtv5.WithAudience(v.audience))
	}

	claims := jwtv5.MapClaims{}
	tok, err := jwtv5.ParseWithClaims(tokenString, claims, func(t *jwtv5.Token) (any, error) {
		switch t.Method.(type) {
		case *jwtv5.SigningMethodHMAC:
			if len(v.secret) == 0 {
				return nil, errors.New("hmac not configured")
			}
			return v.secret, nil
		case *jwtv5.SigningMethodRSA:
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("token without kid")
			}
			return v.rsaKeyForKid(ctx, kid)
		}
		return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// FromRequest extracts and verifies the bearer token of a delivery request.
func (v *Verifier) FromRequest(r *http.Request) (jwtv5.MapClaims, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return nil, fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}
	return v.Verify(r.Context(), strings.TrimSpace(h[len("bearer "):]))
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDoc struct {
	Keys []jwk `json:"keys"`
}

func (v *Verifier) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.keysAt) < time.Hour
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := v.refreshJWKS(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("kid %q not found in jwks", kid)
	}
	return key, nil
}

func (v *Verifier) refreshJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	v.mu.RLock()
	if v.keysETag != "" {
		req.Header.Set("If-None-Match", v.keysETag)
	}
	v.mu.RUnlock()

	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		v.mu.Lock()
		v.keysAt = time.Now()
		v.mu.Unlock()
		return nil
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("jwks http %d", resp.StatusCode)
	}

	var doc jwksDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if !strings.EqualFold(k.Kty, "RSA") || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.keysAt = time.Now()
	v.keysETag = resp.Header.Get("ETag")
	v.mu.Unlock()
	return nil
}

func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eb {
		e = (e << 8) | int(b)
	}
	if e == 0 {
		e = 65537
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
