package trigauth

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
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func hs256Token(t *testing.T, secret string, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func baseClaims() jwtv5.MapClaims {
	return jwtv5.MapClaims{
		"iss": "https://platform.example",
		"aud": "claimbridge",
		"exp": time.Now().Add(time.Minute).Unix(),
		"iat": time.Now().Unix(),
	}
}

func TestVerify_HS256(t *testing.T) {
	v, err := New(Config{SharedSecret: "s3cret", Issuer: "https://platform.example", Audience: "claimbridge"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	claims, err := v.Verify(context.Background(), hs256Token(t, "s3cret", baseClaims()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if iss, _ := claims.GetIssuer(); iss != "https://platform.example" {
		t.Fatalf("unexpected iss: %q", iss)
	}
}

func TestVerify_RejectsBadSignatureAndClaims(t *testing.T) {
	v, _ := New(Config{SharedSecret: "s3cret", Issuer: "https://platform.example"})
	ctx := context.Background()

	cases := map[string]string{
		"wrong secret": hs256Token(t, "other", baseClaims()),
		"wrong issuer": hs256Token(t, "s3cret", jwtv5.MapClaims{
			"iss": "https://evil.example",
			"exp": time.Now().Add(time.Minute).Unix(),
		}),
		"expired": hs256Token(t, "s3cret", jwtv5.MapClaims{
			"iss": "https://platform.example",
			"exp": time.Now().Add(-time.Minute).Unix(),
		}),
		"no expiry": hs256Token(t, "s3cret", jwtv5.MapClaims{
			"iss": "https://platform.example",
		}),
		"garbage": "not.a.jwt",
	}
	for name, tok := range cases {
		if _, err := v.Verify(ctx, tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestVerify_RS256ViaJWKS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa: %v", err)
	}

	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := big.NewInt(int64(priv.PublicKey.E))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "kid-1",
				"n":   base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(e.Bytes()),
			}},
		})
	}))
	defer jwksSrv.Close()

	v, err := New(Config{JWKSURL: jwksSrv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, baseClaims())
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := v.Verify(context.Background(), signed); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Unknown kid is rejected.
	tok2 := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, baseClaims())
	tok2.Header["kid"] = "kid-unknown"
	signed2, _ := tok2.SignedString(priv)
	if _, err := v.Verify(context.Background(), signed2); err == nil {
		t.Fatal("unknown kid accepted")
	}
}

func TestFromRequest(t *testing.T) {
	v, _ := New(Config{SharedSecret: "s3cret"})

	r := httptest.NewRequest(http.MethodPost, "/v1/triggers/token-generation", nil)
	if _, err := v.FromRequest(r); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing header: %v", err)
	}

	r.Header.Set("Authorization", "Bearer "+hs256Token(t, "s3cret", baseClaims()))
	if _, err := v.FromRequest(r); err != nil {
		t.Fatalf("valid bearer rejected: %v", err)
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
