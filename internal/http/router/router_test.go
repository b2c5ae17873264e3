package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/claimbridge/internal/flow"
	"github.com/dropDatabas3/claimbridge/internal/http/handlers"
	"github.com/dropDatabas3/claimbridge/internal/propstore"
	"github.com/dropDatabas3/claimbridge/internal/security/trigauth"
)

func newTestRouter(t *testing.T, verifier *trigauth.Verifier) (http.Handler, *propstore.Memory) {
	t.Helper()
	store := propstore.NewMemory()
	trig := handlers.NewTriggers(
		flow.NewCapturer(store, nil, "cat-1"),
		flow.NewProjector(store),
	)
	return New(Deps{Triggers: trig, Verifier: verifier}), store
}

func postJSON(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postAuthBody(userID string) map[string]any {
	return map[string]any{
		"provider": map[string]any{
			"provider": "google",
			"protocol": "oauth2",
			"data": map[string]any{
				"idToken": map[string]any{
					"claims": map[string]any{
						"sub":   "u1",
						"email": "a@b.com",
						"iss":   "https://accounts.google.com",
					},
				},
			},
		},
		"context": map[string]any{"user": map[string]any{"id": userID}},
	}
}

func TestTriggers_CaptureThenTokenGeneration(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := postJSON(t, h, "/v1/triggers/post-authentication", postAuthBody("u1"), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = postJSON(t, h, "/v1/triggers/token-generation", map[string]any{
		"user":              map[string]any{"id": "u1"},
		"accessTokenClaims": map[string]any{"scope": "openid"},
		"idTokenClaims":     map[string]any{},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessTokenClaims map[string]any `json:"accessTokenClaims"`
		IDTokenClaims     map[string]any `json:"idTokenClaims"`
		ClaimsAdded       int            `json:"claimsAdded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.ClaimsAdded)
	require.Equal(t, "u1", resp.AccessTokenClaims["idp_sub"])
	require.Equal(t, "a@b.com", resp.IDTokenClaims["idp_email"])
	require.Equal(t, "openid", resp.AccessTokenClaims["scope"])
	require.NotContains(t, resp.AccessTokenClaims, "idp_iss")
}

func TestTriggers_PostAuthStatusMapping(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	// Password login: not federated, nothing to capture.
	rec := postJSON(t, h, "/v1/triggers/post-authentication", map[string]any{
		"context": map[string]any{"user": map[string]any{"id": "u1"}},
	}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Broken contract: federated login without user id.
	rec = postJSON(t, h, "/v1/triggers/post-authentication", postAuthBody(""), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Not JSON at all.
	req := httptest.NewRequest(http.MethodPost, "/v1/triggers/post-authentication", bytes.NewReader([]byte("nope")))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestTriggers_TokenGenerationNeverFails(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	// Unknown user: 200 with bags untouched.
	rec := postJSON(t, h, "/v1/triggers/token-generation", map[string]any{
		"user": map[string]any{"id": "ghost"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Garbage body: still 200.
	req := httptest.NewRequest(http.MethodPost, "/v1/triggers/token-generation", bytes.NewReader([]byte("{broken")))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestTriggers_Auth(t *testing.T) {
	verifier, err := trigauth.New(trigauth.Config{SharedSecret: "s3cret"})
	require.NoError(t, err)
	h, _ := newTestRouter(t, verifier)

	// No token: rejected before the flow runs.
	rec := postJSON(t, h, "/v1/triggers/post-authentication", postAuthBody("u1"), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Signed delivery passes.
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"iss": "https://platform.example",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	rec = postJSON(t, h, "/v1/triggers/post-authentication", postAuthBody("u1"),
		map[string]string{"Authorization": "Bearer " + signed})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Probes stay open.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestReadyz_DegradedWhenStoreDown(t *testing.T) {
	h := New(Deps{
		Triggers: handlers.NewTriggers(nil, nil),
		Ready:    pingErr{},
	})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type pingErr struct{}

func (pingErr) Ping(ctx context.Context) error { return context.DeadlineExceeded }
