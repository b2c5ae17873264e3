package propstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newAPIServer fakes the management API: one token endpoint, one property
// collection, one user property bag.
func newAPIServer(t *testing.T, tokenCalls *atomic.Int32) (*httptest.Server, *Memory) {
	t.Helper()
	mem := NewMemory()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenCalls != nil {
			tokenCalls.Add(1)
		}
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		if r.Form.Get("client_id") != "cid" || r.Form.Get("client_secret") != "csecret" {
			http.Error(w, "bad creds", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1", "token_type": "bearer", "expires_in": 3600,
		})
	})

	requireBearer := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("GET /api/v1/properties", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		defs, _ := mem.ListProperties(r.Context(), Scope(r.URL.Query().Get("context")))
		props := make([]propertyJSON, 0, len(defs))
		for _, d := range defs {
			props = append(props, propertyJSON{ID: d.ID, Key: d.Key, Name: d.Name, Context: string(d.Scope), CategoryID: d.CategoryID})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"properties": props})
	})

	mux.HandleFunc("POST /api/v1/properties", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		var p propertyJSON
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		out, _ := mem.CreateProperty(r.Context(), PropertyDefinition{Key: p.Key, Name: p.Name, Scope: Scope(p.Context), CategoryID: p.CategoryID})
		if out == OutcomeAlreadyExists {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"errors": []map[string]string{{"code": "PROPERTY_DUPLICATE", "message": "key already registered"}},
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("GET /api/v1/users/{id}/properties", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		vals, _ := mem.GetUserProperties(r.Context(), r.PathValue("id"))
		props := make([]map[string]string, 0, len(vals))
		for k, v := range vals {
			props = append(props, map[string]string{"key": k, "value": v})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"properties": props})
	})

	mux.HandleFunc("PATCH /api/v1/users/{id}/properties", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		var body struct {
			Properties map[string]string `json:"properties"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_ = mem.PatchUserProperties(r.Context(), r.PathValue("id"), body.Properties)
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mem
}

func TestHTTPStore_TokenCachedAcrossCalls(t *testing.T) {
	var calls atomic.Int32
	srv, _ := newAPIServer(t, &calls)
	s := NewHTTPStore(srv.URL, "cid", "csecret", "", 5*time.Second)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.ListProperties(ctx, ScopeUser); err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 token fetch, got %d", got)
	}
}

func TestHTTPStore_BadCredentials(t *testing.T) {
	srv, _ := newAPIServer(t, nil)
	s := NewHTTPStore(srv.URL, "cid", "wrong", "", 5*time.Second)

	_, err := s.ListProperties(context.Background(), ScopeUser)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestHTTPStore_CreateProperty_DuplicateIsSuccess(t *testing.T) {
	srv, _ := newAPIServer(t, nil)
	s := NewHTTPStore(srv.URL, "cid", "csecret", "", 5*time.Second)
	ctx := context.Background()
	def := SnapshotProperty("cat-1")

	out, err := s.CreateProperty(ctx, def)
	if err != nil || out != OutcomeCreated {
		t.Fatalf("first create: out=%v err=%v", out, err)
	}
	out, err = s.CreateProperty(ctx, def)
	if err != nil || out != OutcomeAlreadyExists {
		t.Fatalf("second create: out=%v err=%v", out, err)
	}

	defs, err := s.ListProperties(ctx, ScopeUser)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	count := 0
	for _, d := range defs {
		if d.Key == SnapshotPropertyKey {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one definition, got %d", count)
	}
}

func TestHTTPStore_PatchAndGetUserProperties(t *testing.T) {
	srv, _ := newAPIServer(t, nil)
	s := NewHTTPStore(srv.URL, "cid", "csecret", "", 5*time.Second)
	ctx := context.Background()

	if err := s.PatchUserProperties(ctx, "user-1", map[string]string{SnapshotPropertyKey: `{"sub":"u1"}`}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	vals, err := s.GetUserProperties(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if vals[SnapshotPropertyKey] != `{"sub":"u1"}` {
		t.Fatalf("unexpected values: %#v", vals)
	}
}

func TestHTTPStore_UnreachableIsUnavailable(t *testing.T) {
	s := NewHTTPStore("http://127.0.0.1:1", "cid", "csecret", "", 500*time.Millisecond)
	_, err := s.GetUserProperties(context.Background(), "user-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
