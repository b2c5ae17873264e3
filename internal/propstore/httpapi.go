package propstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// tokenSkew renews the management token a bit before it actually expires.
const tokenSkew = 30 * time.Second

// HTTPStore talks to the platform's management API. Authentication is
// OAuth2 client credentials; the bearer token is cached until shortly
// before expiry and refreshed behind a singleflight so concurrent handler
// invocations trigger at most one refresh.
type HTTPStore struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Audience     string

	http *http.Client

	mu      sync.RWMutex
	token   string
	tokenAt time.Time

	sf singleflight.Group
}

// NewHTTPStore builds a client for the management API at baseURL.
func NewHTTPStore(baseURL, clientID, clientSecret, audience string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStore{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Audience:     audience,
		http:         &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *HTTPStore) bearer(ctx context.Context) (string, error) {
	s.mu.RLock()
	tok, exp := s.token, s.tokenAt
	s.mu.RUnlock()
	if tok != "" && time.Until(exp) > tokenSkew {
		return tok, nil
	}

	v, err, _ := s.sf.Do("token", func() (any, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", s.ClientID)
		form.Set("client_secret", s.ClientSecret)
		if s.Audience != "" {
			form.Set("audience", s.Audience)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: token request: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: token endpoint status %d", ErrUnauthorized, resp.StatusCode)
		}
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("%w: token endpoint status %d", ErrUnavailable, resp.StatusCode)
		}

		var tr tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return nil, fmt.Errorf("decode token response: %w", err)
		}
		if tr.AccessToken == "" {
			return nil, fmt.Errorf("%w: empty access token", ErrUnauthorized)
		}

		s.mu.Lock()
		s.token = tr.AccessToken
		s.tokenAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
		s.mu.Unlock()
		return tr.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// do performs an authenticated request and returns status + body.
func (s *HTTPStore) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	tok, err := s.bearer(ctx)
	if err != nil {
		return 0, nil, err
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, b, nil
}

type propertyJSON struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Context     string `json:"context,omitempty"`
	IsPrivate   bool   `json:"is_private"`
	CategoryID  string `json:"category_id,omitempty"`
}

type listPropertiesResponse struct {
	Properties []propertyJSON `json:"properties"`
	NextToken  string         `json:"next_token,omitempty"`
}

// ListProperties pages through /api/v1/properties for the given scope.
func (s *HTTPStore) ListProperties(ctx context.Context, scope Scope) ([]PropertyDefinition, error) {
	var out []PropertyDefinition
	next := ""
	for {
		path := "/api/v1/properties?context=" + url.QueryEscape(string(scope))
		if next != "" {
			path += "&starting_after=" + url.QueryEscape(next)
		}
		status, body, err := s.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if err := statusErr(status, body, "list properties"); err != nil {
			return nil, err
		}

		var lr listPropertiesResponse
		if err := json.Unmarshal(body, &lr); err != nil {
			return nil, fmt.Errorf("decode properties list: %w", err)
		}
		for _, p := range lr.Properties {
			out = append(out, PropertyDefinition{
				ID:          p.ID,
				Key:         p.Key,
				Name:        p.Name,
				Description: p.Description,
				Type:        p.Type,
				Scope:       Scope(p.Context),
				Private:     p.IsPrivate,
				CategoryID:  p.CategoryID,
			})
		}
		if lr.NextToken == "" {
			return out, nil
		}
		next = lr.NextToken
	}
}

type apiErrors struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// CreateProperty registers the definition. A 409, or a 400 carrying a
// duplicate error code, maps to OutcomeAlreadyExists: some other writer
// won the race and that is fine.
func (s *HTTPStore) CreateProperty(ctx context.Context, def PropertyDefinition) (CreateOutcome, error) {
	payload := propertyJSON{
		Key:         def.Key,
		Name:        def.Name,
		Description: def.Description,
		Type:        def.Type,
		Context:     string(def.Scope),
		IsPrivate:   def.Private,
		CategoryID:  def.CategoryID,
	}

	status, body, err := s.do(ctx, http.MethodPost, "/api/v1/properties", payload)
	if err != nil {
		return OutcomeCreated, err
	}
	switch {
	case status/100 == 2:
		return OutcomeCreated, nil
	case status == http.StatusConflict:
		return OutcomeAlreadyExists, nil
	case status == http.StatusBadRequest && isDuplicateError(body):
		return OutcomeAlreadyExists, nil
	}
	return OutcomeCreated, statusErr(status, body, "create property")
}

func isDuplicateError(body []byte) bool {
	var ae apiErrors
	if json.Unmarshal(body, &ae) != nil {
		return false
	}
	for _, e := range ae.Errors {
		if strings.Contains(strings.ToUpper(e.Code), "DUPLICATE") {
			return true
		}
	}
	return false
}

type userPropertiesResponse struct {
	Properties []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"properties"`
}

// GetUserProperties returns the user's property values keyed by property key.
func (s *HTTPStore) GetUserProperties(ctx context.Context, userID string) (map[string]string, error) {
	status, body, err := s.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID)+"/properties", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err := statusErr(status, body, "get user properties"); err != nil {
		return nil, err
	}

	var ur userPropertiesResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return nil, fmt.Errorf("decode user properties: %w", err)
	}
	out := make(map[string]string, len(ur.Properties))
	for _, p := range ur.Properties {
		out[p.Key] = p.Value
	}
	return out, nil
}

// PatchUserProperties overwrites the given values on the user.
func (s *HTTPStore) PatchUserProperties(ctx context.Context, userID string, values map[string]string) error {
	payload := map[string]any{"properties": values}
	status, body, err := s.do(ctx, http.MethodPatch, "/api/v1/users/"+url.PathEscape(userID)+"/properties", payload)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return statusErr(status, body, "patch user properties")
}

// Ping is a cheap reachability check used by the readiness probe: it only
// needs the token endpoint and a list call to succeed.
func (s *HTTPStore) Ping(ctx context.Context) error {
	_, err := s.ListProperties(ctx, ScopeUser)
	return err
}

func statusErr(status int, body []byte, op string) error {
	switch {
	case status/100 == 2:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s status %d", ErrUnauthorized, op, status)
	case status >= 500:
		return fmt.Errorf("%w: %s status %d", ErrUnavailable, op, status)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Errorf("propstore: %s status %d: %s", op, status, msg)
}
