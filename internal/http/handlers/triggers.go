// Package handlers exposes the platform-facing trigger endpoints. They
// are thin: decode the delivery, hand it to the flow, map the outcome to
// a status the platform's retry policy understands.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/claimbridge/internal/flow"
	"github.com/dropDatabas3/claimbridge/internal/observability/logger"
	"github.com/dropDatabas3/claimbridge/internal/propstore"
)

// Triggers holds the wired flow handlers.
type Triggers struct {
	Capturer  *flow.Capturer
	Projector *flow.Projector
}

func NewTriggers(c *flow.Capturer, p *flow.Projector) *Triggers {
	return &Triggers{Capturer: c, Projector: p}
}

// PostAuthentication handles POST /v1/triggers/post-authentication.
//
// 204: captured, or a valid-but-unsupported login (no-op).
// 400: body is not a post-authentication event.
// 422: event violates the contract (no user id) — retrying won't help.
// 502: property store failed — the platform should retry per its policy.
func (t *Triggers) PostAuthentication(w http.ResponseWriter, r *http.Request) {
	var evt flow.PostAuthEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	err := t.Capturer.Capture(r.Context(), &evt)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, flow.ErrMissingUserID):
		logger.From(r.Context()).Error("post-authentication event without user id")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.From(r.Context()).Error("capture failed", logger.Err(err))
		if errors.Is(err, propstore.ErrUnauthorized) {
			writeError(w, http.StatusBadGateway, "management api rejected credentials")
			return
		}
		writeError(w, http.StatusBadGateway, "property store error")
	}
}

// tokenGenRequest is the token-generation delivery: the event plus the
// claim bags the issuance pipeline has built so far.
type tokenGenRequest struct {
	flow.TokenGenEvent
	AccessTokenClaims flow.ClaimBag `json:"accessTokenClaims"`
	IDTokenClaims     flow.ClaimBag `json:"idTokenClaims"`
}

type tokenGenResponse struct {
	AccessTokenClaims flow.ClaimBag `json:"accessTokenClaims"`
	IDTokenClaims     flow.ClaimBag `json:"idTokenClaims"`
	ClaimsAdded       int           `json:"claimsAdded"`
}

// TokenGeneration handles POST /v1/triggers/token-generation.
//
// Always 200: projection must never block token issuance. The response
// carries the (possibly unchanged) claim bags for the host to merge into
// the minted token, plus a diagnostic count.
func (t *Triggers) TokenGeneration(w http.ResponseWriter, r *http.Request) {
	var req tokenGenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Even a broken delivery must not fail the mint.
		logger.From(r.Context()).Warn("token-generation delivery unparseable", logger.Err(err))
		writeJSON(w, http.StatusOK, tokenGenResponse{
			AccessTokenClaims: flow.ClaimBag{}, IDTokenClaims: flow.ClaimBag{},
		})
		return
	}

	if req.AccessTokenClaims == nil {
		req.AccessTokenClaims = flow.ClaimBag{}
	}
	if req.IDTokenClaims == nil {
		req.IDTokenClaims = flow.ClaimBag{}
	}

	added := t.Projector.Project(r.Context(), &req.TokenGenEvent, req.AccessTokenClaims, req.IDTokenClaims)
	writeJSON(w, http.StatusOK, tokenGenResponse{
		AccessTokenClaims: req.AccessTokenClaims,
		IDTokenClaims:     req.IDTokenClaims,
		ClaimsAdded:       added,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
