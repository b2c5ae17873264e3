// Package flow implements the two workflow handlers this service exists
// for: capture (post-authentication) and projection (token-generation).
// The handlers never call each other; the only thing they share is the
// snapshot persisted through the property store, last-writer-wins.
package flow

import "strings"

// supportedProtocols marks the connection protocols whose identity tokens
// carry claims we can capture. Anything else makes capture a no-op.
var supportedProtocols = map[string]struct{}{
	"oauth2": {},
	"oidc":   {},
}

func supportedProtocol(p string) bool {
	_, ok := supportedProtocols[strings.ToLower(strings.TrimSpace(p))]
	return ok
}

// PostAuthEvent is the platform's post-authentication trigger payload.
// Fields we do not consume are left out on purpose; unknown JSON is ignored.
type PostAuthEvent struct {
	Provider *ProviderInfo `json:"provider,omitempty"`
	Context  EventContext  `json:"context"`
}

// ProviderInfo describes the connection that authenticated the session.
type ProviderInfo struct {
	// Provider is the IdP identifier (google, github, azure...).
	Provider string       `json:"provider"`
	Protocol string       `json:"protocol"`
	Data     ProviderData `json:"data"`
}

type ProviderData struct {
	IDToken IDToken `json:"idToken"`
}

type IDToken struct {
	Claims map[string]any `json:"claims"`
}

type EventContext struct {
	User *EventUser `json:"user,omitempty"`
}

type EventUser struct {
	ID string `json:"id"`
}

// TokenGenEvent is the token-generation trigger payload. Depending on the
// platform version the user arrives at the top level or inside context.
type TokenGenEvent struct {
	User    *EventUser   `json:"user,omitempty"`
	Context EventContext `json:"context"`
}

// UserID resolves the user identifier from either location.
func (e *TokenGenEvent) UserID() string {
	if e == nil {
		return ""
	}
	if e.User != nil && e.User.ID != "" {
		return e.User.ID
	}
	if e.Context.User != nil {
		return e.Context.User.ID
	}
	return ""
}

// ClaimBag is a mutable token claim mapping owned by the host's issuance
// pipeline. The projection handler only ever adds entries; an existing
// claim under the same name is overwritten (last write wins, accepted).
type ClaimBag map[string]any

// Set writes a claim into the bag.
func (b ClaimBag) Set(name string, value any) {
	b[name] = value
}
