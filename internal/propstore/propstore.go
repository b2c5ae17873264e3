// Package propstore wraps the auth platform's management API as a small
// property-store capability: list/create property definitions and
// read/patch per-user property values. The capture and projection flows
// depend only on the Store interface; the HTTP client and the in-memory
// implementation live behind it.
package propstore

import (
	"context"
	"errors"
)

// Scope selects which kind of entity a property attaches to.
// Only user scope is used today.
type Scope string

const ScopeUser Scope = "usr"

// Fixed attributes of the snapshot property. The key is a constant by
// contract; only the category is deployment-specific.
const (
	SnapshotPropertyKey  = "idp_claims"
	SnapshotPropertyName = "IdP claims"
	SnapshotPropertyDesc = "Latest filtered identity provider claims captured at social login"
	SnapshotPropertyType = "multi_line_text"
)

var (
	ErrNotFound     = errors.New("propstore: not found")
	ErrUnauthorized = errors.New("propstore: unauthorized")
	ErrUnavailable  = errors.New("propstore: upstream unavailable")
)

// PropertyDefinition describes a named, typed storage slot that must exist
// before a value can be patched onto a user.
type PropertyDefinition struct {
	ID          string
	Key         string
	Name        string
	Description string
	Type        string
	Scope       Scope
	Private     bool
	CategoryID  string
}

// SnapshotProperty returns the definition of the snapshot slot for the
// given category. Everything except the category is fixed.
func SnapshotProperty(categoryID string) PropertyDefinition {
	return PropertyDefinition{
		Key:         SnapshotPropertyKey,
		Name:        SnapshotPropertyName,
		Description: SnapshotPropertyDesc,
		Type:        SnapshotPropertyType,
		Scope:       ScopeUser,
		Private:     false,
		CategoryID:  categoryID,
	}
}

// CreateOutcome is the tri-state result of CreateProperty. The store is
// shared and creation races are expected, so "already existed" is a
// success outcome, not an error.
type CreateOutcome int

const (
	OutcomeCreated CreateOutcome = iota
	OutcomeAlreadyExists
)

func (o CreateOutcome) String() string {
	if o == OutcomeAlreadyExists {
		return "already_exists"
	}
	return "created"
}

// Store is the property-store capability consumed by the flows. Each call
// is a single blocking request; the remote end guarantees that a property
// value write is atomic (readers never see a partial value).
type Store interface {
	// ListProperties returns every property definition in the given scope.
	ListProperties(ctx context.Context, scope Scope) ([]PropertyDefinition, error)

	// CreateProperty registers a new definition. A concurrent create by
	// another writer yields OutcomeAlreadyExists with a nil error.
	CreateProperty(ctx context.Context, def PropertyDefinition) (CreateOutcome, error)

	// GetUserProperties returns the user's property values keyed by
	// property key. A user with no values yields an empty map.
	GetUserProperties(ctx context.Context, userID string) (map[string]string, error)

	// PatchUserProperties overwrites the given property values on the
	// user. Values for keys not present in the map are left untouched.
	PatchUserProperties(ctx context.Context, userID string, values map[string]string) error
}
