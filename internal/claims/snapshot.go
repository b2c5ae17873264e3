package claims

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MetaPrefix marks metadata keys inside the stored JSON object.
	// Non-metadata claim names must never start with it, and keys that do
	// are never projected into tokens.
	MetaPrefix = "_"

	metaProvider    = "_provider"
	metaLastUpdated = "_last_updated"
)

var (
	ErrEmptySnapshot   = errors.New("claims: empty snapshot value")
	ErrReservedField   = errors.New("claims: field name uses reserved metadata prefix")
	ErrInvalidSnapshot = errors.New("claims: invalid snapshot")
)

// Snapshot is the durable record written at capture time and read back at
// projection time. Both flows share this one type so the wire format cannot
// drift between them.
type Snapshot struct {
	// Provider is the IdP identifier of the connection that produced the claims.
	Provider string
	// UpdatedAt is the capture timestamp, RFC3339 UTC.
	UpdatedAt string
	// Fields are the filtered claims. No key starts with MetaPrefix.
	Fields map[string]any
}

// NewSnapshot builds a snapshot stamped with the current time.
// Filtered fields are stored as-is; the caller owns filtering.
func NewSnapshot(provider string, fields map[string]any) *Snapshot {
	return &Snapshot{
		Provider:  provider,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Fields:    fields,
	}
}

// Marshal serializes the snapshot to the flat JSON object stored in the
// user property: every field at top level plus the two metadata keys.
func (s *Snapshot) Marshal() (string, error) {
	flat := make(map[string]any, len(s.Fields)+2)
	for name, value := range s.Fields {
		if strings.HasPrefix(name, MetaPrefix) {
			return "", fmt.Errorf("%w: %q", ErrReservedField, name)
		}
		flat[name] = value
	}
	flat[metaProvider] = s.Provider
	flat[metaLastUpdated] = s.UpdatedAt

	b, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("claims: marshal snapshot: %w", err)
	}
	return string(b), nil
}

// ParseSnapshot decodes a stored property value back into a Snapshot.
// Unknown metadata keys (any "_"-prefixed key) are tolerated and dropped so
// the format can grow without breaking old readers; they never reach Fields.
func ParseSnapshot(raw string) (*Snapshot, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptySnapshot
	}

	var flat map[string]any
	if err := json.Unmarshal([]byte(raw), &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	snap := &Snapshot{Fields: make(map[string]any, len(flat))}
	for name, value := range flat {
		switch {
		case name == metaProvider:
			if p, ok := value.(string); ok {
				snap.Provider = p
			}
		case name == metaLastUpdated:
			if ts, ok := value.(string); ok {
				snap.UpdatedAt = ts
			}
		case strings.HasPrefix(name, MetaPrefix):
			// Metadata from a newer writer: ignore.
		default:
			snap.Fields[name] = value
		}
	}
	return snap, nil
}
