package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/claimbridge/internal/propstore"
)

// readFailStore fails every read; writes are never reached by projection.
type readFailStore struct {
	*propstore.Memory
	getErr error
}

func (s *readFailStore) GetUserProperties(ctx context.Context, userID string) (map[string]string, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Memory.GetUserProperties(ctx, userID)
}

func tokenEvent(userID string) *TokenGenEvent {
	if userID == "" {
		return &TokenGenEvent{}
	}
	return &TokenGenEvent{User: &EventUser{ID: userID}}
}

func seedSnapshot(t *testing.T, store propstore.Store, userID, raw string) {
	t.Helper()
	err := store.PatchUserProperties(context.Background(), userID, map[string]string{
		propstore.SnapshotPropertyKey: raw,
	})
	require.NoError(t, err)
}

func TestProject_Completeness(t *testing.T) {
	store := propstore.NewMemory()
	seedSnapshot(t, store, "u1", `{"a":1,"b":"x","_provider":"google","_last_updated":"T"}`)

	access, id := ClaimBag{}, ClaimBag{}
	added := NewProjector(store).Project(context.Background(), tokenEvent("u1"), access, id)

	require.Equal(t, 2, added)
	for _, bag := range []ClaimBag{access, id} {
		require.Equal(t, 1.0, bag["idp_a"])
		require.Equal(t, "x", bag["idp_b"])
		require.Len(t, bag, 2)
		for name := range bag {
			require.NotContains(t, name, "_provider")
			require.NotContains(t, name, "_last_updated")
		}
	}
}

func TestProject_NoUserID(t *testing.T) {
	store := propstore.NewMemory()
	access, id := ClaimBag{}, ClaimBag{}

	added := NewProjector(store).Project(context.Background(), tokenEvent(""), access, id)
	require.Zero(t, added)
	require.Empty(t, access)
	require.Empty(t, id)
}

func TestProject_UserIDFromContext(t *testing.T) {
	store := propstore.NewMemory()
	seedSnapshot(t, store, "u1", `{"a":1,"_provider":"google","_last_updated":"T"}`)

	evt := &TokenGenEvent{Context: EventContext{User: &EventUser{ID: "u1"}}}
	access, id := ClaimBag{}, ClaimBag{}
	require.Equal(t, 1, NewProjector(store).Project(context.Background(), evt, access, id))
}

func TestProject_AbsentSnapshot(t *testing.T) {
	store := propstore.NewMemory()
	access, id := ClaimBag{}, ClaimBag{}

	added := NewProjector(store).Project(context.Background(), tokenEvent("never-logged-in"), access, id)
	require.Zero(t, added)
	require.Empty(t, access)
}

func TestProject_MalformedSnapshot(t *testing.T) {
	store := propstore.NewMemory()
	seedSnapshot(t, store, "u1", "{corrupt")

	access, id := ClaimBag{}, ClaimBag{}
	added := NewProjector(store).Project(context.Background(), tokenEvent("u1"), access, id)
	require.Zero(t, added)
	require.Empty(t, access)
	require.Empty(t, id)
}

func TestProject_StoreFailureIsAbsorbed(t *testing.T) {
	store := &readFailStore{Memory: propstore.NewMemory(), getErr: errors.New("api down")}

	access, id := ClaimBag{}, ClaimBag{}
	// Must not panic and must not report an error: issuance goes on.
	added := NewProjector(store).Project(context.Background(), tokenEvent("u1"), access, id)
	require.Zero(t, added)
}

func TestProject_UserNotFoundIsAbsorbed(t *testing.T) {
	store := &readFailStore{Memory: propstore.NewMemory(), getErr: propstore.ErrNotFound}

	added := NewProjector(store).Project(context.Background(), tokenEvent("ghost"), ClaimBag{}, ClaimBag{})
	require.Zero(t, added)
}

func TestProject_OnlyAddsNeverRemoves(t *testing.T) {
	store := propstore.NewMemory()
	seedSnapshot(t, store, "u1", `{"email":"a@b.com","_provider":"google","_last_updated":"T"}`)

	access := ClaimBag{"scope": "openid", "idp_email": "stale@old.com"}
	id := ClaimBag{"aud": "client-1"}
	NewProjector(store).Project(context.Background(), tokenEvent("u1"), access, id)

	// Pre-existing unrelated claims survive; a colliding name is overwritten.
	require.Equal(t, "openid", access["scope"])
	require.Equal(t, "a@b.com", access["idp_email"])
	require.Equal(t, "client-1", id["aud"])
}
