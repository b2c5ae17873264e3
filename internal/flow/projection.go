package flow

import (
	"context"
	"errors"

	"github.com/dropDatabas3/claimbridge/internal/claims"
	"github.com/dropDatabas3/claimbridge/internal/metrics"
	"github.com/dropDatabas3/claimbridge/internal/observability/logger"
	"github.com/dropDatabas3/claimbridge/internal/propstore"
)

// ClaimPrefix is the fixed transform applied to every projected claim
// name: sub -> idp_sub. It keeps projected claims away from anything the
// issuance pipeline sets itself.
const ClaimPrefix = "idp_"

// Projector handles token-generation events: it reads the stored snapshot
// and adds its fields to both token claim bags. Projection must never
// block or fail token issuance, so every failure here is absorbed: logged,
// counted, and answered with zero claims added.
type Projector struct {
	store propstore.Store
}

// NewProjector wires a projector over the property store.
func NewProjector(store propstore.Store) *Projector {
	return &Projector{store: store}
}

// Project populates accessToken and idToken from the user's snapshot and
// returns how many claims were added (diagnostics only). It only ever adds
// entries to the bags; an existing claim under a colliding name is simply
// overwritten.
func (p *Projector) Project(ctx context.Context, evt *TokenGenEvent, accessToken, idToken ClaimBag) int {
	log := logger.From(ctx)

	userID := evt.UserID()
	if userID == "" {
		// Token issuance for an unidentified principal is not our concern.
		log.Debug("projection skipped: token event without user id")
		metrics.RecordProjection("no_user", 0)
		return 0
	}

	props, err := p.store.GetUserProperties(ctx, userID)
	if err != nil {
		if errors.Is(err, propstore.ErrNotFound) {
			metrics.RecordProjection("no_snapshot", 0)
			return 0
		}
		log.Warn("projection skipped: property store unreachable",
			logger.UserID(userID), logger.Err(err))
		metrics.RecordProjection("store_error", 0)
		return 0
	}

	raw, ok := props[propstore.SnapshotPropertyKey]
	if !ok || raw == "" {
		// User never logged in through a supported provider, or capture
		// has not run yet. Nothing to project.
		metrics.RecordProjection("no_snapshot", 0)
		return 0
	}

	snap, err := claims.ParseSnapshot(raw)
	if err != nil {
		log.Warn("projection skipped: stored snapshot is malformed",
			logger.UserID(userID), logger.PropertyKey(propstore.SnapshotPropertyKey), logger.Err(err))
		metrics.RecordProjection("malformed", 0)
		return 0
	}

	added := 0
	for name, value := range snap.Fields {
		accessToken.Set(ClaimPrefix+name, value)
		idToken.Set(ClaimPrefix+name, value)
		added++
	}

	log.Info("idp claims projected",
		logger.UserID(userID),
		logger.Provider(snap.Provider),
		logger.ClaimsAdded(added),
	)
	metrics.RecordProjection("projected", added)
	return added
}
