package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/claimbridge/internal/audit"
	"github.com/dropDatabas3/claimbridge/internal/cache"
	"github.com/dropDatabas3/claimbridge/internal/claims"
	"github.com/dropDatabas3/claimbridge/internal/metrics"
	"github.com/dropDatabas3/claimbridge/internal/observability/logger"
	"github.com/dropDatabas3/claimbridge/internal/propstore"
)

// ErrMissingUserID means the platform delivered a post-authentication event
// without a user identifier. That breaks the event contract and almost
// always points at a misconfigured trigger, so it must surface loudly
// instead of being skipped.
var ErrMissingUserID = errors.New("flow: post-authentication event without user id")

// ensureCacheKey marks "the snapshot property definition exists" in the
// cache. Definitions are never deleted in normal operation, so a long TTL
// only bounds how fast a wiped store is noticed.
const (
	ensureCacheKey = "propdef:" + propstore.SnapshotPropertyKey
	ensureCacheTTL = time.Hour
)

// Capturer handles post-authentication events: it filters the IdP claims
// and overwrites the user's stored snapshot. Failures propagate to the
// caller; the platform's own retry policy decides what happens next.
type Capturer struct {
	store      propstore.Store
	cache      cache.Cache
	categoryID string

	ensure singleflight.Group
}

// NewCapturer wires a capturer. cache may be nil; the existence check then
// hits the store on every capture, which is correct but chattier.
func NewCapturer(store propstore.Store, c cache.Cache, categoryID string) *Capturer {
	return &Capturer{store: store, cache: c, categoryID: categoryID}
}

// Capture runs the capture flow for one event. A nil return with no side
// effects is the normal outcome for non-federated logins and for federated
// logins whose provider handed over no claims.
func (c *Capturer) Capture(ctx context.Context, evt *PostAuthEvent) error {
	log := logger.From(ctx)

	if evt == nil || evt.Provider == nil || evt.Provider.Protocol == "" {
		log.Debug("capture skipped: no federated provider on event")
		metrics.RecordCapture("", "skipped")
		return nil
	}
	prov := evt.Provider
	if !supportedProtocol(prov.Protocol) {
		log.Debug("capture skipped: unsupported protocol",
			logger.Provider(prov.Provider), logger.String("protocol", prov.Protocol))
		metrics.RecordCapture(prov.Provider, "skipped")
		return nil
	}
	rawClaims := prov.Data.IDToken.Claims
	if len(rawClaims) == 0 {
		log.Debug("capture skipped: provider sent no identity token claims",
			logger.Provider(prov.Provider))
		metrics.RecordCapture(prov.Provider, "skipped")
		return nil
	}

	userID := ""
	if evt.Context.User != nil {
		userID = evt.Context.User.ID
	}
	if userID == "" {
		metrics.RecordCapture(prov.Provider, "failed")
		return ErrMissingUserID
	}

	if err := c.ensureProperty(ctx); err != nil {
		metrics.RecordCapture(prov.Provider, "failed")
		return fmt.Errorf("ensure snapshot property: %w", err)
	}

	snap := claims.NewSnapshot(prov.Provider, claims.Filter(rawClaims))
	value, err := snap.Marshal()
	if err != nil {
		metrics.RecordCapture(prov.Provider, "failed")
		return err
	}

	// Full overwrite of the prior snapshot; racing captures are
	// last-writer-wins by design, no read-modify-merge.
	if err := c.store.PatchUserProperties(ctx, userID, map[string]string{
		propstore.SnapshotPropertyKey: value,
	}); err != nil {
		metrics.RecordCapture(prov.Provider, "failed")
		return fmt.Errorf("store snapshot for user %s: %w", userID, err)
	}

	log.Info("idp claims snapshot stored",
		logger.Provider(prov.Provider),
		logger.UserID(userID),
		logger.PropertyKey(propstore.SnapshotPropertyKey),
		logger.Count(len(snap.Fields)),
	)
	audit.Log(ctx, "claims.capture.stored", map[string]any{
		"provider": prov.Provider,
		"user_id":  userID,
		"fields":   len(snap.Fields),
	})
	metrics.RecordCapture(prov.Provider, "stored")
	return nil
}

// ensureProperty makes sure the snapshot property definition exists.
// Idempotent: a lost create race (already exists) is success. Concurrent
// in-process captures collapse into one store round-trip via singleflight.
func (c *Capturer) ensureProperty(ctx context.Context) error {
	if c.cache != nil {
		if _, ok := c.cache.Get(ensureCacheKey); ok {
			metrics.RecordPropertyEnsure("cached")
			return nil
		}
	}

	_, err, _ := c.ensure.Do(ensureCacheKey, func() (any, error) {
		defs, err := c.store.ListProperties(ctx, propstore.ScopeUser)
		if err != nil {
			metrics.RecordPropertyEnsure("failed")
			return nil, err
		}
		for _, d := range defs {
			if d.Key == propstore.SnapshotPropertyKey {
				c.markEnsured()
				metrics.RecordPropertyEnsure("already_exists")
				return nil, nil
			}
		}

		outcome, err := c.store.CreateProperty(ctx, propstore.SnapshotProperty(c.categoryID))
		if err != nil {
			metrics.RecordPropertyEnsure("failed")
			return nil, err
		}
		c.markEnsured()
		metrics.RecordPropertyEnsure(outcome.String())
		logger.From(ctx).Info("snapshot property ensured",
			logger.PropertyKey(propstore.SnapshotPropertyKey),
			logger.String("outcome", outcome.String()),
		)
		return nil, nil
	})
	return err
}

func (c *Capturer) markEnsured() {
	if c.cache != nil {
		c.cache.Set(ensureCacheKey, []byte("1"), ensureCacheTTL)
	}
}
