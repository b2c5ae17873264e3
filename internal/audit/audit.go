package audit

import (
	"context"
	"time"

	"github.com/dropDatabas3/claimbridge/internal/observability/logger"
	"go.uber.org/zap"
)

// Log writes a structured audit event through the scoped logger. Audit
// lines are the operator-facing trail of what was written to the property
// store and what was injected into tokens.
func Log(ctx context.Context, event string, fields map[string]any) {
	zfields := make([]zap.Field, 0, len(fields)+2)
	zfields = append(zfields,
		zap.String("audit_event", event),
		zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano)),
	)
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}
	logger.From(ctx).Named("audit").Info(event, zfields...)
}
