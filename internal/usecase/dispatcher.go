package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/trackzen/trackd/internal/domain"
)

// Dispatcher is the send-or-cache path for closed activities. Empty-tab and
// zero-duration activities are discarded outright; everything else is sent
// immediately and falls back to the pending cache on failure. Dispatch never
// surfaces an error - the worst outcome is "stays cached".
type Dispatcher struct {
	store  domain.StateStore
	client domain.TelemetryClient
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store domain.StateStore, client domain.TelemetryClient, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		client: client,
		logger: logger,
	}
}

// Dispatch reports one closed activity under the given session id.
func (d *Dispatcher) Dispatch(ctx context.Context, activity domain.Activity, sessionID string) {
	if activity.Discardable() {
		d.logger.Debug("discarding activity",
			zap.String("domain", activity.Domain),
			zap.String("title", activity.Title),
			zap.Int("duration_min", activity.Duration))
		return
	}

	if err := d.client.CreateActivity(ctx, activity, sessionID); err != nil {
		d.logger.Warn("failed to send activity, caching it",
			zap.String("domain", activity.Domain),
			zap.Error(err))
		if err := d.store.AppendPendingActivity(ctx, activity); err != nil {
			// No lower-level fallback exists; this activity is lost.
			d.logger.Error("failed to cache activity", zap.Error(err))
		}
		return
	}

	d.logger.Debug("activity sent",
		zap.String("domain", activity.Domain),
		zap.Int("duration_min", activity.Duration))
}
