package usecase

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/trackzen/trackd/internal/domain"
)

// Syncer reconciles the pending cache against the collector. One flush pass
// sends the cached session snapshot (create or update depending on whether a
// collector id is known) and then the cached activities, all-or-nothing.
// Failed entries stay cached untouched for the next pass; there is no
// backoff, just the fixed schedule.
type Syncer struct {
	store   domain.StateStore
	client  domain.TelemetryClient
	logger  *zap.Logger
	running atomic.Bool
}

// NewSyncer creates a syncer.
func NewSyncer(store domain.StateStore, client domain.TelemetryClient, logger *zap.Logger) *Syncer {
	return &Syncer{
		store:  store,
		client: client,
		logger: logger,
	}
}

// Sync runs one flush pass. A call while another pass is in flight is
// skipped, never queued; the guard is released on every outcome.
func (s *Syncer) Sync(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("sync already in progress, skipping")
		return
	}
	defer s.running.Store(false)

	s.flushSession(ctx)
	s.flushActivities(ctx)
}

func (s *Syncer) flushSession(ctx context.Context) {
	snap, err := s.store.PendingSession(ctx)
	if err != nil {
		s.logger.Error("failed to read pending session", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}

	sessionID, err := s.store.CurrentSessionID(ctx)
	if err != nil {
		s.logger.Error("failed to read session id", zap.Error(err))
		return
	}

	if sessionID == "" {
		remoteID, err := s.client.CreateSession(ctx, snap.Upsert())
		if err != nil {
			s.logger.Warn("session sync failed", zap.Error(err))
			return
		}
		if err := s.store.SetCurrentSessionID(ctx, remoteID); err != nil {
			s.logger.Error("failed to persist session id", zap.Error(err))
		}
		sessionID = remoteID
	} else {
		if err := s.client.UpdateSession(ctx, sessionID, snap.Upsert()); err != nil {
			s.logger.Warn("session sync failed", zap.Error(err))
			return
		}
	}

	if err := s.store.ClearPendingSession(ctx); err != nil {
		s.logger.Error("failed to clear pending session", zap.Error(err))
		return
	}
	s.logger.Info("pending session synced", zap.String("session_id", sessionID))
}

func (s *Syncer) flushActivities(ctx context.Context) {
	activities, err := s.store.PendingActivities(ctx)
	if err != nil {
		s.logger.Error("failed to read pending activities", zap.Error(err))
		return
	}
	if len(activities) == 0 {
		return
	}

	sessionID, err := s.store.CurrentSessionID(ctx)
	if err != nil {
		s.logger.Error("failed to read session id", zap.Error(err))
		return
	}

	// All-or-nothing: the list is only cleared once every entry went
	// through, so a partial failure leaves everything for the next pass.
	for _, activity := range activities {
		if err := s.client.CreateActivity(ctx, activity, sessionID); err != nil {
			s.logger.Warn("activity sync failed", zap.Error(err))
			return
		}
	}

	if err := s.store.ClearPendingActivities(ctx); err != nil {
		s.logger.Error("failed to clear pending activities", zap.Error(err))
		return
	}
	s.logger.Info("pending activities synced", zap.Int("count", len(activities)))
}
