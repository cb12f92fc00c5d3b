// Package daemon runs the engine loop: host events in, scheduled sync out.
package daemon

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/trackzen/trackd/internal/domain"
	"github.com/trackzen/trackd/internal/usecase"
)

// DefaultSyncInterval is how often the pending cache is flushed.
const DefaultSyncInterval = 5 * time.Minute

// Config holds runner configuration.
type Config struct {
	SyncInterval time.Duration
}

// DefaultConfig returns default runner configuration.
func DefaultConfig() Config {
	return Config{SyncInterval: DefaultSyncInterval}
}

// Runner is the engine event loop. A single goroutine consumes host events
// in delivery order and applies them through the session manager's
// transition methods; the sync ticker dispatches flushes on a second
// goroutine, with the syncer's own guard preventing overlapping runs.
type Runner struct {
	config  Config
	source  domain.EventSource
	mgr     *usecase.Manager
	tracker *usecase.TabTracker
	idle    *usecase.IdleMonitor
	syncer  *usecase.Syncer
	logger  *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(
	config Config,
	source domain.EventSource,
	mgr *usecase.Manager,
	tracker *usecase.TabTracker,
	idle *usecase.IdleMonitor,
	syncer *usecase.Syncer,
	logger *zap.Logger,
) *Runner {
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultSyncInterval
	}
	return &Runner{
		config:  config,
		source:  source,
		mgr:     mgr,
		tracker: tracker,
		idle:    idle,
		syncer:  syncer,
		logger:  logger,
	}
}

// Run blocks until the context is canceled or the host closes the event
// stream. On the way out the open session is ended best-effort; anything
// that cannot be reported stays in the pending cache for the next start.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.mgr.Init(ctx); err != nil {
		r.logger.Warn("engine started without persisted state", zap.Error(err))
	}

	events := make(chan domain.HostEvent)
	readErr := make(chan error, 1)
	go func() {
		for {
			ev, err := r.source.Next()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(r.config.SyncInterval)
	defer ticker.Stop()

	r.logger.Info("engine started",
		zap.Duration("sync_interval", r.config.SyncInterval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("engine stopping")
			r.shutdown()
			return ctx.Err()

		case err := <-readErr:
			r.shutdown()
			if errors.Is(err, io.EOF) {
				r.logger.Info("host closed event stream")
				return nil
			}
			r.logger.Error("event stream failed", zap.Error(err))
			return err

		case ev := <-events:
			r.handleEvent(ctx, ev)

		case <-ticker.C:
			if r.mgr.Enabled() {
				go r.syncer.Sync(ctx)
			}
		}
	}
}

// handleEvent applies one host event.
func (r *Runner) handleEvent(ctx context.Context, ev domain.HostEvent) {
	switch ev.Type {
	case domain.EventTabActivated:
		r.tracker.OnTabActivated(ctx, ev)

	case domain.EventTabUpdated:
		r.tracker.OnTabUpdated(ctx, ev)

	case domain.EventIdleChanged:
		r.idle.OnStateChanged(ctx, ev.State)

	case domain.EventStartup, domain.EventInstalled:
		// The browser (re)started; reconstruct tracking state. Idempotent
		// when a session is already open.
		if err := r.mgr.Init(ctx); err != nil {
			r.logger.Warn("failed to reinitialize on host startup", zap.Error(err))
		}

	case domain.EventSetTracking:
		r.mgr.Toggle(ctx, ev.Enabled)
		if err := r.source.Ack("ok"); err != nil {
			r.logger.Warn("failed to ack tracking command", zap.Error(err))
		}

	default:
		r.logger.Warn("unhandled event type", zap.String("type", string(ev.Type)))
	}
}

// shutdown ends the open session best-effort. The run context is usually
// already canceled here, so the close gets its own short deadline.
func (r *Runner) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.mgr.End(ctx, "shutdown")
}
