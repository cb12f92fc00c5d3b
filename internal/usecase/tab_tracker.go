package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/trackzen/trackd/internal/domain"
)

// TabTracker converts raw tab focus and navigation events into activity
// close/open transitions on the session manager. It holds no state of its
// own; the manager is the single owner of the open activity.
type TabTracker struct {
	mgr    *Manager
	logger *zap.Logger
}

// NewTabTracker creates a tab tracker.
func NewTabTracker(mgr *Manager, logger *zap.Logger) *TabTracker {
	return &TabTracker{mgr: mgr, logger: logger}
}

// OnTabActivated handles focus moving to a tab.
func (t *TabTracker) OnTabActivated(ctx context.Context, ev domain.HostEvent) {
	t.mgr.SwitchTab(ctx, ev.TabID, ev.URL, ev.Title)
}

// OnTabUpdated handles a tab's navigation progress. A URL change and a
// completed load arriving in the same event are applied as two sequential
// close/open transitions, matching the host's behavior that each completed
// load starts a fresh activity even when the URL is unchanged.
func (t *TabTracker) OnTabUpdated(ctx context.Context, ev domain.HostEvent) {
	if ev.URLChanged {
		t.mgr.Navigated(ctx, ev.TabID, ev.URL, ev.Title)
	}

	if ev.Status == "complete" && strings.HasPrefix(ev.URL, "http") {
		t.mgr.Navigated(ctx, ev.TabID, ev.URL, ev.Title)
	}
}
