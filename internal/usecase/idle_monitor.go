package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/trackzen/trackd/internal/domain"
)

// DefaultIdleThresholdMinutes is how long the user must be inactive before
// the host reports idle. The threshold itself is enforced host-side; it is
// part of the config so the shim can be told what to set.
const DefaultIdleThresholdMinutes = 180

// IdleMonitor converts host-reported presence transitions into session
// boundaries: going idle or locked ends the session, coming back starts one.
type IdleMonitor struct {
	mgr    *Manager
	logger *zap.Logger
}

// NewIdleMonitor creates an idle monitor.
func NewIdleMonitor(mgr *Manager, logger *zap.Logger) *IdleMonitor {
	return &IdleMonitor{mgr: mgr, logger: logger}
}

// OnStateChanged applies one presence transition. Duplicate active signals
// while a session is already open are no-ops.
func (i *IdleMonitor) OnStateChanged(ctx context.Context, state domain.IdleState) {
	if !i.mgr.Enabled() {
		return
	}

	switch state {
	case domain.IdleStateIdle, domain.IdleStateLocked:
		i.mgr.End(ctx, "idle timeout")
	case domain.IdleStateActive:
		if !i.mgr.Active() {
			i.mgr.Start(ctx)
		}
	default:
		i.logger.Warn("unknown idle state", zap.String("state", string(state)))
	}
}
