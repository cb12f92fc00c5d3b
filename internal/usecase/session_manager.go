// Package usecase implements the tracking engine: the session/activity
// state machine, the send-or-cache dispatch path, and the sync flush.
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackzen/trackd/internal/domain"
)

// State is the session manager's tracking state.
type State int

const (
	// StateDisabled means the user has tracking switched off.
	StateDisabled State = iota
	// StateInactive means tracking is enabled but no session is open.
	StateInactive
	// StateActive means a session is open, possibly with an open activity.
	StateActive
)

// Manager owns the current session and the current open activity.
// Every mutation of tracking state goes through its transition methods; the
// mutex serializes host-event handling against the sync scheduler, which runs
// on its own goroutine. Remote failures inside transitions never propagate -
// they degrade to the pending cache and the sync scheduler retries them.
type Manager struct {
	mu     sync.Mutex
	store  domain.StateStore
	client domain.TelemetryClient
	disp   *Dispatcher
	logger *zap.Logger
	now    func() time.Time

	state           State
	session         *domain.Session
	currentTabID    int
	hasCurrentTab   bool
	currentActivity *domain.Activity
	seenTabs        map[int]struct{}
}

// NewManager creates a session manager in the Disabled state. Call Init to
// reconstruct the real state from the store.
func NewManager(store domain.StateStore, client domain.TelemetryClient, disp *Dispatcher, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		client:   client,
		disp:     disp,
		logger:   logger,
		now:      time.Now,
		state:    StateDisabled,
		seenTabs: make(map[int]struct{}),
	}
}

// Init reconstructs tracking state at process start: it loads the persisted
// tracking flag and, when enabled, starts a session (running recovery first).
// Calling Init while a session is already open is a no-op.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateActive {
		return nil
	}

	enabled, err := m.store.TrackingEnabled(ctx)
	if err != nil {
		// Store unavailable: stay disabled rather than tracking blind.
		m.logger.Error("failed to load tracking flag", zap.Error(err))
		m.state = StateDisabled
		return err
	}

	if !enabled {
		m.state = StateDisabled
		return nil
	}

	m.state = StateInactive
	m.startLocked(ctx)
	return nil
}

// Start opens a new session. Recovery of any leftover cached state runs to
// completion first, so a new session never appears to begin before the old
// one is closed out server-side. No-op when disabled or already active.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateInactive {
		return
	}
	m.startLocked(ctx)
}

// End closes the open session with the given reason. Idempotent: ending when
// no session is open does nothing.
func (m *Manager) End(ctx context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endLocked(ctx, reason)
}

// Toggle applies the user's enable/disable command. The flag is persisted
// regardless of whether a transition fires.
func (m *Manager) Toggle(ctx context.Context, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetTrackingEnabled(ctx, enabled); err != nil {
		m.logger.Error("failed to persist tracking flag", zap.Error(err))
	}

	switch {
	case enabled && m.state == StateDisabled:
		m.state = StateInactive
		m.startLocked(ctx)
	case enabled && m.state == StateInactive:
		m.startLocked(ctx)
	case !enabled && m.state == StateActive:
		m.endLocked(ctx, "disabled by user")
		m.state = StateDisabled
	case !enabled:
		m.state = StateDisabled
	}
}

// Enabled reports whether tracking is switched on (a session may or may not
// be open).
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateDisabled
}

// Active reports whether a session is currently open.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateActive
}

// SwitchTab records focus moving to a tab: the open activity (if any) is
// closed and dispatched, and a new one is opened for the tab's page. An empty
// URL means the host failed to read the tab's metadata; the open attempt is
// abandoned for that event and tracking resumes on the next one.
func (m *Manager) SwitchTab(ctx context.Context, tabID int, rawURL, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return
	}

	m.seenTabs[tabID] = struct{}{}
	m.closeActivityLocked(ctx)

	m.currentTabID = tabID
	m.hasCurrentTab = true

	if rawURL == "" {
		m.logger.Warn("tab metadata unavailable, skipping activity open",
			zap.Int("tab_id", tabID))
		return
	}

	activity := domain.NewActivity(rawURL, title, m.now())
	m.currentActivity = &activity
}

// Navigated records a navigation inside the currently tracked tab: close the
// open activity, open a fresh one for the new page. Every completed load gets
// a fresh activity even when the URL is unchanged. Navigations in any other
// tab are ignored.
func (m *Manager) Navigated(ctx context.Context, tabID int, rawURL, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return
	}
	if !m.hasCurrentTab || tabID != m.currentTabID {
		return
	}

	m.closeActivityLocked(ctx)

	activity := domain.NewActivity(rawURL, title, m.now())
	m.currentActivity = &activity
}

// startLocked runs recovery and then opens a new session. Caller holds mu and
// has checked that tracking is enabled.
func (m *Manager) startLocked(ctx context.Context) {
	m.recoverLocked(ctx)

	session := &domain.Session{
		LocalID:   uuid.NewString(),
		StartTime: m.now(),
	}
	m.session = session
	m.currentActivity = nil
	m.hasCurrentTab = false
	m.seenTabs = make(map[int]struct{})
	m.state = StateActive

	remoteID, err := m.client.CreateSession(ctx, domain.SessionUpsert{
		StartTime: session.StartTime,
	})
	if err != nil {
		m.logger.Warn("failed to register new session, caching it",
			zap.String("local_id", session.LocalID),
			zap.Error(err))
		m.cachePendingSessionLocked(ctx, domain.PendingSession{
			StartTime: session.StartTime,
		})
		return
	}

	session.RemoteID = remoteID
	if err := m.store.SetCurrentSessionID(ctx, remoteID); err != nil {
		m.logger.Error("failed to persist session id", zap.Error(err))
	}

	m.logger.Info("session started",
		zap.String("local_id", session.LocalID),
		zap.String("session_id", remoteID),
		zap.Time("start_time", session.StartTime))
}

// endLocked closes the open session. Caller holds mu.
func (m *Manager) endLocked(ctx context.Context, reason string) {
	if m.state != StateActive || m.session == nil {
		return
	}

	end := m.now()
	m.closeActivityLocked(ctx)

	session := m.session
	session.EndTime = end
	session.Duration = int(end.Sub(session.StartTime) / time.Minute)
	session.TotalTabs = len(m.seenTabs)

	up := domain.SessionUpsert{
		StartTime: session.StartTime,
		EndTime:   &session.EndTime,
		Duration:  session.Duration,
		TotalTabs: session.TotalTabs,
	}

	remoteID := session.RemoteID
	if remoteID == "" {
		if id, err := m.store.CurrentSessionID(ctx); err == nil {
			remoteID = id
		}
	}

	var err error
	if remoteID != "" {
		err = m.client.UpdateSession(ctx, remoteID, up)
	} else {
		_, err = m.client.CreateSession(ctx, up)
	}

	if err != nil {
		m.logger.Warn("failed to report session end, caching it",
			zap.String("reason", reason),
			zap.Error(err))
		m.cachePendingSessionLocked(ctx, domain.PendingSession{
			StartTime: session.StartTime,
			EndTime:   &session.EndTime,
			TotalTabs: session.TotalTabs,
		})
	} else {
		m.logger.Info("session ended",
			zap.String("reason", reason),
			zap.String("session_id", remoteID),
			zap.Int("duration_min", session.Duration),
			zap.Int("total_tabs", session.TotalTabs))
		if err := m.store.ClearPendingSession(ctx); err != nil {
			m.logger.Error("failed to clear pending session", zap.Error(err))
		}
		if err := m.store.ClearCurrentSessionID(ctx); err != nil {
			m.logger.Error("failed to clear session id", zap.Error(err))
		}
	}

	// The in-memory identity is dropped on every outcome so a stale remote
	// id can never leak into the next session. The persisted id survives a
	// failed send so the sync flush can still update the right session.
	m.session = nil
	m.currentActivity = nil
	m.hasCurrentTab = false
	m.seenTabs = make(map[int]struct{})
	m.state = StateInactive
}

// recoverLocked reconciles state left over from a previous, uncleanly
// terminated process: a cached session snapshot is replayed as a create or
// update, then cached activities are resent. Partial failure is accepted -
// whatever stays cached is the sync scheduler's to retry.
func (m *Manager) recoverLocked(ctx context.Context) {
	snap, err := m.store.PendingSession(ctx)
	if err != nil {
		m.logger.Error("failed to read pending session", zap.Error(err))
	}

	if snap != nil {
		knownID, _ := m.store.CurrentSessionID(ctx)
		if knownID == "" {
			remoteID, err := m.client.CreateSession(ctx, snap.Upsert())
			if err != nil {
				m.logger.Warn("failed to replay recovered session, will retry later", zap.Error(err))
			} else {
				if err := m.store.SetCurrentSessionID(ctx, remoteID); err != nil {
					m.logger.Error("failed to persist recovered session id", zap.Error(err))
				}
				if err := m.store.ClearPendingSession(ctx); err != nil {
					m.logger.Error("failed to clear pending session", zap.Error(err))
				}
				m.logger.Info("recovered session reported", zap.String("session_id", remoteID))
			}
		} else {
			if err := m.client.UpdateSession(ctx, knownID, snap.Upsert()); err != nil {
				m.logger.Warn("failed to replay recovered session, will retry later", zap.Error(err))
			} else {
				if err := m.store.ClearPendingSession(ctx); err != nil {
					m.logger.Error("failed to clear pending session", zap.Error(err))
				}
				m.logger.Info("recovered session reported", zap.String("session_id", knownID))
			}
		}
	}

	activities, err := m.store.PendingActivities(ctx)
	if err != nil {
		m.logger.Error("failed to read pending activities", zap.Error(err))
		return
	}
	if len(activities) == 0 {
		return
	}

	sessionID, _ := m.store.CurrentSessionID(ctx)
	for _, activity := range activities {
		if err := m.client.CreateActivity(ctx, activity, sessionID); err != nil {
			m.logger.Warn("failed to resend recovered activities, will retry later", zap.Error(err))
			return
		}
	}
	if err := m.store.ClearPendingActivities(ctx); err != nil {
		m.logger.Error("failed to clear pending activities", zap.Error(err))
		return
	}
	m.logger.Info("recovered activities reported", zap.Int("count", len(activities)))
}

// closeActivityLocked is the single authoritative "close the open activity"
// operation: seal it, hand it to dispatch, drop it from memory.
func (m *Manager) closeActivityLocked(ctx context.Context) {
	if m.currentActivity == nil {
		return
	}

	activity := *m.currentActivity
	m.currentActivity = nil
	activity.Close(m.now())

	sessionID := ""
	if m.session != nil {
		sessionID = m.session.RemoteID
	}
	if sessionID == "" {
		if id, err := m.store.CurrentSessionID(ctx); err == nil {
			sessionID = id
		}
	}

	m.disp.Dispatch(ctx, activity, sessionID)
}

// cachePendingSessionLocked overwrites the single pending-session slot.
func (m *Manager) cachePendingSessionLocked(ctx context.Context, snap domain.PendingSession) {
	if err := m.store.SetPendingSession(ctx, snap); err != nil {
		// No lower-level fallback exists; the snapshot is lost.
		m.logger.Error("failed to cache pending session", zap.Error(err))
	}
}
