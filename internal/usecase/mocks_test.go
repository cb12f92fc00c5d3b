package usecase

import (
	"context"
	"sync"

	"github.com/trackzen/trackd/internal/domain"
)

// mockStore implements domain.StateStore in memory for testing
type mockStore struct {
	mu             sync.Mutex
	enabled        bool
	enabledErr     error
	sessionID      string
	pendingSession *domain.PendingSession
	pendingActs    []domain.Activity
	appendErr      error
	putSessionErr  error
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) TrackingEnabled(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, m.enabledErr
}

func (m *mockStore) SetTrackingEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	return nil
}

func (m *mockStore) CurrentSessionID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID, nil
}

func (m *mockStore) SetCurrentSessionID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = id
	return nil
}

func (m *mockStore) ClearCurrentSessionID(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = ""
	return nil
}

func (m *mockStore) PendingSession(ctx context.Context) (*domain.PendingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingSession == nil {
		return nil, nil
	}
	snap := *m.pendingSession
	return &snap, nil
}

func (m *mockStore) SetPendingSession(ctx context.Context, snap domain.PendingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putSessionErr != nil {
		return m.putSessionErr
	}
	m.pendingSession = &snap
	return nil
}

func (m *mockStore) ClearPendingSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingSession = nil
	return nil
}

func (m *mockStore) AppendPendingActivity(ctx context.Context, activity domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.pendingActs = append(m.pendingActs, activity)
	return nil
}

func (m *mockStore) PendingActivities(ctx context.Context) ([]domain.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Activity(nil), m.pendingActs...), nil
}

func (m *mockStore) ClearPendingActivities(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingActs = nil
	return nil
}

func (m *mockStore) Close() error { return nil }

// sentActivity records one CreateActivity call
type sentActivity struct {
	activity  domain.Activity
	sessionID string
}

// sessionUpdate records one UpdateSession call
type sessionUpdate struct {
	sessionID string
	up        domain.SessionUpsert
}

// mockClient implements domain.TelemetryClient for testing
type mockClient struct {
	mu            sync.Mutex
	createErr     error
	updateErr     error
	activityErr   error
	nextSessionID string
	created       []domain.SessionUpsert
	updated       []sessionUpdate
	activities    []sentActivity
	activityHook  func() // called at the start of CreateActivity, if set
}

func newMockClient() *mockClient {
	return &mockClient{nextSessionID: "remote-1"}
}

func (m *mockClient) CreateSession(ctx context.Context, up domain.SessionUpsert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created = append(m.created, up)
	return m.nextSessionID, nil
}

func (m *mockClient) UpdateSession(ctx context.Context, sessionID string, up domain.SessionUpsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = append(m.updated, sessionUpdate{sessionID: sessionID, up: up})
	return nil
}

func (m *mockClient) CreateActivity(ctx context.Context, activity domain.Activity, sessionID string) error {
	if hook := m.hook(); hook != nil {
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activityErr != nil {
		return m.activityErr
	}
	m.activities = append(m.activities, sentActivity{activity: activity, sessionID: sessionID})
	return nil
}

func (m *mockClient) hook() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activityHook
}

func (m *mockClient) sentActivities() []sentActivity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentActivity(nil), m.activities...)
}
