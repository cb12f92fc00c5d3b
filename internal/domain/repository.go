package domain

import "context"

// StateStore is the process-restart-durable staging area for telemetry that
// has not been acknowledged by the collector, plus the persisted tracking
// state. There is no transactional guarantee across records.
type StateStore interface {
	// TrackingEnabled reads the persisted tracking flag. Missing = false.
	TrackingEnabled(ctx context.Context) (bool, error)

	// SetTrackingEnabled persists the tracking flag.
	SetTrackingEnabled(ctx context.Context, enabled bool) error

	// CurrentSessionID returns the collector-assigned id of the in-progress
	// session, or "" if none is known.
	CurrentSessionID(ctx context.Context) (string, error)

	// SetCurrentSessionID persists the collector-assigned session id.
	SetCurrentSessionID(ctx context.Context, id string) error

	// ClearCurrentSessionID forgets the persisted session id.
	ClearCurrentSessionID(ctx context.Context) error

	// PendingSession returns the cached session snapshot, or nil.
	PendingSession(ctx context.Context) (*PendingSession, error)

	// SetPendingSession stores the snapshot, overwriting the single slot.
	SetPendingSession(ctx context.Context, snap PendingSession) error

	// ClearPendingSession empties the snapshot slot.
	ClearPendingSession(ctx context.Context) error

	// AppendPendingActivity adds one activity to the unsent queue.
	AppendPendingActivity(ctx context.Context, activity Activity) error

	// PendingActivities returns the unsent queue in insertion order.
	PendingActivities(ctx context.Context) ([]Activity, error)

	// ClearPendingActivities removes the whole queue. Callers only clear
	// after every entry has been confirmed sent.
	ClearPendingActivities(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}

// TelemetryClient is the remote collector contract. Calls either fully
// succeed or return an error the caller must treat as retriable; the
// collector tolerates duplicate sends.
type TelemetryClient interface {
	// CreateSession registers a session and returns its collector id.
	CreateSession(ctx context.Context, up SessionUpsert) (string, error)

	// UpdateSession updates an already-registered session.
	UpdateSession(ctx context.Context, sessionID string, up SessionUpsert) error

	// CreateActivity reports one closed activity under a session.
	CreateActivity(ctx context.Context, activity Activity, sessionID string) error
}

// EventSource delivers host browser events in host-delivery order.
type EventSource interface {
	// Next blocks for the next event. Returns io.EOF when the host closes
	// the stream.
	Next() (HostEvent, error)

	// Ack answers an inbound command synchronously.
	Ack(status string) error
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a newly generated key.
	StoreKey(key []byte) error

	// KeyExists checks whether a key has been generated.
	KeyExists() bool
}

// ProcessManager checks OS process liveness (used by the status command).
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}
