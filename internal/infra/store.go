// Package infra implements infrastructure concerns (storage, transport,
// host messaging, process checks).
package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/trackzen/trackd/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.IsEncrypted

const stateDBName = "state.db"

// Logical record keys. Each is one row in the kv table.
const (
	keyTrackingEnabled   = "tracking-enabled"
	keyPendingSession    = "pending-session"
	keyPendingActivities = "pending-activities"
	keyCurrentSessionID  = "current-session-id"
)

// EncryptedStore implements domain.StateStore on a SQLCipher encrypted
// SQLite database. Browsing history is sensitive, so it is encrypted at rest
// with a locally generated key. Values are JSON; the pending-activities
// record is a JSON array appended in place (single-writer process).
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted state database in
// dataDir. The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Verify the key actually decrypts the database.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path (for tests and status output).
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// put writes one logical record, overwriting any previous value.
func (s *EncryptedStore) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, data, time.Now().Unix())
	return err
}

// get reads one logical record into out. Returns false if the key is absent.
func (s *EncryptedStore) get(ctx context.Context, key string, out any) (bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// remove deletes one logical record. Removing an absent key is not an error.
func (s *EncryptedStore) remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// TrackingEnabled reads the persisted tracking flag. Missing = false.
func (s *EncryptedStore) TrackingEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	found, err := s.get(ctx, keyTrackingEnabled, &enabled)
	if err != nil || !found {
		return false, err
	}
	return enabled, nil
}

// SetTrackingEnabled persists the tracking flag.
func (s *EncryptedStore) SetTrackingEnabled(ctx context.Context, enabled bool) error {
	return s.put(ctx, keyTrackingEnabled, enabled)
}

// CurrentSessionID returns the persisted collector session id, "" if none.
func (s *EncryptedStore) CurrentSessionID(ctx context.Context) (string, error) {
	var id string
	found, err := s.get(ctx, keyCurrentSessionID, &id)
	if err != nil || !found {
		return "", err
	}
	return id, nil
}

// SetCurrentSessionID persists the collector session id.
func (s *EncryptedStore) SetCurrentSessionID(ctx context.Context, id string) error {
	return s.put(ctx, keyCurrentSessionID, id)
}

// ClearCurrentSessionID forgets the persisted session id.
func (s *EncryptedStore) ClearCurrentSessionID(ctx context.Context) error {
	return s.remove(ctx, keyCurrentSessionID)
}

// PendingSession returns the cached session snapshot, or nil.
func (s *EncryptedStore) PendingSession(ctx context.Context) (*domain.PendingSession, error) {
	var snap domain.PendingSession
	found, err := s.get(ctx, keyPendingSession, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

// SetPendingSession stores the snapshot, overwriting the single slot.
func (s *EncryptedStore) SetPendingSession(ctx context.Context, snap domain.PendingSession) error {
	return s.put(ctx, keyPendingSession, snap)
}

// ClearPendingSession empties the snapshot slot.
func (s *EncryptedStore) ClearPendingSession(ctx context.Context) error {
	return s.remove(ctx, keyPendingSession)
}

// AppendPendingActivity adds one activity to the unsent queue. The queue is
// unbounded; if the network stays down it keeps growing until a flush lands.
func (s *EncryptedStore) AppendPendingActivity(ctx context.Context, activity domain.Activity) error {
	activities, err := s.PendingActivities(ctx)
	if err != nil {
		return err
	}
	activities = append(activities, activity)
	return s.put(ctx, keyPendingActivities, activities)
}

// PendingActivities returns the unsent queue in insertion order.
func (s *EncryptedStore) PendingActivities(ctx context.Context) ([]domain.Activity, error) {
	var activities []domain.Activity
	if _, err := s.get(ctx, keyPendingActivities, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// ClearPendingActivities removes the whole queue.
func (s *EncryptedStore) ClearPendingActivities(ctx context.Context) error {
	return s.remove(ctx, keyPendingActivities)
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements domain.StateStore.
var _ domain.StateStore = (*EncryptedStore)(nil)
