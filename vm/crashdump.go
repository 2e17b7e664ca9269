package vm

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrCrashNotFound indicates the requested crash record doesn't exist.
var ErrCrashNotFound = errors.New("vm: crash record not found")

// ---------------------------------------------------------------------------
// CrashDumpStore: SQLite-backed record of abnormal terminations
// ---------------------------------------------------------------------------

// CrashDumpStore persists snapshots of processes that terminated with a
// non-normal reason, so crashes survive the node for post-mortem
// inspection. The exit reason is stored in the external CBOR term form.
type CrashDumpStore struct {
	db *sql.DB
	mu sync.Mutex
}

// CrashRecord is one persisted crash.
type CrashRecord struct {
	ID              int64
	Pid             int32
	Node            string
	ExitReason      *WireTerm
	HeapSize        int
	StackSize       int
	MessageQueueLen int
	Memory          int
	CreatedAt       time.Time
}

// NewCrashDumpStore opens (and if needed bootstraps) a store at dbPath.
func NewCrashDumpStore(dbPath string) (*CrashDumpStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening crash dump database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS crashes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pid INTEGER NOT NULL,
		node TEXT NOT NULL,
		exit_reason BLOB NOT NULL,
		heap_size INTEGER NOT NULL,
		stack_size INTEGER NOT NULL,
		message_queue_len INTEGER NOT NULL,
		memory INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating crashes table: %w", err)
	}

	return &CrashDumpStore{db: db}, nil
}

// Close closes the underlying database.
func (s *CrashDumpStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record persists one process snapshot.
func (s *CrashDumpStore) Record(snap *ProcessSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reason, err := cborEncMode.Marshal(snap.ExitReason)
	if err != nil {
		return fmt.Errorf("encoding exit reason: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO crashes
			(pid, node, exit_reason, heap_size, stack_size, message_queue_len, memory, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Pid, snap.Node, reason,
		snap.HeapSize, snap.StackSize, snap.MessageQueueLen, snap.Memory,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving crash record: %w", err)
	}
	return nil
}

// Load retrieves a crash record by id.
func (s *CrashDumpStore) Load(id int64) (*CrashRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		rec       CrashRecord
		reason    []byte
		createdAt string
	)
	err := s.db.QueryRow(
		`SELECT id, pid, node, exit_reason, heap_size, stack_size, message_queue_len, memory, created_at
		 FROM crashes WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Pid, &rec.Node, &reason,
		&rec.HeapSize, &rec.StackSize, &rec.MessageQueueLen, &rec.Memory, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCrashNotFound
		}
		return nil, fmt.Errorf("querying crash record: %w", err)
	}

	rec.ExitReason, err = UnmarshalWireTerm(reason)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing crash timestamp: %w", err)
	}
	return &rec, nil
}

// CrashesForPid returns every crash recorded for pid, oldest first.
func (s *CrashDumpStore) CrashesForPid(pid int32) ([]*CrashRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, pid, node, exit_reason, heap_size, stack_size, message_queue_len, memory, created_at
		 FROM crashes WHERE pid = ? ORDER BY id`, pid)
	if err != nil {
		return nil, fmt.Errorf("querying crash records: %w", err)
	}
	defer rows.Close()

	var recs []*CrashRecord
	for rows.Next() {
		var (
			rec       CrashRecord
			reason    []byte
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Pid, &rec.Node, &reason,
			&rec.HeapSize, &rec.StackSize, &rec.MessageQueueLen, &rec.Memory, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning crash record: %w", err)
		}
		rec.ExitReason, err = UnmarshalWireTerm(reason)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing crash timestamp: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Count returns the number of stored crash records.
func (s *CrashDumpStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM crashes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting crash records: %w", err)
	}
	return n, nil
}
