package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"audiosift/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Additional columns may be
// appended without a bump; readers must tolerate unknown fields.
const schemaVersion = 1

// ErrDuplicate reports that a content hash is already extracted or reserved.
var ErrDuplicate = errors.New("payload already extracted")

// Record is one committed extraction. Never mutated after commit.
type Record struct {
	ContentHash string
	SourcePath  string
	OutputPath  string
	Bucket      string
	ByteLength  int64
	ExtractedAt time.Time
}

// Store is the persistent content-hash history. It is the single structure
// shared for mutation across workers: Reserve serializes writers per hash
// while commits for distinct hashes proceed independently.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	known    map[string]struct{}
	reserved map[string]struct{}
}

// Open connects to (or creates) the history database at path and loads the
// committed hash set into memory. A corrupt database is discarded and
// recreated empty; losing dedup history is preferable to refusing to run.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	store, err := open(path, logger)
	if err == nil {
		return store, nil
	}

	logger.Warn("history database unusable; starting with empty history",
		logging.String("path", path),
		logging.Error(err),
	)
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return nil, fmt.Errorf("remove corrupt history db: %w", rmErr)
	}
	return open(path, logger)
}

func open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:       db,
		path:     path,
		logger:   logger,
		known:    make(map[string]struct{}),
		reserved: make(map[string]struct{}),
	}
	ctx := context.Background()
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.loadHashes(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("schema version mismatch: database has %d, expected %d", version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *Store) loadHashes(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT content_hash FROM history_records")
	if err != nil {
		return fmt.Errorf("load history hashes: %w", err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return fmt.Errorf("scan history hash: %w", err)
		}
		s.known[hash] = struct{}{}
	}
	return rows.Err()
}

// Len reports the number of committed records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.known)
}

// Reserve atomically claims a content hash for the calling worker. It returns
// false when the hash is already committed or claimed by a concurrent worker;
// exactly one caller wins for any given hash. A winner must follow up with
// Commit or Release.
func (s *Store) Reserve(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.known[hash]; ok {
		return false
	}
	if _, ok := s.reserved[hash]; ok {
		return false
	}
	s.reserved[hash] = struct{}{}
	return true
}

// Release returns a reservation without committing, making the hash claimable
// again. Called when a task fails after reserving.
func (s *Store) Release(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, hash)
}

// Commit persists a record and finalizes its reservation. The output file must
// already exist on disk: write-then-commit ordering guarantees every committed
// record points at a real file.
func (s *Store) Commit(ctx context.Context, record Record) error {
	if record.ContentHash == "" {
		return errors.New("commit requires a content hash")
	}
	if record.ExtractedAt.IsZero() {
		record.ExtractedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO history_records
            (content_hash, source_path, output_path, bucket, byte_length, extracted_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.ContentHash,
		record.SourcePath,
		record.OutputPath,
		record.Bucket,
		record.ByteLength,
		record.ExtractedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}

	s.mu.Lock()
	delete(s.reserved, record.ContentHash)
	s.known[record.ContentHash] = struct{}{}
	s.mu.Unlock()

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		// Row already present from an earlier run; surfaced as a duplicate.
		return ErrDuplicate
	}
	return nil
}

// Lookup fetches the committed record for a hash, or nil when absent.
func (s *Store) Lookup(ctx context.Context, hash string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content_hash, source_path, output_path, bucket, byte_length, extracted_at
         FROM history_records WHERE content_hash = ?`, hash)
	record, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup history record: %w", err)
	}
	return record, nil
}

// All returns every committed record, newest first.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_hash, source_path, output_path, bucket, byte_length, extracted_at
         FROM history_records ORDER BY extracted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// Clear removes every committed record. Owned by the settings surface; the
// pipeline never calls this.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history_records"); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.mu.Lock()
	s.known = make(map[string]struct{})
	s.reserved = make(map[string]struct{})
	s.mu.Unlock()
	return nil
}

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var record Record
	var extractedAt string
	if err := scan(
		&record.ContentHash,
		&record.SourcePath,
		&record.OutputPath,
		&record.Bucket,
		&record.ByteLength,
		&extractedAt,
	); err != nil {
		return nil, err
	}
	if parsed, err := time.Parse(time.RFC3339Nano, extractedAt); err == nil {
		record.ExtractedAt = parsed
	}
	return &record, nil
}
