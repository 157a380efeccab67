// Package journal keeps a local SQLite history of uploads and downloads
// performed by the CLI. It is written after each transfer and read by the
// history command; the storage client itself never touches it.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Direction of a transfer.
type Direction string

// Transfer directions.
const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// Status of a finished transfer.
type Status string

// Transfer outcomes.
const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// dirPerms is used when creating the journal's parent directory.
const dirPerms = 0o700

// SQL statements.
const (
	sqlInsert = `INSERT INTO transfers
		(id, recorded_at, direction, bucket, remote_path, local_path, bytes, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecent = `SELECT id, recorded_at, direction, bucket, remote_path, local_path, bytes, status, error
		FROM transfers ORDER BY recorded_at DESC, rowid DESC LIMIT ?`

	sqlTotals = `SELECT direction, COUNT(*), COALESCE(SUM(bytes), 0)
		FROM transfers WHERE status = 'ok' GROUP BY direction`
)

// Entry is one journal row.
type Entry struct {
	ID         string
	Time       time.Time
	Direction  Direction
	Bucket     string
	RemotePath string
	LocalPath  string
	Bytes      int64
	Status     Status
	Error      string
}

// Totals summarizes successful transfers per direction.
type Totals struct {
	Uploads       int
	UploadBytes   int64
	Downloads     int
	DownloadBytes int64
}

// Journal is the transfer history store.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the journal database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", path, err)
	}

	// Single writer; the CLI records transfers sequentially.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", path))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Record stores e and returns it with ID and Time filled in when they were
// empty.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Direction != Upload && e.Direction != Download {
		return e, fmt.Errorf("journal: invalid direction %q", e.Direction)
	}

	if e.Status == "" {
		e.Status = StatusOK
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.Time.IsZero() {
		e.Time = j.nowFunc()
	}

	_, err := j.db.ExecContext(ctx, sqlInsert,
		e.ID, e.Time.UnixNano(), string(e.Direction), e.Bucket, e.RemotePath,
		nullString(e.LocalPath), e.Bytes, string(e.Status), nullString(e.Error),
	)
	if err != nil {
		return e, fmt.Errorf("journal: recording %s %s: %w", e.Direction, e.RemotePath, err)
	}

	j.logger.Debug("transfer recorded",
		slog.String("id", e.ID),
		slog.String("direction", string(e.Direction)),
		slog.String("status", string(e.Status)),
	)

	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx, sqlRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: querying recent transfers: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e         Entry
			nanos     int64
			direction string
			status    string
			localPath sql.NullString
			errText   sql.NullString
		)

		if err := rows.Scan(&e.ID, &nanos, &direction, &e.Bucket, &e.RemotePath,
			&localPath, &e.Bytes, &status, &errText); err != nil {
			return nil, fmt.Errorf("journal: scanning transfer row: %w", err)
		}

		e.Time = time.Unix(0, nanos)
		e.Direction = Direction(direction)
		e.Status = Status(status)
		e.LocalPath = localPath.String
		e.Error = errText.String

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating transfer rows: %w", err)
	}

	return entries, nil
}

// Totals counts successful transfers and bytes per direction.
func (j *Journal) Totals(ctx context.Context) (Totals, error) {
	rows, err := j.db.QueryContext(ctx, sqlTotals)
	if err != nil {
		return Totals{}, fmt.Errorf("journal: querying totals: %w", err)
	}
	defer rows.Close()

	var t Totals

	for rows.Next() {
		var (
			direction string
			count     int
			bytes     int64
		)

		if err := rows.Scan(&direction, &count, &bytes); err != nil {
			return Totals{}, fmt.Errorf("journal: scanning totals: %w", err)
		}

		switch Direction(direction) {
		case Upload:
			t.Uploads, t.UploadBytes = count, bytes
		case Download:
			t.Downloads, t.DownloadBytes = count, bytes
		}
	}

	return t, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}

	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal: closing database: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
