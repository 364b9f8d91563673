package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"youbble/logger"
	"youbble/model"

	"github.com/go-sql-driver/mysql"
)

// Dialect selects the SQL flavour of the ledger tables.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// createdAtLayout is fixed width so text order equals time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

const (
	mysqlDuplicateKey     = 1062
	sqliteConstraintUniq  = 2067
	sqliteBusyCode        = 5
	busyRetryAttempts     = 5
	busyRetryInitialDelay = 10 * time.Millisecond
)

var entrySchema = map[Dialect]string{
	DialectSQLite: `
	CREATE TABLE IF NOT EXISTS competition_entries (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		artist_name TEXT NOT NULL,
		email TEXT NOT NULL,
		song_title TEXT NOT NULL,
		stream_url TEXT NOT NULL DEFAULT '',
		lyrics TEXT NOT NULL DEFAULT '',
		categories TEXT NOT NULL,
		dob TEXT NOT NULL DEFAULT '',
		audio_path TEXT NOT NULL,
		consent_path TEXT NOT NULL DEFAULT '',
		payment_client_secret TEXT NOT NULL,
		paid INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		locked INTEGER NOT NULL DEFAULT 1,
		email_key TEXT NOT NULL,
		title_key TEXT NOT NULL,
		CONSTRAINT uq_entry_email_title UNIQUE (email_key, title_key)
	);`,
	DialectMySQL: `
	CREATE TABLE IF NOT EXISTS competition_entries (
		id VARCHAR(36) PRIMARY KEY,
		created_at VARCHAR(32) NOT NULL,
		artist_name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		song_title VARCHAR(255) NOT NULL,
		stream_url VARCHAR(767) NOT NULL DEFAULT '',
		lyrics TEXT NOT NULL,
		categories VARCHAR(255) NOT NULL,
		dob VARCHAR(32) NOT NULL DEFAULT '',
		audio_path VARCHAR(767) NOT NULL,
		consent_path VARCHAR(767) NOT NULL DEFAULT '',
		payment_client_secret VARCHAR(255) NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(20) NOT NULL,
		locked BOOLEAN NOT NULL DEFAULT TRUE,
		email_key VARCHAR(191) NOT NULL,
		title_key VARCHAR(191) NOT NULL,
		INDEX idx_entries_created_at (created_at),
		CONSTRAINT uq_entry_email_title UNIQUE (email_key, title_key)
	) DEFAULT CHARSET=utf8mb4;`,
}

const entryColumns = `id, created_at, artist_name, email, song_title, stream_url, lyrics, categories, dob,
	audio_path, consent_path, payment_client_secret, paid, status, locked`

// sqlEntryRepository implements EntryRepository on SQLite or MySQL. The
// unique constraint on the normalised (email, title) pair makes the
// duplicate check and the append one atomic statement.
type sqlEntryRepository struct {
	db      *sql.DB
	dialect Dialect
	clock   idClock

	mu   sync.Mutex
	last time.Time
}

// NewSQLEntryRepository wraps an open database. Call Migrate before use.
func NewSQLEntryRepository(db *sql.DB, dialect Dialect) *sqlEntryRepository {
	return &sqlEntryRepository{db: db, dialect: dialect, clock: defaultIDClock()}
}

// OpenSQLEntryRepository wraps db and ensures the schema exists.
func OpenSQLEntryRepository(ctx context.Context, db *sql.DB, dialect Dialect) (EntryRepository, error) {
	r := NewSQLEntryRepository(db, dialect)
	if err := r.Migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Migrate creates the entries table if it does not exist.
func (r *sqlEntryRepository) Migrate(ctx context.Context) error {
	ddl, ok := entrySchema[r.dialect]
	if !ok {
		return fmt.Errorf("unsupported ledger dialect %q", r.dialect)
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create competition_entries table: %w", err)
	}
	logger.Info("competition_entries table ready", logger.String("dialect", string(r.dialect)))
	return nil
}

func (r *sqlEntryRepository) Create(ctx context.Context, draft model.EntryDraft) (*model.CompetitionEntry, error) {
	categories, err := json.Marshal(draft.Categories)
	if err != nil {
		return nil, fmt.Errorf("encode categories: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.now()
	if now.Before(r.last) {
		now = r.last
	}
	entry := model.NewEntry(r.clock.newID(), now, draft)
	emailKey, titleKey := entry.DuplicateKey()

	query := `INSERT INTO competition_entries (` + entryColumns + `, email_key, title_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err = retryOnBusy(ctx, func() error {
		_, execErr := r.db.ExecContext(ctx, query,
			entry.ID, entry.CreatedAt.Format(createdAtLayout), entry.ArtistName, entry.Email, entry.SongTitle,
			entry.StreamURL, entry.Lyrics, string(categories), entry.DOB,
			entry.AudioPath, entry.ConsentPath, entry.PaymentClientSecret, entry.Paid,
			string(entry.Status), entry.Locked, emailKey, titleKey)
		return execErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errDuplicate()
		}
		return nil, fmt.Errorf("failed to insert competition entry: %w", err)
	}

	r.last = now
	logger.Info("competition entry created",
		logger.String("id", entry.ID),
		logger.String("songTitle", entry.SongTitle))
	return entry, nil
}

func (r *sqlEntryRepository) List(ctx context.Context) ([]*model.CompetitionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM competition_entries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query competition entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.CompetitionEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in List: %w", err)
	}
	return entries, nil
}

func (r *sqlEntryRepository) GetByID(ctx context.Context, id string) (*model.CompetitionEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM competition_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errEntryNotFound(id)
		}
		return nil, err
	}
	return entry, nil
}

func (r *sqlEntryRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*model.CompetitionEntry, error) {
	var (
		entry      model.CompetitionEntry
		createdAt  string
		categories string
		status     string
	)
	err := s.Scan(&entry.ID, &createdAt, &entry.ArtistName, &entry.Email, &entry.SongTitle,
		&entry.StreamURL, &entry.Lyrics, &categories, &entry.DOB,
		&entry.AudioPath, &entry.ConsentPath, &entry.PaymentClientSecret, &entry.Paid,
		&status, &entry.Locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan competition entry: %w", err)
	}

	entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of entry %s: %w", entry.ID, err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if err := json.Unmarshal([]byte(categories), &entry.Categories); err != nil {
		return nil, fmt.Errorf("decode categories of entry %s: %w", entry.ID, err)
	}
	entry.Status = model.EntryStatus(status)
	return &entry, nil
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateKey && strings.Contains(myErr.Message, "uq_entry_email_title")
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteConstraintUniq {
		return strings.Contains(err.Error(), "email_key")
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "email_key")
}

func isBusy(err error) bool {
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialDelay
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return lastErr
}
