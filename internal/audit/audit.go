package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action names what an entry records.
type Action string

// Journaled actions.
const (
	ActionConnecting      Action = "connecting"
	ActionConnected       Action = "connected"
	ActionConnectFailed   Action = "connect_failed"
	ActionDisconnected    Action = "disconnected"
	ActionSubscribed      Action = "subscribed"
	ActionSubscribeFailed Action = "subscribe_failed"
	ActionUnsubscribed    Action = "unsubscribed"
	ActionProfileCreated  Action = "profile_created"
	ActionProfileUpdated  Action = "profile_updated"
	ActionProfileDeleted  Action = "profile_deleted"
)

// Entry sources.
const (
	SourceSession = "session"
	SourceAPI     = "api"
)

// Page size limits for List.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrInvalidEntry is returned when an entry has no action or source.
var ErrInvalidEntry = errors.New("audit: invalid entry")

// Entry is one line of connection history.
type Entry struct {
	ID        string         `json:"id"`
	Action    Action         `json:"action"`
	Source    string         `json:"source"`
	Broker    string         `json:"broker,omitempty"`
	Target    string         `json:"target,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter selects entries for List. Zero values match everything.
type Filter struct {
	Action Action
	Limit  int // default 50, max 500
	Offset int
}

// Page is one page of List results, newest first.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and queries entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*Page, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// SQLiteRepository implements Repository on the audit_log table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts an entry, assigning its ID and timestamp when unset.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.Action == "" || e.Source == "" {
		return fmt.Errorf("%w: action and source are required", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, source, broker, target, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.Source, e.Broker, e.Target, details,
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns a page of entries, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*Page, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		where string
		args  []any
	)
	if f.Action != "" {
		where = "WHERE action = ?"
		args = append(args, string(f.Action))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_log " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, action, source, broker, target, details, created_at
		FROM audit_log ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &Page{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Prune deletes all but the newest keep entries and returns how many were
// removed. keep <= 0 disables pruning.
func (r *SQLiteRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE id NOT IN (
			SELECT id FROM audit_log ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
		keep)
	if err != nil {
		return 0, fmt.Errorf("pruning audit log: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	return n, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		action    string
		details   sql.NullString
		createdAt string
	)
	if err := rows.Scan(&e.ID, &action, &e.Source, &e.Broker, &e.Target, &details, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.Action = Action(action)

	if details.Valid && strings.TrimSpace(details.String) != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return Entry{}, fmt.Errorf("decoding details of %s: %w", e.ID, err)
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp of %s: %w", e.ID, err)
	}
	e.CreatedAt = t
	return e, nil
}
