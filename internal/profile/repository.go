package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/mqttdesk/internal/session"
)

// Repository defines the interface for profile persistence operations.
type Repository interface {
	Create(ctx context.Context, p *Profile) error
	List(ctx context.Context) ([]Profile, error)
	Get(ctx context.Context, id string) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed profile repository.
// The connection_profiles table must already exist (see the migrations package).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const profileColumns = `id, name, host, port, username, client_id, keepalive,
	will_topic, will_payload, will_qos, will_retain, created_at, updated_at`

// Create validates and inserts a new profile, assigning its ID and timestamps.
func (r *SQLiteRepository) Create(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = "prf-" + uuid.NewString()[:16]
	}
	now := r.now().UTC().Truncate(time.Second)
	p.CreatedAt, p.UpdatedAt = now, now

	will := willColumns(p.Will)
	const query = `INSERT INTO connection_profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Host, p.Port, p.Username, p.ClientID, p.KeepAlive,
		will.topic, will.payload, will.qos, will.retain,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return mapWriteError(fmt.Sprintf("inserting profile %s", p.ID), err)
	}
	return nil
}

// List returns all profiles ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM connection_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile rows: %w", err)
	}
	return profiles, nil
}

// Get returns a single profile by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM connection_profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning profile %s: %w", id, err)
	}
	return p, nil
}

// Update replaces every editable field of an existing profile.
func (r *SQLiteRepository) Update(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = r.now().UTC().Truncate(time.Second)

	will := willColumns(p.Will)
	const query = `UPDATE connection_profiles SET name = ?, host = ?, port = ?,
		username = ?, client_id = ?, keepalive = ?,
		will_topic = ?, will_payload = ?, will_qos = ?, will_retain = ?,
		updated_at = ?
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		p.Name, p.Host, p.Port, p.Username, p.ClientID, p.KeepAlive,
		will.topic, will.payload, will.qos, will.retain,
		formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return mapWriteError(fmt.Sprintf("updating profile %s", p.ID), err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// Delete removes a profile by ID.
// Returns ErrProfileNotFound if the profile does not exist.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM connection_profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting profile %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// =============================================================================
// Row mapping
// =============================================================================

type willRow struct {
	topic   sql.NullString
	payload string
	qos     int
	retain  bool
}

func willColumns(w *session.LastWill) willRow {
	if w == nil {
		return willRow{}
	}
	return willRow{
		topic:   sql.NullString{String: w.Topic, Valid: true},
		payload: w.Payload,
		qos:     int(w.QoS),
		retain:  w.Retain,
	}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*Profile, error) {
	var p Profile
	var will willRow
	var createdAt, updatedAt string

	err := s.Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Username, &p.ClientID, &p.KeepAlive,
		&will.topic, &will.payload, &will.qos, &will.retain, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if will.topic.Valid {
		p.Will = &session.LastWill{
			Topic:   will.topic.String,
			Payload: will.payload,
			QoS:     byte(will.qos),
			Retain:  will.retain,
		}
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// mapWriteError turns a unique-constraint violation into ErrDuplicateName.
func mapWriteError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateName
	}
	return fmt.Errorf("%s: %w", op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // Format is ours
	return t
}
