package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/mqttdesk/internal/infrastructure/database"
	"github.com/nerrad567/mqttdesk/internal/session"
	"github.com/nerrad567/mqttdesk/migrations"
)

// setupTestRepo opens an in-memory store with the real migrations applied.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	repo := NewSQLiteRepository(db.DB)
	repo.now = func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) }
	return repo
}

func sampleProfile() *Profile {
	return &Profile{
		Name:     "Local Mosquitto",
		Host:     "localhost",
		Port:     1883,
		Username: "alice",
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p := sampleProfile()
	p.Will = &session.LastWill{Topic: "desk/status", Payload: "offline", QoS: 1, Retain: true}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.ID == "" || p.ID[:4] != "prf-" {
		t.Errorf("ID = %q, want prf- prefix", p.ID)
	}
	if p.KeepAlive != DefaultKeepAlive {
		t.Errorf("KeepAlive = %d, want default %d", p.KeepAlive, DefaultKeepAlive)
	}

	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != p.Name || got.Host != p.Host || got.Port != p.Port || got.Username != "alice" {
		t.Errorf("Get() = %+v, want %+v", got, p)
	}
	if got.Will == nil || *got.Will != *p.Will {
		t.Errorf("Will = %+v, want %+v", got.Will, p.Will)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, p.CreatedAt)
	}
}

func TestCreate_WithoutWill(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p := sampleProfile()
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Will != nil {
		t.Errorf("Will = %+v, want nil", got.Will)
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, sampleProfile()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, sampleProfile()); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("second Create() error = %v, want ErrDuplicateName", err)
	}
}

func TestCreate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"empty name", func(p *Profile) { p.Name = "  " }},
		{"empty host", func(p *Profile) { p.Host = "" }},
		{"port zero", func(p *Profile) { p.Port = 0 }},
		{"port too high", func(p *Profile) { p.Port = 70000 }},
		{"negative keepalive", func(p *Profile) { p.KeepAlive = -1 }},
		{"wildcard will", func(p *Profile) { p.Will = &session.LastWill{Topic: "a/#"} }},
		{"will qos", func(p *Profile) { p.Will = &session.LastWill{Topic: "a", QoS: 3} }},
	}

	repo := setupTestRepo(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sampleProfile()
			tt.mutate(p)
			if err := repo.Create(context.Background(), p); !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("Create() error = %v, want ErrInvalidProfile", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List() on empty store = %v, want empty non-nil slice", empty)
	}

	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		p := sampleProfile()
		p.Name = name
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	profiles, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(profiles) != 3 || profiles[0].Name != "Alpha" || profiles[2].Name != "Zeta" {
		t.Errorf("List() = %+v, want sorted by name", profiles)
	}
}

func TestUpdate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p := sampleProfile()
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	p.Host = "broker.example.com"
	p.Port = 8883
	p.Will = &session.LastWill{Topic: "x"}
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Host != "broker.example.com" || got.Port != 8883 || got.Will == nil {
		t.Errorf("Get() after Update = %+v", got)
	}

	missing := sampleProfile()
	missing.ID = "prf-missing"
	missing.Name = "Other"
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Update() of missing profile error = %v, want ErrProfileNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p := sampleProfile()
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, p.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrProfileNotFound", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("second Delete() error = %v, want ErrProfileNotFound", err)
	}
}

func TestConnectParams(t *testing.T) {
	p := sampleProfile()
	params := p.ConnectParams("secret")

	if params.Host != "localhost" || params.Port != "1883" || params.Username != "alice" || params.Password != "secret" {
		t.Errorf("ConnectParams() = %+v", params)
	}
	if _, err := session.ParsePort(params.Port); err != nil {
		t.Errorf("ConnectParams() port does not parse: %v", err)
	}
	if params.Will != nil {
		t.Errorf("ConnectParams() Will = %+v, want nil for a profile without a will", params.Will)
	}

	p.Will = &session.LastWill{Topic: "desk/status", Payload: "offline", QoS: 1}
	if got := p.ConnectParams("").Will; got == nil || got.Topic != "desk/status" {
		t.Errorf("ConnectParams() Will = %+v, want desk/status", got)
	}
}
