package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"timesheet/internal/adapter/memory"
	"timesheet/internal/adapter/sqlite"
	"timesheet/internal/auth"
	"timesheet/internal/config"
	"timesheet/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	var cfg config.Config

	cfg.Store.Driver = config.DriverMemory
	s, err := OpenStore(ctx, cfg, discard())
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("memory driver gave %T", s)
	}

	cfg.Store.Driver = config.DriverSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "nested", "sheet.db")
	s, err = OpenStore(ctx, cfg, discard())
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, ok := s.(*sqlite.Store); !ok {
		t.Errorf("sqlite driver gave %T", s)
	}

	cfg.Store.Driver = "postgres"
	if _, err := OpenStore(ctx, cfg, discard()); err == nil {
		t.Error("unknown driver accepted")
	}
}

func TestNewAuth(t *testing.T) {
	var cfg config.Config
	cfg.DataDir = t.TempDir()

	p, o := NewAuth(cfg, discard())
	if u, err := p.CurrentUser(context.Background()); u != nil || err != nil || o != nil {
		t.Errorf("unconfigured = %v, %v, oauth %v", u, err, o)
	}

	cfg.OAuth.ClientID = "cli"
	cfg.OAuth.DeviceAuthURL = "https://id.example/device"
	cfg.OAuth.TokenURL = "https://id.example/token"
	if _, o := NewAuth(cfg, discard()); o == nil {
		t.Error("OAuth not selected when configured")
	}

	cfg.User.ID = "u1"
	cfg.User.Email = "u1@example.com"
	p, o = NewAuth(cfg, discard())
	if _, ok := p.(auth.Static); !ok || o != nil {
		t.Fatalf("static identity not preferred: %T", p)
	}
	if u, _ := p.CurrentUser(context.Background()); u == nil || u.UID != "u1" {
		t.Errorf("static user = %v", u)
	}
}

func TestDeleteSessionWithoutUser(t *testing.T) {
	a, _ := newTestApp(t, nil, false)
	if err := a.DeleteSession(context.Background(), "x"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestExportTemplate(t *testing.T) {
	a, _ := newTestApp(t, &domain.User{UID: "u1"}, false)
	if tmpl, err := a.ExportTemplate(); tmpl != "" || err != nil {
		t.Errorf("default = %q, %v", tmpl, err)
	}

	path := filepath.Join(t.TempDir(), "day.mustache")
	if err := os.WriteFile(path, []byte("{{date}}"), 0o600); err != nil {
		t.Fatal(err)
	}
	a.cfg.Export.Template = path
	if tmpl, err := a.ExportTemplate(); tmpl != "{{date}}" || err != nil {
		t.Errorf("file = %q, %v", tmpl, err)
	}

	a.cfg.Export.Template = filepath.Join(t.TempDir(), "missing")
	if _, err := a.ExportTemplate(); err == nil {
		t.Error("missing template accepted")
	}
}

func TestFindSession(t *testing.T) {
	a, store := newTestApp(t, &domain.User{UID: "u1"}, false)
	store.Put("users/u1/timeTracking", domain.Document{ID: "d1", Data: []byte(`{"sessionDate":"2024-03-15"}`)})
	a.Collection().Refresh(context.Background())

	if s, ok := a.FindSession("2024-03-15"); !ok || s.ID != "d1" {
		t.Errorf("FindSession = %+v, %v", s, ok)
	}
	if _, ok := a.FindSession("2024-03-16"); ok {
		t.Error("found a session for an empty date")
	}
}
