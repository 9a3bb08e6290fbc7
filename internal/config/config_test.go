package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// isolate points the config file and home at a temp dir and clears the
// variables Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("TIMESHEET_CONFIG", filepath.Join(dir, "config.toml"))
	for _, k := range []string{
		"TIMESHEET_STORE", "MYSQL_DSN", "SQLITE_PATH", "TIMESHEET_DATA_DIR", "HTTP_ADDR",
		"TIMESHEET_USER_ID", "TIMESHEET_USER_EMAIL", "OAUTH_CLIENT_ID", "OAUTH_DEVICE_AUTH_URL",
		"OAUTH_TOKEN_URL", "OAUTH_USERINFO_URL", "OAUTH_SCOPES", "BASIC_AUTH_USERNAME",
		"BASIC_AUTH_PASSWORD", "BASIC_AUTH_ENABLED", "OTEL_ENABLED", "OTEL_ENDPOINT",
		"OTEL_INSECURE", "EXPORT_TEMPLATE", "SYNC_TZ", "AUTOSAVE_DELAY", "SNAPSHOT_POLL",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("driver = %q", cfg.Store.Driver)
	}
	wantData := filepath.Join(dir, ".local", "share", "timesheet")
	if cfg.DataDir != wantData {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, wantData)
	}
	if cfg.SQLite.Path != filepath.Join(wantData, "timesheet.db") {
		t.Errorf("SQLite.Path = %q", cfg.SQLite.Path)
	}
	if cfg.Autosave.Delay != time.Second || cfg.Snapshot.PollInterval != 15*time.Second {
		t.Errorf("delays = %v, %v", cfg.Autosave.Delay, cfg.Snapshot.PollInterval)
	}
	if cfg.BasicAuth.Username != "admin" || cfg.BasicAuth.Password != "password" || !cfg.BasicAuth.Enabled {
		t.Errorf("basic auth = %+v", cfg.BasicAuth)
	}
	if cfg.OAuthConfigured() {
		t.Error("OAuth configured by default")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := isolate(t)
	file := `
data_dir = "/srv/timesheet"
timezone = "UTC"

[store]
driver = "mysql"

[mysql]
dsn = "file:pass@tcp(db:3306)/sheet"

[autosave]
delay = "6s"

[oauth]
client_id = "cli"
device_auth_url = "https://id.example/device"
token_url = "https://id.example/token"
scopes = ["openid"]

[basic_auth]
enabled = false
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(file), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MYSQL_DSN", "env:pass@tcp(db:3306)/sheet")
	t.Setenv("SNAPSHOT_POLL", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != DriverMySQL || cfg.MySQL.DSN != "env:pass@tcp(db:3306)/sheet" {
		t.Errorf("store = %q dsn = %q", cfg.Store.Driver, cfg.MySQL.DSN)
	}
	if cfg.DataDir != "/srv/timesheet" || cfg.Autosave.Delay != 6*time.Second || cfg.Snapshot.PollInterval != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.OAuthConfigured() || !reflect.DeepEqual(cfg.OAuth.Scopes, []string{"openid"}) {
		t.Errorf("oauth = %+v", cfg.OAuth)
	}
	if cfg.BasicAuth.Enabled {
		t.Error("basic auth should be disabled by the file")
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location = %v, %v", loc, err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"unknown driver", map[string]string{"TIMESHEET_STORE": "postgres"}, ""},
		{"mysql without dsn", map[string]string{"TIMESHEET_STORE": "mysql"}, ""},
		{"bad delay", map[string]string{"AUTOSAVE_DELAY": "soon"}, ""},
		{"zero delay", map[string]string{"AUTOSAVE_DELAY": "0s"}, ""},
		{"bad bool", map[string]string{"OTEL_ENABLED": "maybe"}, ""},
		{"bad toml", nil, "store = ["},
		{"bad file duration", nil, "[snapshot]\npoll_interval = \"fast\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.file != "" {
				if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(tt.file), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestScopesFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("OAUTH_SCOPES", "openid, email profile")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := []string{"openid", "email", "profile"}; !reflect.DeepEqual(cfg.OAuth.Scopes, want) {
		t.Errorf("Scopes = %v, want %v", cfg.OAuth.Scopes, want)
	}
}
