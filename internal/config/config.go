package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds file- and environment-driven configuration.
type Config struct {
	Store struct {
		Driver string // sqlite (default), mysql or memory
	}
	MySQL struct {
		DSN string // e.g., user:pass@tcp(host:3306)/dbname
	}
	SQLite struct {
		Path string
	}
	DataDir string // token and local device storage
	Autosave struct {
		Delay time.Duration
	}
	Snapshot struct {
		PollInterval time.Duration
	}
	HTTP struct {
		Addr string
	}
	User struct {
		ID    string // static identity; empty means OAuth login
		Email string
	}
	OAuth struct {
		ClientID      string
		DeviceAuthURL string
		TokenURL      string
		UserInfoURL   string
		Scopes        []string
	}
	BasicAuth struct {
		Enabled  bool
		Username string
		Password string
	}
	OTEL struct {
		Enabled  bool
		Endpoint string
		Insecure bool
	}
	Export struct {
		Template string // path to a mustache template; empty uses the built-in one
	}
	Sync struct {
		Timezone string // IANA zone for "today"; Local (default), UTC, Europe/Berlin
	}
}

// fileConfig is the TOML shape of the config file.
type fileConfig struct {
	DataDir  string `toml:"data_dir"`
	Timezone string `toml:"timezone"`
	Store    struct {
		Driver string `toml:"driver"`
	} `toml:"store"`
	MySQL struct {
		DSN string `toml:"dsn"`
	} `toml:"mysql"`
	SQLite struct {
		Path string `toml:"path"`
	} `toml:"sqlite"`
	Autosave struct {
		Delay string `toml:"delay"`
	} `toml:"autosave"`
	Snapshot struct {
		PollInterval string `toml:"poll_interval"`
	} `toml:"snapshot"`
	HTTP struct {
		Addr string `toml:"addr"`
	} `toml:"http"`
	User struct {
		ID    string `toml:"id"`
		Email string `toml:"email"`
	} `toml:"user"`
	OAuth struct {
		ClientID      string   `toml:"client_id"`
		DeviceAuthURL string   `toml:"device_auth_url"`
		TokenURL      string   `toml:"token_url"`
		UserInfoURL   string   `toml:"userinfo_url"`
		Scopes        []string `toml:"scopes"`
	} `toml:"oauth"`
	BasicAuth struct {
		Enabled  *bool  `toml:"enabled"`
		Username string `toml:"username"`
		Password string `toml:"password"`
	} `toml:"basic_auth"`
	OTEL struct {
		Enabled  bool   `toml:"enabled"`
		Endpoint string `toml:"endpoint"`
		Insecure bool   `toml:"insecure"`
	} `toml:"otel"`
	Export struct {
		Template string `toml:"template"`
	} `toml:"export"`
}

// Path returns the config file location: $TIMESHEET_CONFIG or
// ~/.config/timesheet/config.toml.
func Path() string {
	if p := os.Getenv("TIMESHEET_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "timesheet", "config.toml")
}

// Load reads defaults, then the config file if present, then environment
// variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := Path(); path != "" {
		if _, err := os.Stat(path); err == nil {
			var fc fileConfig
			if _, err := toml.DecodeFile(path, &fc); err != nil {
				return cfg, fmt.Errorf("config file %s: %w", path, err)
			}
			if err := cfg.applyFile(fc); err != nil {
				return cfg, fmt.Errorf("config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func defaults() Config {
	var cfg Config
	dataDir := ".timesheet"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "timesheet")
	}
	cfg.Store.Driver = DriverSQLite
	cfg.DataDir = dataDir
	cfg.Autosave.Delay = time.Second
	cfg.Snapshot.PollInterval = 15 * time.Second
	cfg.HTTP.Addr = "127.0.0.1:8080"
	cfg.OAuth.Scopes = []string{"openid", "email", "offline_access"}
	cfg.BasicAuth.Enabled = true
	cfg.BasicAuth.Username = "admin"
	cfg.BasicAuth.Password = "password"
	cfg.Sync.Timezone = "Local"
	return cfg
}

func (cfg *Config) applyFile(fc fileConfig) error {
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.Sync.Timezone, fc.Timezone)
	setString(&cfg.Store.Driver, fc.Store.Driver)
	setString(&cfg.MySQL.DSN, fc.MySQL.DSN)
	setString(&cfg.SQLite.Path, fc.SQLite.Path)
	setString(&cfg.HTTP.Addr, fc.HTTP.Addr)
	setString(&cfg.User.ID, fc.User.ID)
	setString(&cfg.User.Email, fc.User.Email)
	setString(&cfg.OAuth.ClientID, fc.OAuth.ClientID)
	setString(&cfg.OAuth.DeviceAuthURL, fc.OAuth.DeviceAuthURL)
	setString(&cfg.OAuth.TokenURL, fc.OAuth.TokenURL)
	setString(&cfg.OAuth.UserInfoURL, fc.OAuth.UserInfoURL)
	if len(fc.OAuth.Scopes) > 0 {
		cfg.OAuth.Scopes = fc.OAuth.Scopes
	}
	if fc.BasicAuth.Enabled != nil {
		cfg.BasicAuth.Enabled = *fc.BasicAuth.Enabled
	}
	setString(&cfg.BasicAuth.Username, fc.BasicAuth.Username)
	setString(&cfg.BasicAuth.Password, fc.BasicAuth.Password)
	cfg.OTEL.Enabled = cfg.OTEL.Enabled || fc.OTEL.Enabled
	cfg.OTEL.Insecure = cfg.OTEL.Insecure || fc.OTEL.Insecure
	setString(&cfg.OTEL.Endpoint, fc.OTEL.Endpoint)
	setString(&cfg.Export.Template, fc.Export.Template)

	if fc.Autosave.Delay != "" {
		d, err := time.ParseDuration(fc.Autosave.Delay)
		if err != nil {
			return fmt.Errorf("autosave.delay: %w", err)
		}
		cfg.Autosave.Delay = d
	}
	if fc.Snapshot.PollInterval != "" {
		d, err := time.ParseDuration(fc.Snapshot.PollInterval)
		if err != nil {
			return fmt.Errorf("snapshot.poll_interval: %w", err)
		}
		cfg.Snapshot.PollInterval = d
	}
	return nil
}

func (cfg *Config) applyEnv() error {
	setString(&cfg.Store.Driver, os.Getenv("TIMESHEET_STORE"))
	setString(&cfg.MySQL.DSN, os.Getenv("MYSQL_DSN"))
	setString(&cfg.SQLite.Path, os.Getenv("SQLITE_PATH"))
	setString(&cfg.DataDir, os.Getenv("TIMESHEET_DATA_DIR"))
	setString(&cfg.HTTP.Addr, os.Getenv("HTTP_ADDR"))
	setString(&cfg.User.ID, os.Getenv("TIMESHEET_USER_ID"))
	setString(&cfg.User.Email, os.Getenv("TIMESHEET_USER_EMAIL"))
	setString(&cfg.OAuth.ClientID, os.Getenv("OAUTH_CLIENT_ID"))
	setString(&cfg.OAuth.DeviceAuthURL, os.Getenv("OAUTH_DEVICE_AUTH_URL"))
	setString(&cfg.OAuth.TokenURL, os.Getenv("OAUTH_TOKEN_URL"))
	setString(&cfg.OAuth.UserInfoURL, os.Getenv("OAUTH_USERINFO_URL"))
	if s := os.Getenv("OAUTH_SCOPES"); s != "" {
		cfg.OAuth.Scopes = strings.Fields(strings.ReplaceAll(s, ",", " "))
	}
	setString(&cfg.BasicAuth.Username, os.Getenv("BASIC_AUTH_USERNAME"))
	setString(&cfg.BasicAuth.Password, os.Getenv("BASIC_AUTH_PASSWORD"))
	setString(&cfg.OTEL.Endpoint, os.Getenv("OTEL_ENDPOINT"))
	setString(&cfg.Export.Template, os.Getenv("EXPORT_TEMPLATE"))
	setString(&cfg.Sync.Timezone, os.Getenv("SYNC_TZ"))

	if err := setBool(&cfg.BasicAuth.Enabled, "BASIC_AUTH_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&cfg.OTEL.Enabled, "OTEL_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&cfg.OTEL.Insecure, "OTEL_INSECURE"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Autosave.Delay, "AUTOSAVE_DELAY"); err != nil {
		return err
	}
	return setDuration(&cfg.Snapshot.PollInterval, "SNAPSHOT_POLL")
}

func (cfg *Config) validate() error {
	switch cfg.Store.Driver {
	case DriverSQLite:
		if cfg.SQLite.Path == "" {
			cfg.SQLite.Path = filepath.Join(cfg.DataDir, "timesheet.db")
		}
	case DriverMySQL:
		if cfg.MySQL.DSN == "" {
			return errors.New("MYSQL_DSN is required for the mysql store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q (want sqlite, mysql or memory)", cfg.Store.Driver)
	}
	if cfg.Autosave.Delay <= 0 {
		return errors.New("AUTOSAVE_DELAY must be positive")
	}
	if cfg.Snapshot.PollInterval < 0 {
		return errors.New("SNAPSHOT_POLL must not be negative")
	}
	if cfg.BasicAuth.Enabled && (cfg.BasicAuth.Username == "" || cfg.BasicAuth.Password == "") {
		return errors.New("basic auth needs a username and password")
	}
	return nil
}

// Location resolves Sync.Timezone.
func (cfg Config) Location() (*time.Location, error) {
	if cfg.Sync.Timezone == "" || cfg.Sync.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(cfg.Sync.Timezone)
}

// OAuthConfigured reports whether device-code login can run.
func (cfg Config) OAuthConfigured() bool {
	return cfg.OAuth.ClientID != "" && cfg.OAuth.DeviceAuthURL != "" && cfg.OAuth.TokenURL != ""
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s must be a boolean", env)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a duration like 1s or 500ms", env)
	}
	*dst = d
	return nil
}
