package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"timesheet/internal/adapter/memory"
	msql "timesheet/internal/adapter/mysql"
	"timesheet/internal/adapter/otel"
	"timesheet/internal/adapter/sqlite"
	"timesheet/internal/auth"
	"timesheet/internal/collection"
	"timesheet/internal/config"
	"timesheet/internal/domain"
	"timesheet/internal/localstore"
	"timesheet/internal/ports"
	"timesheet/internal/timecalc"
	"timesheet/internal/usecase"
)

// ErrCurrentSession is returned when deleting the session that is open.
var ErrCurrentSession = errors.New("session is open; load another one before deleting it")

// App wires adapters and use cases.
type App struct {
	log     *slog.Logger
	cfg     config.Config
	store   ports.DocumentStore
	user    *domain.User
	metrics ports.MetricsRecorder
	coll    *collection.Collection
	rec     *usecase.Reconciler
	gate    *localstore.Gate
}

// New resolves the signed-in user and opens the configured store, running
// migrations first.
func New(ctx context.Context, log *slog.Logger, cfg config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_TZ %q: %w", cfg.Sync.Timezone, err)
	}
	timecalc.SetLocation(loc)

	provider, _ := NewAuth(cfg, log)

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var metrics ports.MetricsRecorder = otel.NewNoOpRecorder()
	if cfg.OTEL.Enabled {
		exp, err := otel.NewExporter(ctx, otel.Config{
			Endpoint: cfg.OTEL.Endpoint,
			Enabled:  cfg.OTEL.Enabled,
			Insecure: cfg.OTEL.Insecure,
		})
		if err != nil {
			log.Warn("metrics disabled", slog.String("error", err.Error()))
		} else {
			metrics = exp
		}
	}

	a, err := assemble(ctx, log, cfg, store, provider, metrics)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// NewAuth picks the identity source: a static user, OAuth device login when
// configured, or nobody. The OAuth client is returned for login and logout.
func NewAuth(cfg config.Config, log *slog.Logger) (ports.AuthProvider, *auth.OAuth) {
	switch {
	case cfg.User.ID != "":
		return auth.Static{User: domain.User{UID: cfg.User.ID, Email: cfg.User.Email}}, nil
	case cfg.OAuthConfigured():
		o := auth.NewOAuth(auth.OAuthConfig{
			ClientID:      cfg.OAuth.ClientID,
			DeviceAuthURL: cfg.OAuth.DeviceAuthURL,
			TokenURL:      cfg.OAuth.TokenURL,
			UserInfoURL:   cfg.OAuth.UserInfoURL,
			Scopes:        cfg.OAuth.Scopes,
		}, filepath.Join(cfg.DataDir, "auth"), log)
		return o, o
	default:
		return auth.Static{}, nil
	}
}

// NewGate returns the basic-auth gate backed by the device's local storage.
func NewGate(cfg config.Config) *localstore.Gate {
	return localstore.NewGate(
		localstore.NewFile(filepath.Join(cfg.DataDir, "local.json")),
		cfg.BasicAuth.Username, cfg.BasicAuth.Password,
	)
}

// OpenStore opens the document store named by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (ports.DocumentStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverMySQL:
		return msql.Open(ctx, cfg.MySQL.DSN, log)
	case config.DriverSQLite, "":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return sqlite.Open(ctx, cfg.SQLite.Path, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func assemble(ctx context.Context, log *slog.Logger, cfg config.Config, store ports.DocumentStore, provider ports.AuthProvider, metrics ports.MetricsRecorder) (*App, error) {
	user, err := provider.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}
	if user == nil {
		log.Warn("no signed-in user; run login or set TIMESHEET_USER_ID")
	} else {
		log.Info("signed in", slog.String("uid", user.UID), slog.String("email", user.Email))
	}

	coll := collection.New(store, user, log,
		collection.WithPollInterval(cfg.Snapshot.PollInterval),
		collection.WithMetrics(metrics),
	)
	rec := usecase.NewReconciler(coll, user, log,
		usecase.WithAutosaveDelay(cfg.Autosave.Delay),
		usecase.WithMetrics(metrics),
	)
	return &App{
		log:     log,
		cfg:     cfg,
		store:   store,
		user:    user,
		metrics: metrics,
		coll:    coll,
		rec:     rec,
		gate:    NewGate(cfg),
	}, nil
}

// Start loads the first snapshot, settles the current session and keeps the
// reconciler fed with later snapshots until ctx is done.
func (a *App) Start(ctx context.Context) {
	a.coll.Start(ctx)
	a.rec.HandleSnapshot(a.coll.Current())
	go a.rec.Run(ctx)
}

// Close cancels pending autosaves and releases the store and exporter.
func (a *App) Close(ctx context.Context) error {
	a.rec.Close()
	var errs []error
	if err := a.metrics.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) User() *domain.User { return a.user }
func (a *App) Reconciler() *usecase.Reconciler { return a.rec }
func (a *App) Collection() *collection.Collection { return a.coll }

// FindSession returns the stored session of date (YYYY-MM-DD).
func (a *App) FindSession(date string) (domain.Session, bool) {
	for _, doc := range a.coll.Current().Docs {
		s, ok := domain.DecodeSession(doc)
		if ok && s.SessionDate == date {
			return s, true
		}
	}
	return domain.Session{}, false
}

// DeleteSession removes a stored session. The open session cannot be
// deleted.
func (a *App) DeleteSession(ctx context.Context, id string) error {
	if a.user == nil {
		return domain.ErrNotAuthenticated
	}
	if cur := a.rec.Current(); cur.ID != "" && cur.ID == id {
		return ErrCurrentSession
	}
	if err := a.coll.Delete(ctx, id); err != nil {
		return err
	}
	a.log.Info("session deleted", slog.String("id", id))
	return nil
}

// ExportTemplate returns the configured export template, or "" for the
// built-in one.
func (a *App) ExportTemplate() (string, error) {
	if a.cfg.Export.Template == "" {
		return "", nil
	}
	b, err := os.ReadFile(a.cfg.Export.Template)
	if err != nil {
		return "", fmt.Errorf("reading export template: %w", err)
	}
	return string(b), nil
}
