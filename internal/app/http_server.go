package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"timesheet/internal/domain"
	"timesheet/internal/timecalc"
)

// sessionJSON is the wire shape of a session; domain.Session keeps its
// identity and timestamps out of the stored document.
type sessionJSON struct {
	ID string `json:"id,omitempty"`
	domain.Session
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func toJSON(s domain.Session) sessionJSON {
	out := sessionJSON{ID: s.ID, Session: s}
	if !s.CreatedAt.IsZero() {
		out.CreatedAt = &s.CreatedAt
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = &s.UpdatedAt
	}
	return out
}

type stateJSON struct {
	Current     sessionJSON   `json:"current"`
	Sessions    []sessionJSON `json:"sessions"`
	Loading     bool          `json:"loading"`
	Error       string        `json:"error,omitempty"`
	IsSaving    bool          `json:"isSaving"`
	Initialized bool          `json:"initialized"`
}

// HTTPServer returns a configured http.Server exposing the sheet as a JSON
// API. Call ListenAndServe on the returned server in a goroutine and Shutdown
// it on exit.
func (a *App) HTTPServer(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: a.Handler()}
	a.log.Info("http server configured", slog.String("addr", addr))
	return srv
}

// Handler is the routed API with logging and the basic-auth gate applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	api := http.NewServeMux()
	api.HandleFunc("GET /api/session", a.handleState)
	api.HandleFunc("GET /api/sessions", a.handleSessions)
	api.HandleFunc("POST /api/sessions", a.handleNewSession)
	api.HandleFunc("POST /api/sessions/{id}/load", a.handleLoad)
	api.HandleFunc("DELETE /api/sessions/{id}", a.handleDelete)
	api.HandleFunc("PUT /api/session/entries", a.handleEntries)
	api.HandleFunc("POST /api/session/rows", a.handleInsertRow)
	api.HandleFunc("PUT /api/session/start-time", a.handleStartTime)
	api.HandleFunc("PATCH /api/session/tasks", a.handleTask)
	api.HandleFunc("POST /api/session/save", a.handleSave)
	api.HandleFunc("PUT /api/session/memo", a.handleMemo)
	mux.Handle("/api/", a.requireUser(api))

	var h http.Handler = mux
	if a.cfg.BasicAuth.Enabled {
		h = a.basicAuth(h)
	}
	return loggingMiddleware(a.log, h)
}

func (a *App) handleState(w http.ResponseWriter, r *http.Request) {
	v := a.rec.State()
	out := stateJSON{
		Current:     toJSON(v.Current),
		Sessions:    make([]sessionJSON, 0, len(v.AllSessions)),
		Loading:     v.Loading,
		Error:       v.Error,
		IsSaving:    v.IsSaving,
		Initialized: v.Initialized,
	}
	for _, s := range v.AllSessions {
		out.Sessions = append(out.Sessions, toJSON(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSessions returns sessions grouped by year, then YYYY-MM.
func (a *App) handleSessions(w http.ResponseWriter, r *http.Request) {
	idx := a.rec.SessionsByDate()
	out := make(map[string]map[string][]sessionJSON, len(idx))
	for year, months := range idx {
		out[year] = make(map[string][]sessionJSON, len(months))
		for month, sessions := range months {
			list := make([]sessionJSON, 0, len(sessions))
			for _, s := range sessions {
				list = append(list, toJSON(s))
			}
			out[year][month] = list
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionDate string `json:"sessionDate"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	date := ""
	if req.SessionDate != "" {
		d, err := timecalc.ParseDateInput(req.SessionDate, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = d
	}
	s, ok := a.rec.StartNewSession(r.Context(), date)
	if !ok {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "session could not be saved",
			"session": toJSON(s),
		})
		return
	}
	writeJSON(w, http.StatusCreated, toJSON(s))
}

func (a *App) handleLoad(w http.ResponseWriter, r *http.Request) {
	if !a.rec.LoadSession(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, domain.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, toJSON(a.rec.Current()))
}

func (a *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := a.DeleteSession(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrCurrentSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (a *App) handleEntries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries []domain.TimeEntry `json:"entries"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, toJSON(a.rec.UpdateEntries(req.Entries)))
}

func (a *App) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		After int `json:"after"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, toJSON(a.rec.InsertRowAfter(req.After)))
}

func (a *App) handleStartTime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartTime string `json:"startTime"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.StartTime != "" {
		if _, _, ok := timecalc.ParseClock(req.StartTime); !ok {
			writeError(w, http.StatusBadRequest, "startTime must be H:MM")
			return
		}
	}
	writeJSON(w, http.StatusOK, toJSON(a.rec.SetFirstStartTime(req.StartTime)))
}

func (a *App) handleTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntryID   string           `json:"entryId"`
		TaskIndex int              `json:"taskIndex"`
		Field     domain.TaskField `json:"field"`
		Value     string           `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Field != domain.TaskContent && req.Field != domain.TaskTime {
		writeError(w, http.StatusBadRequest, `field must be "content" or "time"`)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(a.rec.EditTask(req.EntryID, req.TaskIndex, req.Field, req.Value)))
}

func (a *App) handleSave(w http.ResponseWriter, r *http.Request) {
	if !a.rec.SaveSession(r.Context(), a.rec.Current().Entries) {
		writeError(w, http.StatusBadGateway, "session could not be saved")
		return
	}
	writeJSON(w, http.StatusOK, toJSON(a.rec.Current()))
}

func (a *App) handleMemo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Memo string `json:"memo"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !a.rec.SaveMemo(r.Context(), req.Memo) {
		writeError(w, http.StatusBadGateway, "memo could not be saved")
		return
	}
	writeJSON(w, http.StatusOK, toJSON(a.rec.Current()))
}

// requireUser rejects API calls while nobody is signed in.
func (a *App) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.user == nil {
			writeError(w, http.StatusUnauthorized, domain.ErrNotAuthenticated.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// basicAuth guards everything except the health check.
func (a *App) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !a.gate.Check(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="timesheet"`)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("dur", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"status": "error", "error": msg})
}
