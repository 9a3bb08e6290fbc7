package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"timesheet/internal/collection"
	"timesheet/internal/domain"
	"timesheet/internal/ports"
	"timesheet/internal/timecalc"
)

// Collection is the live document collection the reconciler reads from and
// writes through. *collection.Collection implements it.
type Collection interface {
	Current() collection.Snapshot
	Subscribe() (<-chan collection.Snapshot, func())
	Create(ctx context.Context, fields map[string]any) (string, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

type initState int

const (
	stateUninitialized initState = iota
	stateInitialized
)

// View is what the presentation layer renders.
type View struct {
	Current        domain.Session
	AllSessions    []domain.Session
	SessionsByDate domain.SessionsByDate
	Loading        bool
	Error          string
	IsSaving       bool
	Initialized    bool
}

// Reconciler owns the current session of one user and keeps it in step with
// the stored collection. All methods are safe for concurrent use; store I/O
// never runs under the lock.
type Reconciler struct {
	coll     Collection
	user     *domain.User
	log      *slog.Logger
	metrics  ports.MetricsRecorder
	now      func() time.Time
	autosave *debouncer

	mu      sync.Mutex
	state   initState
	current domain.Session
	saving  int
	baseCtx context.Context
}

// Option configures a Reconciler.
type Option func(*reconcilerOptions)

type reconcilerOptions struct {
	delay   time.Duration
	after   AfterFunc
	now     func() time.Time
	metrics ports.MetricsRecorder
}

// WithAutosaveDelay sets the quiet period before an edit is persisted.
func WithAutosaveDelay(d time.Duration) Option {
	return func(o *reconcilerOptions) { o.delay = d }
}

// WithAfterFunc replaces the timer used for autosave.
func WithAfterFunc(f AfterFunc) Option {
	return func(o *reconcilerOptions) { o.after = f }
}

// WithClock sets the source of "today".
func WithClock(now func() time.Time) Option {
	return func(o *reconcilerOptions) { o.now = now }
}

// WithMetrics records the minutes of every saved session.
func WithMetrics(m ports.MetricsRecorder) Option {
	return func(o *reconcilerOptions) { o.metrics = m }
}

// NewReconciler creates the reconciler for user. A nil user never
// initializes and every write fails.
func NewReconciler(coll Collection, user *domain.User, log *slog.Logger, opts ...Option) *Reconciler {
	o := reconcilerOptions{delay: DefaultAutosaveDelay, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reconciler{
		coll:     coll,
		user:     user,
		log:      log,
		metrics:  o.metrics,
		now:      o.now,
		autosave: newDebouncer(o.delay, o.after),
		baseCtx:  context.Background(),
	}
}

// Run feeds collection snapshots into HandleSnapshot until ctx is done and
// then cancels any pending autosave.
func (r *Reconciler) Run(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	ch, unsubscribe := r.coll.Subscribe()
	defer unsubscribe()
	defer r.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			r.HandleSnapshot(snap)
		}
	}
}

// Close cancels the pending autosave.
func (r *Reconciler) Close() {
	if r.autosave.Cancel() {
		r.log.Debug("pending autosave cancelled")
	}
}

// HandleSnapshot runs the initialization protocol on the first loaded
// snapshot: today's stored session is adopted, otherwise a fresh unsaved
// default is created. Later snapshots never replace the current session.
func (r *Reconciler) HandleSnapshot(snap collection.Snapshot) {
	if snap.Err != nil {
		r.log.Warn("session snapshot error", slog.String("error", snap.Err.Error()))
	}
	if r.user == nil || snap.Loading {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateUninitialized {
		return
	}
	today := r.today()
	if s, ok := r.findByDate(snap.Docs, today); ok {
		r.current = r.adopt(s)
		r.log.Info("loaded today's session", slog.String("id", s.ID), slog.String("date", today))
	} else {
		r.current = domain.NewSession(today, r.user.UID)
		r.log.Info("started unsaved session", slog.String("date", today))
	}
	r.state = stateInitialized
}

// UpdateEntries replaces the current entries and recomputes the total. It does
// not persist.
func (r *Reconciler) UpdateEntries(entries []domain.TimeEntry) domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setEntriesLocked(normalize(entries))
	return r.current.Clone()
}

// InsertRowAfter splices a blank row after index and schedules an autosave.
func (r *Reconciler) InsertRowAfter(index int) domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setEntriesLocked(domain.InsertRowAfter(r.current.Entries, index))
	r.scheduleLocked()
	return r.current.Clone()
}

// EditTask changes one task field and schedules an autosave.
func (r *Reconciler) EditTask(entryID string, taskIndex int, field domain.TaskField, value string) domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setEntriesLocked(domain.UpdateTask(r.current.Entries, entryID, taskIndex, field, value))
	r.scheduleLocked()
	return r.current.Clone()
}

// SetFirstStartTime re-anchors every row on start and schedules an autosave.
func (r *Reconciler) SetFirstStartTime(start string) domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setEntriesLocked(domain.CascadeStartTimes(r.current.Entries, start))
	r.scheduleLocked()
	return r.current.Clone()
}

// StartNewSession switches to the session of date (today when empty). An
// existing session for that date is loaded instead of duplicated. A new one
// is persisted right away; when that fails it is still adopted locally and
// false is returned.
func (r *Reconciler) StartNewSession(ctx context.Context, date string) (domain.Session, bool) {
	if date == "" {
		date = r.today()
	}
	if s, ok := r.findByDate(r.coll.Current().Docs, date); ok {
		r.mu.Lock()
		r.current = r.adopt(s)
		r.state = stateInitialized
		cur := r.current.Clone()
		r.mu.Unlock()
		r.log.Info("session for date already exists", slog.String("id", s.ID), slog.String("date", date))
		return cur, true
	}

	s := domain.NewSession(date, r.userID())
	r.beginSave()
	id, err := r.coll.Create(ctx, s.Fields())
	r.endSave()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateInitialized
	if err != nil {
		r.log.Error("creating session failed", slog.String("date", date), slog.String("error", err.Error()))
		r.current = s
		return r.current.Clone(), false
	}
	s.ID = id
	r.current = s
	r.log.Info("session created", slog.String("id", id), slog.String("date", date))
	return r.current.Clone(), true
}

// LoadSession makes the stored session id current. Unknown ids leave the
// current session untouched.
func (r *Reconciler) LoadSession(id string) bool {
	for _, doc := range r.coll.Current().Docs {
		if doc.ID != id {
			continue
		}
		s, ok := domain.DecodeSession(doc)
		if !ok {
			r.log.Warn("session not loaded", slog.String("id", id), slog.String("error", domain.ErrMalformedRecord.Error()))
			return false
		}
		r.mu.Lock()
		r.current = r.adopt(s)
		r.state = stateInitialized
		r.mu.Unlock()
		r.log.Info("session loaded", slog.String("id", id), slog.String("date", s.SessionDate))
		return true
	}
	r.log.Warn("session not found", slog.String("id", id))
	return false
}

// SaveSession persists entries into the current session, creating the
// document when it has never been saved.
func (r *Reconciler) SaveSession(ctx context.Context, entries []domain.TimeEntry) bool {
	r.mu.Lock()
	id, date := r.current.ID, r.current.SessionDate
	r.mu.Unlock()
	return r.save(ctx, id, date, entries, false)
}

// SaveSessionToSpecificSession persists entries into session id (or creates
// one for date when id is empty). Local state is only updated if that session
// is still the current one when the write completes.
func (r *Reconciler) SaveSessionToSpecificSession(ctx context.Context, id, date string, entries []domain.TimeEntry) bool {
	return r.save(ctx, id, date, entries, true)
}

func (r *Reconciler) save(ctx context.Context, id, date string, entries []domain.TimeEntry, guarded bool) bool {
	entries = normalize(entries)
	total := domain.CalculateTotalHours(entries)

	r.mu.Lock()
	doc := r.current.Clone()
	target := id
	if target == "" && r.current.ID != "" && r.current.SessionDate == date {
		target = r.current.ID
	}
	r.mu.Unlock()
	// One document per date: an unsaved session writes into the stored one
	// for its date when there is one.
	if target == "" {
		if s, ok := r.findByDate(r.coll.Current().Docs, date); ok {
			target = s.ID
		}
	}
	doc.ID = target
	doc.SessionDate = date
	doc.Entries = entries
	if doc.UserID == "" {
		doc.UserID = r.userID()
	}

	r.beginSave()
	var err error
	if target != "" {
		err = r.coll.Update(ctx, target, map[string]any{
			"entries":     entries,
			"totalHours":  total,
			"sessionDate": date,
		})
	} else {
		target, err = r.coll.Create(ctx, doc.Fields())
	}
	r.endSave()
	if err != nil {
		r.log.Error("saving session failed",
			slog.String("id", doc.ID),
			slog.String("date", date),
			slog.String("error", err.Error()),
		)
		return false
	}
	if r.metrics != nil {
		r.metrics.RecordSessionMinutes(ctx, total)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if guarded && !r.isCurrentLocked(id, date) && !r.isCurrentLocked(target, date) {
		r.log.Debug("skipping stale save result", slog.String("id", target))
		return true
	}
	r.current.ID = target
	r.current.SessionDate = date
	// Edits made while the write was in flight are newer than entries and
	// have their own autosave armed.
	if r.autosave.Pending() {
		r.log.Debug("session saved; newer edits pending", slog.String("id", target))
		return true
	}
	r.current.Entries = entries
	r.current.TotalHours = total
	r.log.Debug("session saved", slog.String("id", target), slog.Int("minutes", total))
	return true
}

// SaveMemo stores memo on the current session, creating it if needed.
func (r *Reconciler) SaveMemo(ctx context.Context, memo string) bool {
	r.mu.Lock()
	s := r.current.Clone()
	r.mu.Unlock()
	if s.UserID == "" {
		s.UserID = r.userID()
	}
	if s.SessionDate == "" {
		s.SessionDate = r.today()
	}

	id := s.ID
	if id == "" {
		if stored, ok := r.findByDate(r.coll.Current().Docs, s.SessionDate); ok {
			id = stored.ID
		}
	}

	r.beginSave()
	var err error
	if id != "" {
		err = r.coll.Update(ctx, id, map[string]any{"memo": memo})
	} else {
		s.Memo = memo
		id, err = r.coll.Create(ctx, s.Fields())
	}
	r.endSave()
	if err != nil {
		r.log.Error("saving memo failed", slog.String("id", s.ID), slog.String("error", err.Error()))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isCurrentLocked(s.ID, s.SessionDate) {
		r.current.ID = id
		r.current.Memo = memo
	}
	return true
}

// SessionsByDate groups the stored sessions by year and month.
func (r *Reconciler) SessionsByDate() (idx domain.SessionsByDate) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("grouping sessions failed", slog.Any("panic", p))
			idx = domain.SessionsByDate{}
		}
	}()
	return domain.GroupByDate(r.coll.Current().Docs, r.today(), r.userID())
}

// CalculateTotalHours sums the task minutes of entries.
func (r *Reconciler) CalculateTotalHours(entries []domain.TimeEntry) int {
	return domain.CalculateTotalHours(entries)
}

// Current returns a copy of the current session.
func (r *Reconciler) Current() domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// Initialized reports whether the current session has been decided.
func (r *Reconciler) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateInitialized
}

// State is the full view of the sheet.
func (r *Reconciler) State() View {
	snap := r.coll.Current()
	all := make([]domain.Session, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		if s, ok := domain.DecodeSession(doc); ok {
			all = append(all, s)
		}
	}
	v := View{
		AllSessions:    all,
		SessionsByDate: r.SessionsByDate(),
		Loading:        snap.Loading,
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	v.Current = r.current.Clone()
	v.IsSaving = r.saving > 0
	v.Initialized = r.state == stateInitialized
	return v
}

func (r *Reconciler) setEntriesLocked(entries []domain.TimeEntry) {
	r.current.Entries = entries
	r.current.TotalHours = domain.CalculateTotalHours(entries)
}

// scheduleLocked arms an autosave of the entries as they are right now.
func (r *Reconciler) scheduleLocked() {
	id, date := r.current.ID, r.current.SessionDate
	entries := domain.CloneEntries(r.current.Entries)
	ctx := r.baseCtx
	r.autosave.Schedule(func() {
		if ctx.Err() != nil {
			return
		}
		if !r.SaveSessionToSpecificSession(ctx, id, date, entries) {
			r.log.Warn("autosave failed", slog.String("id", id), slog.String("date", date))
		}
	})
}

// isCurrentLocked reports whether a save aimed at (id, date) still targets
// the current session. An unsaved session is matched by date.
func (r *Reconciler) isCurrentLocked(id, date string) bool {
	if id != "" {
		return r.current.ID == id
	}
	return r.current.ID == "" && r.current.SessionDate == date
}

// adopt deep-copies s and fills defaults for a stored session.
func (r *Reconciler) adopt(s domain.Session) domain.Session {
	s = s.Clone()
	if s.Entries == nil {
		s.Entries = domain.DefaultEntries()
	}
	if s.UserID == "" {
		s.UserID = r.userID()
	}
	s.TotalHours = domain.CalculateTotalHours(s.Entries)
	return s
}

// normalize deep-copies entries with exactly TasksPerEntry tasks per row. No
// rows at all means the default sheet.
func normalize(entries []domain.TimeEntry) []domain.TimeEntry {
	if entries == nil {
		return domain.DefaultEntries()
	}
	return domain.NormalizeEntries(entries)
}

func (r *Reconciler) findByDate(docs []domain.Document, date string) (domain.Session, bool) {
	for _, doc := range docs {
		s, ok := domain.DecodeSession(doc)
		if ok && s.SessionDate == date {
			return s, true
		}
	}
	return domain.Session{}, false
}

func (r *Reconciler) beginSave() {
	r.mu.Lock()
	r.saving++
	r.mu.Unlock()
}

func (r *Reconciler) endSave() {
	r.mu.Lock()
	r.saving--
	r.mu.Unlock()
}

func (r *Reconciler) userID() string {
	if r.user == nil {
		return ""
	}
	return r.user.UID
}

func (r *Reconciler) today() string {
	return timecalc.TodayAt(r.now())
}
