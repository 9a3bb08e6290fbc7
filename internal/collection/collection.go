// Package collection keeps a live, ordered snapshot of one user's session
// documents and funnels every write through the document store.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"timesheet/internal/domain"
	"timesheet/internal/ports"
)

// Snapshot is the state of the collection as last seen by the store.
type Snapshot struct {
	Docs    []domain.Document // newest CreatedAt first
	Loading bool              // true until the first load finished
	Err     error             // last load failure; Docs keep the last good value
}

// CollectionPath is the per-user collection name. Without a user the shared
// path is returned, which is never accepted for writes.
func CollectionPath(user *domain.User) string {
	if user == nil || user.UID == "" {
		return "timeTracking"
	}
	return "users/" + user.UID + "/timeTracking"
}

// Collection is the remote collection adapter the reconciler consumes.
type Collection struct {
	store    ports.DocumentStore
	path     string
	writable bool
	log      *slog.Logger
	metrics  ports.MetricsRecorder
	poll     time.Duration
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	snap      Snapshot
	subs      map[int]chan Snapshot
	nextSub   int
	started   uint64 // refreshes begun
	published uint64 // newest refresh applied to snap
}

// Option configures a Collection.
type Option func(*Collection)

// WithPollInterval re-lists the collection periodically after Start so that
// writes made by other clients show up. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(c *Collection) { c.poll = d }
}

// WithMetrics records loads and writes.
func WithMetrics(m ports.MetricsRecorder) Option {
	return func(c *Collection) { c.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Collection) { c.now = now }
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(f func() string) Option {
	return func(c *Collection) { c.newID = f }
}

// New creates the collection for user. It does not touch the store until
// Start or Refresh is called.
func New(store ports.DocumentStore, user *domain.User, log *slog.Logger, opts ...Option) *Collection {
	c := &Collection{
		store:    store,
		path:     CollectionPath(user),
		writable: user != nil && user.UID != "",
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
		snap:     Snapshot{Loading: true},
		subs:     map[int]chan Snapshot{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the collection name.
func (c *Collection) Path() string { return c.path }

// Start performs the first load and, when polling is enabled, keeps
// refreshing until ctx is done.
func (c *Collection) Start(ctx context.Context) {
	c.Refresh(ctx)
	if c.poll <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Refresh(ctx)
			}
		}
	}()
}

// Refresh re-lists the collection and publishes the result. A failure keeps
// the previous documents and records the error on the snapshot. A refresh that
// finishes after a later-started one has published is dropped.
func (c *Collection) Refresh(ctx context.Context) {
	c.mu.Lock()
	c.started++
	seq := c.started
	c.mu.Unlock()

	docs, err := c.store.List(ctx, c.path)
	c.recordLoad(ctx, err == nil, len(docs))

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.published {
		c.log.Debug("dropping stale collection snapshot", slog.String("collection", c.path))
		return
	}
	c.published = seq
	c.snap.Loading = false
	if err != nil {
		c.snap.Err = fmt.Errorf("%w: %v", domain.ErrLoad, err)
		c.log.Error("collection load failed",
			slog.String("collection", c.path),
			slog.String("error", err.Error()),
		)
	} else {
		slices.SortStableFunc(docs, func(a, b domain.Document) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
		c.snap.Docs = docs
		c.snap.Err = nil
		c.log.Debug("collection snapshot",
			slog.String("collection", c.path),
			slog.Int("docs", len(docs)),
		)
	}
	c.publishLocked()
}

// Current returns the latest snapshot.
func (c *Collection) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Subscribe returns a channel that immediately holds the current snapshot and
// then receives each new one. Slow readers only ever see the latest snapshot.
// The returned func unsubscribes and closes the channel.
func (c *Collection) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	c.subs[id] = ch
	ch <- c.copyLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// Create stores a new document built from fields and returns its id.
func (c *Collection) Create(ctx context.Context, fields map[string]any) (string, error) {
	if !c.writable {
		return "", c.writeFailed(ctx, "create", "", domain.ErrNotAuthenticated)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", c.writeFailed(ctx, "create", "", err)
	}
	now := c.now().UTC()
	doc := domain.Document{
		ID:        c.newID(),
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.Create(ctx, c.path, doc); err != nil {
		return "", c.writeFailed(ctx, "create", "", err)
	}
	c.recordWrite(ctx, "create", true)
	c.log.Info("session document created", slog.String("collection", c.path), slog.String("id", doc.ID))
	c.Refresh(ctx)
	return doc.ID, nil
}

// Update merges fields into document id.
func (c *Collection) Update(ctx context.Context, id string, fields map[string]any) error {
	if !c.writable {
		return c.writeFailed(ctx, "update", id, domain.ErrNotAuthenticated)
	}
	if err := c.store.Update(ctx, c.path, id, fields, c.now().UTC()); err != nil {
		return c.writeFailed(ctx, "update", id, err)
	}
	c.recordWrite(ctx, "update", true)
	c.log.Debug("session document updated", slog.String("collection", c.path), slog.String("id", id))
	c.Refresh(ctx)
	return nil
}

// Delete removes document id.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if !c.writable {
		return c.writeFailed(ctx, "delete", id, domain.ErrNotAuthenticated)
	}
	if err := c.store.Delete(ctx, c.path, id); err != nil {
		return c.writeFailed(ctx, "delete", id, err)
	}
	c.recordWrite(ctx, "delete", true)
	c.log.Info("session document deleted", slog.String("collection", c.path), slog.String("id", id))
	c.Refresh(ctx)
	return nil
}

func (c *Collection) writeFailed(ctx context.Context, op, id string, err error) error {
	c.recordWrite(ctx, op, false)
	return &domain.WriteError{Op: op, ID: id, Err: err}
}

func (c *Collection) recordWrite(ctx context.Context, op string, ok bool) {
	if c.metrics != nil {
		c.metrics.RecordWrite(ctx, op, ok)
	}
}

func (c *Collection) recordLoad(ctx context.Context, ok bool, n int) {
	if c.metrics != nil {
		c.metrics.RecordLoad(ctx, ok, n)
	}
}

func (c *Collection) copyLocked() Snapshot {
	s := c.snap
	s.Docs = slices.Clone(c.snap.Docs)
	return s
}

func (c *Collection) publishLocked() {
	for _, ch := range c.subs {
		s := c.copyLocked()
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
