package collection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"timesheet/internal/adapter/memory"
	"timesheet/internal/domain"
)

type countingMetrics struct {
	writes map[string][2]int // op -> ok, failed
	loads  [2]int
}

func (m *countingMetrics) RecordWrite(_ context.Context, op string, ok bool) {
	if m.writes == nil {
		m.writes = map[string][2]int{}
	}
	c := m.writes[op]
	if ok {
		c[0]++
	} else {
		c[1]++
	}
	m.writes[op] = c
}

func (m *countingMetrics) RecordLoad(_ context.Context, ok bool, _ int) {
	if ok {
		m.loads[0]++
	} else {
		m.loads[1]++
	}
}

func (m *countingMetrics) RecordSessionMinutes(context.Context, int) {}
func (m *countingMetrics) Close(context.Context) error { return nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCollectionPath(t *testing.T) {
	tests := []struct {
		user *domain.User
		want string
	}{
		{&domain.User{UID: "abc"}, "users/abc/timeTracking"},
		{&domain.User{}, "timeTracking"},
		{nil, "timeTracking"},
	}
	for _, tt := range tests {
		if got := CollectionPath(tt.user); got != tt.want {
			t.Errorf("CollectionPath(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}

func TestCreateOrdersNewestFirst(t *testing.T) {
	store := memory.New()
	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	tick := 0
	ids := []string{"first", "second"}
	c := New(store, &domain.User{UID: "u1"}, discard(),
		WithClock(func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }),
		WithIDGenerator(func() string { id := ids[0]; ids = ids[1:]; return id }),
	)
	ctx := context.Background()

	if snap := c.Current(); !snap.Loading {
		t.Fatal("snapshot not loading before first refresh")
	}
	for range 2 {
		if _, err := c.Create(ctx, map[string]any{"sessionDate": "2024-03-15"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	snap := c.Current()
	if snap.Loading || snap.Err != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Docs) != 2 || snap.Docs[0].ID != "second" || snap.Docs[1].ID != "first" {
		t.Fatalf("docs order = %+v", snap.Docs)
	}
	if !snap.Docs[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", snap.Docs[0].CreatedAt)
	}
}

func TestUpdateMergesAndMissingIsWriteError(t *testing.T) {
	store := memory.New()
	c := New(store, &domain.User{UID: "u1"}, discard())
	ctx := context.Background()

	id, err := c.Create(ctx, map[string]any{"sessionDate": "2024-03-15", "userId": "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Update(ctx, id, map[string]any{"memo": "hello"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(c.Current().Docs[0].Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["memo"] != "hello" || got["sessionDate"] != "2024-03-15" {
		t.Errorf("merged doc = %v", got)
	}

	err = c.Update(ctx, "nope", map[string]any{"memo": "x"})
	if !errors.Is(err, domain.ErrWrite) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update(nope) = %v, want WriteError wrapping ErrNotFound", err)
	}
	var we *domain.WriteError
	if !errors.As(err, &we) || we.Op != "update" || we.ID != "nope" {
		t.Errorf("WriteError = %+v", we)
	}
}

func TestWritesWithoutUserFail(t *testing.T) {
	m := &countingMetrics{}
	c := New(memory.New(), nil, discard(), WithMetrics(m))
	ctx := context.Background()

	if _, err := c.Create(ctx, map[string]any{}); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Errorf("Create = %v, want ErrNotAuthenticated", err)
	}
	if err := c.Update(ctx, "x", map[string]any{}); !errors.Is(err, domain.ErrWrite) {
		t.Errorf("Update = %v, want ErrWrite", err)
	}
	if err := c.Delete(ctx, "x"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Errorf("Delete = %v, want ErrNotAuthenticated", err)
	}
	if m.writes["create"][1] != 1 || m.writes["update"][1] != 1 || m.writes["delete"][1] != 1 {
		t.Errorf("write metrics = %v", m.writes)
	}
}

func TestLoadErrorKeepsLastGoodDocs(t *testing.T) {
	store := memory.New()
	m := &countingMetrics{}
	c := New(store, &domain.User{UID: "u1"}, discard(), WithMetrics(m))
	ctx := context.Background()
	if _, err := c.Create(ctx, map[string]any{"sessionDate": "2024-03-15"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	store.Fail = func(op string) error {
		if op == "list" {
			return errors.New("network down")
		}
		return nil
	}
	c.Refresh(ctx)
	snap := c.Current()
	if !errors.Is(snap.Err, domain.ErrLoad) {
		t.Fatalf("Err = %v, want ErrLoad", snap.Err)
	}
	if len(snap.Docs) != 1 {
		t.Errorf("docs = %d, want last good 1", len(snap.Docs))
	}

	store.Fail = nil
	c.Refresh(ctx)
	if err := c.Current().Err; err != nil {
		t.Errorf("Err after recovery = %v", err)
	}
	if m.loads[1] != 1 {
		t.Errorf("failed loads = %d, want 1", m.loads[1])
	}
}

func TestSubscribeDeliversLatest(t *testing.T) {
	c := New(memory.New(), &domain.User{UID: "u1"}, discard())
	ctx := context.Background()

	ch, unsubscribe := c.Subscribe()
	first := <-ch
	if !first.Loading {
		t.Fatal("first snapshot should be the loading one")
	}

	// Two changes without reading: only the latest is kept.
	if _, err := c.Create(ctx, map[string]any{"n": 1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Create(ctx, map[string]any{"n": 2}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	select {
	case snap := <-ch:
		if len(snap.Docs) != 2 {
			t.Errorf("latest snapshot has %d docs, want 2", len(snap.Docs))
		}
	default:
		t.Fatal("no snapshot delivered")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New(memory.New(), &domain.User{UID: "u1"}, discard())
	if _, err := c.Create(context.Background(), map[string]any{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	snap := c.Current()
	snap.Docs[0].ID = "changed"
	if c.Current().Docs[0].ID == "changed" {
		t.Error("Current shares its slice with callers")
	}
}

func TestStartPolls(t *testing.T) {
	store := memory.New()
	c := New(store, &domain.User{UID: "u1"}, discard(), WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	if c.Current().Loading {
		t.Fatal("Start did not perform the first load")
	}

	// A write by another client shows up on the next poll.
	store.Put(c.Path(), domain.Document{ID: "external", Data: json.RawMessage(`{}`), CreatedAt: time.Now()})
	deadline := time.After(2 * time.Second)
	for len(c.Current().Docs) == 0 {
		select {
		case <-deadline:
			t.Fatal("poll did not pick up external write")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// heldStore pauses the next List after it has read the documents, until
// release is closed.
type heldStore struct {
	*memory.Store

	mu      sync.Mutex
	release chan struct{}
	listed  chan struct{}
}

func (s *heldStore) hold() (listed, release chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed, s.release = make(chan struct{}), make(chan struct{})
	return s.listed, s.release
}

func (s *heldStore) List(ctx context.Context, collection string) ([]domain.Document, error) {
	docs, err := s.Store.List(ctx, collection)
	s.mu.Lock()
	listed, release := s.listed, s.release
	s.listed, s.release = nil, nil
	s.mu.Unlock()
	if release != nil {
		close(listed)
		<-release
	}
	return docs, err
}

func TestSlowRefreshDoesNotOverwriteNewer(t *testing.T) {
	store := &heldStore{Store: memory.New()}
	c := New(store, &domain.User{UID: "u1"}, discard())
	ctx := context.Background()

	listed, release := store.hold()
	done := make(chan struct{})
	go func() {
		c.Refresh(ctx)
		close(done)
	}()
	<-listed

	id, err := c.Create(ctx, map[string]any{"sessionDate": "2024-03-15"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	close(release)
	<-done

	docs := c.Current().Docs
	if len(docs) != 1 || docs[0].ID != id {
		t.Fatalf("docs = %+v, want the created document", docs)
	}
}
