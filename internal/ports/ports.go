package ports

import (
	"context"
	"time"

	"timesheet/internal/domain"
)

// DocumentStore persists session documents grouped into named collections.
// Implementations stamp nothing themselves; callers supply timestamps.
type DocumentStore interface {
	// List returns every document of the collection, newest CreatedAt first.
	List(ctx context.Context, collection string) ([]domain.Document, error)
	Create(ctx context.Context, collection string, doc domain.Document) error
	// Update merges fields into the stored document (JSON merge-patch
	// semantics) and returns domain.ErrNotFound when id does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]any, updatedAt time.Time) error
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// AuthProvider exposes the identity of the signed-in user, or nil when nobody
// is signed in.
type AuthProvider interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
}

// LocalStorage is small key/value storage on the local device.
type LocalStorage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// MetricsRecorder receives operational measurements of the sheet.
type MetricsRecorder interface {
	RecordWrite(ctx context.Context, op string, ok bool)
	RecordLoad(ctx context.Context, ok bool, documents int)
	RecordSessionMinutes(ctx context.Context, minutes int)
	Close(ctx context.Context) error
}
