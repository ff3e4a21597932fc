// Package docstore provides a small collection/document store on top of GORM.
//
// Documents are JSON objects addressed by a slash-separated collection path
// and an id, e.g. ("profiles/u2/ratings", "01J9..."). The store offers
// single-document atomic writes (plain or merge), creation-ordered listing,
// and change subscriptions that deliver full-collection snapshots.
//
// Change fan-out goes through a Notifier. The default is the in-process Hub;
// RedisNotifier lets several replicas observe each other's writes.
package docstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tbourn/summerjobs-backend/internal/domain"
)

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidPath is returned when a collection or id is blank.
	ErrInvalidPath = errors.New("invalid document path")

	// ErrConflict is returned by Update when concurrent writers kept winning.
	ErrConflict = errors.New("document modified concurrently")
)

// Query controls List and Subscribe ordering.
type Query struct {
	// Descending returns newest documents first.
	Descending bool
}

// Snapshot is the full contents of a collection at one point in time.
type Snapshot struct {
	Collection string
	Docs       []domain.Document
	At         time.Time
}

// Store is the document store contract consumed by services.
type Store interface {
	// Put writes fields to collection/id. With merge=true only the given
	// top-level keys are replaced and other keys are kept; otherwise the
	// document body is replaced. Each call is atomic.
	Put(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	// Update applies fn to the current fields and merges its patch as one
	// compare-and-swap write. fn may run more than once.
	Update(ctx context.Context, collection, id string, fn func(fields map[string]any) (map[string]any, error)) error
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*domain.Document, error)
	// List returns every document of a collection in creation order.
	List(ctx context.Context, collection string, q Query) ([]domain.Document, error)
	// Delete physically removes a document. Missing documents are not an error.
	Delete(ctx context.Context, collection, id string) error
	// GenerateID returns a new unique id that sorts by creation time.
	GenerateID() string
	// Stats returns the document count and the latest update time.
	Stats(ctx context.Context, collection string) (count int64, maxUpdatedAt *time.Time, err error)
	// Subscribe streams snapshots of a collection until ctx ends or the
	// subscription is closed.
	Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error)
}

// Collection joins path segments into a collection path, trimming stray
// slashes: Collection("profiles", "u2", "ratings") == "profiles/u2/ratings".
func Collection(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

func validPath(collection, id string) bool {
	return strings.TrimSpace(collection) != "" && strings.TrimSpace(id) != "" && !strings.Contains(id, "/")
}
