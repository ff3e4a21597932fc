package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/summerjobs-backend/internal/domain"
)

// GormStore implements Store on the documents table.
type GormStore struct {
	// DB is the GORM handle; SQLite and Postgres are both supported.
	DB *gorm.DB
	// Hub serves local subscriptions.
	Hub *Hub
	// Notifier announces committed writes. Defaults to Hub.
	Notifier Notifier

	now func() time.Time
}

// NewGormStore returns a store using an in-process hub for notifications.
func NewGormStore(db *gorm.DB) *GormStore {
	hub := NewHub()
	return &GormStore{DB: db, Hub: hub, Notifier: hub}
}

func (s *GormStore) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// Put writes a document atomically and notifies subscribers after commit.
func (s *GormStore) Put(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	if !validPath(collection, id) {
		return ErrInvalidPath
	}
	now := s.clock()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, found, err := find(tx, collection, id)
		if err != nil {
			return err
		}
		if !found {
			doc := &domain.Document{
				Collection: collection,
				ID:         id,
				Fields:     copyFields(nil, fields),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			return tx.Create(doc).Error
		}

		var next map[string]any
		if merge {
			next = copyFields(cur.Fields, fields)
		} else {
			next = copyFields(nil, fields)
		}
		return tx.Model(&domain.Document{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]any{
				"fields":     datatypes.JSONMap(next),
				"updated_at": now,
				"version":    gorm.Expr("version + 1"),
			}).Error
	})
	if err != nil {
		return err
	}
	s.publish(ctx, collection)
	return nil
}

// maxUpdateRetries bounds compare-and-swap rounds in Update.
const maxUpdateRetries = 16

// Update reads collection/id, passes a copy of its fields to fn, and merges
// the returned patch only if nobody wrote the document in between. On a lost
// race fn runs again on the fresh fields. An error from fn aborts without
// writing and is returned as is; an empty patch writes nothing.
//
// Returns ErrNotFound for a missing document and ErrConflict when the
// document kept changing for maxUpdateRetries rounds.
func (s *GormStore) Update(ctx context.Context, collection, id string, fn func(fields map[string]any) (map[string]any, error)) error {
	if !validPath(collection, id) {
		return ErrInvalidPath
	}
	db := s.DB.WithContext(ctx)
	for i := 0; i < maxUpdateRetries; i++ {
		cur, found, err := find(db, collection, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		patch, err := fn(copyFields(cur.Fields, nil))
		if err != nil {
			return err
		}
		if len(patch) == 0 {
			return nil
		}

		res := db.Model(&domain.Document{}).
			Where("collection = ? AND id = ? AND version = ?", collection, id, cur.Version).
			Updates(map[string]any{
				"fields":     datatypes.JSONMap(copyFields(cur.Fields, patch)),
				"updated_at": s.clock(),
				"version":    gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			s.publish(ctx, collection)
			return nil
		}
	}
	return ErrConflict
}

// Get returns a single document.
func (s *GormStore) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	if !validPath(collection, id) {
		return nil, ErrNotFound
	}
	doc, found, err := find(s.DB.WithContext(ctx), collection, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return doc, nil
}

// find loads one document. A missing row is reported through found rather
// than gorm.ErrRecordNotFound so it is not logged as a failed query.
func find(db *gorm.DB, collection, id string) (*domain.Document, bool, error) {
	var doc domain.Document
	res := db.Where("collection = ? AND id = ?", collection, id).Limit(1).Find(&doc)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return &doc, res.RowsAffected > 0, nil
}

// List returns a collection ordered by creation time, then id.
func (s *GormStore) List(ctx context.Context, collection string, q Query) ([]domain.Document, error) {
	order := "created_at ASC, id ASC"
	if q.Descending {
		order = "created_at DESC, id DESC"
	}
	var docs []domain.Document
	if err := s.DB.WithContext(ctx).
		Where("collection = ?", collection).
		Order(order).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document if present.
func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	if !validPath(collection, id) {
		return ErrInvalidPath
	}
	res := s.DB.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&domain.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.publish(ctx, collection)
	}
	return nil
}

// GenerateID returns a ULID string.
func (s *GormStore) GenerateID() string { return ulid.Make().String() }

// Stats returns the number of documents and the latest UpdatedAt.
func (s *GormStore) Stats(ctx context.Context, collection string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := s.DB.WithContext(ctx).Model(&domain.Document{}).Where("collection = ?", collection)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// Subscribe starts a snapshot stream for collection.
func (s *GormStore) Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error) {
	if collection == "" {
		return nil, ErrInvalidPath
	}
	if s.Hub == nil {
		return nil, errors.New("docstore: subscriptions require a hub")
	}
	sub := startSubscription(ctx, s.Hub, collection, func(ctx context.Context) (Snapshot, error) {
		docs, err := s.List(ctx, collection, q)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Collection: collection, Docs: docs}, nil
	})
	return sub, nil
}

// publish announces a committed write. Notification failures never fail the
// write; local watchers are woken directly instead.
func (s *GormStore) publish(ctx context.Context, collection string) {
	n := s.Notifier
	if n == nil {
		if s.Hub != nil {
			s.Hub.Notify(collection)
		}
		return
	}
	if err := n.Publish(context.WithoutCancel(ctx), collection); err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("docstore: change notification failed")
		if s.Hub != nil {
			s.Hub.Notify(collection)
		}
	}
}

func copyFields(base map[string]any, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
