package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/identity"
)

func newStore(t *testing.T) *docstore.GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Document{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return docstore.NewGormStore(db)
}

// failWrites makes every subsequent INSERT/UPDATE on the store fail.
func failWrites(s *docstore.GormStore) {
	boom := func(tx *gorm.DB) { _ = tx.AddError(errors.New("write boom")) }
	s.DB.Callback().Create().Before("gorm:create").Register("test:fail_create", boom)
	s.DB.Callback().Update().Before("gorm:update").Register("test:fail_update", boom)
}

// failReads makes every subsequent SELECT on the store fail.
func failReads(s *docstore.GormStore) {
	s.DB.Callback().Query().Before("gorm:query").Register("test:fail_query", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("read boom"))
	})
}

func principal(id string) identity.Principal { return identity.Principal{ID: id, Label: "user " + id} }

func seedProfile(t *testing.T, s docstore.Store, uid string, fields map[string]any) {
	t.Helper()
	if err := s.Put(context.Background(), ProfilesCollection, uid, fields, true); err != nil {
		t.Fatalf("seed profile %s: %v", uid, err)
	}
}

// captureSender records the last message per recipient.
type captureSender struct {
	mu   sync.Mutex
	last map[string]string
	err  error
}

func (c *captureSender) Send(_ context.Context, to, body string) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = map[string]string{}
	}
	c.last[to] = body
	return nil
}

func (c *captureSender) code(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.last[to]
	if len(b) < 6 {
		return ""
	}
	return b[len(b)-6:]
}

func newPhoneFixture(t *testing.T) (*PhoneService, *SettingsService, *ProfileService, *captureSender, *docstore.GormStore) {
	t.Helper()
	store := newStore(t)
	profiles := NewProfileService(store)
	settings := NewSettingsService(store, profiles)
	sender := &captureSender{}
	phone := NewPhoneService(store, settings, sender, 5*60*1e9, 3)
	phone.HashCost = bcrypt.MinCost
	return phone, settings, profiles, sender, store
}
