package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tbourn/summerjobs-backend/internal/identity"
)

func TestProfile_UpdateMergesAndGet(t *testing.T) {
	store := newStore(t)
	s := NewProfileService(store)
	ctx := context.Background()

	if _, err := s.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing profile: want ErrNotFound, got %v", err)
	}

	seedProfile(t, store, "u1", map[string]any{"phone": "+15551234567", "admin": true})
	p, err := s.Update(ctx, principal("u1"), "  Maya   Lopez ", "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.DisplayName != "Maya Lopez" || p.VideoURL != "https://youtu.be/abc" {
		t.Fatalf("profile = %+v", p)
	}
	if p.Phone != "+15551234567" || !p.Admin {
		t.Fatalf("update must keep phone and admin: %+v", p)
	}
}

func TestProfile_UpdateValidation(t *testing.T) {
	s := NewProfileService(newStore(t))
	ctx := context.Background()

	if _, err := s.Update(ctx, identity.Principal{}, "x", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous: %v", err)
	}
	if _, err := s.Update(ctx, principal("u1"), "x", "not a url"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad url: %v", err)
	}
	p, err := s.Update(ctx, principal("u1"), strings.Repeat("é", DisplayNameMaxLen+10), "")
	if err != nil {
		t.Fatalf("long name: %v", err)
	}
	if utf8.RuneCountInString(p.DisplayName) != DisplayNameMaxLen {
		t.Fatalf("name not clipped: %d runes", utf8.RuneCountInString(p.DisplayName))
	}
}

func TestProfile_AdminOperations(t *testing.T) {
	store := newStore(t)
	s := NewProfileService(store)
	ctx := context.Background()
	seedProfile(t, store, "admin", map[string]any{"displayName": "Root", "admin": true})
	seedProfile(t, store, "u1", map[string]any{"displayName": "One"})

	if _, err := s.ListProfiles(ctx, principal("u1")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin list: want ErrForbidden, got %v", err)
	}
	if _, err := s.ListProfiles(ctx, identity.Principal{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous list: want ErrUnauthenticated, got %v", err)
	}
	// A user without any profile is not an admin either.
	if _, err := s.ToggleAdmin(ctx, principal("ghost"), "u1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ghost toggle: want ErrForbidden, got %v", err)
	}

	all, err := s.ListProfiles(ctx, principal("admin"))
	if err != nil || len(all) != 2 {
		t.Fatalf("list = %v, %v", all, err)
	}

	v, err := s.ToggleAdmin(ctx, principal("admin"), "u1")
	if err != nil || !v {
		t.Fatalf("toggle on = %v, %v", v, err)
	}
	v, err = s.ToggleAdmin(ctx, principal("admin"), "u1")
	if err != nil || v {
		t.Fatalf("toggle off = %v, %v", v, err)
	}
	p, _ := s.Get(ctx, "u1")
	if p.Admin || p.DisplayName != "One" {
		t.Fatalf("toggle must only flip admin: %+v", p)
	}

	if _, err := s.ToggleAdmin(ctx, principal("admin"), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing target: want ErrNotFound, got %v", err)
	}
}

func TestSettings_DefaultAndToggle(t *testing.T) {
	store := newStore(t)
	profiles := NewProfileService(store)
	s := NewSettingsService(store, profiles)
	ctx := context.Background()
	seedProfile(t, store, "admin", map[string]any{"admin": true})

	got, err := s.Get(ctx)
	if err != nil || !got.SMSValidation {
		t.Fatalf("default settings = %+v, %v", got, err)
	}

	if _, err := s.ToggleSMSValidation(ctx, principal("u1")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin toggle: want ErrForbidden, got %v", err)
	}

	v, err := s.ToggleSMSValidation(ctx, principal("admin"))
	if err != nil || v {
		t.Fatalf("toggle = %v, %v", v, err)
	}
	got, _ = s.Get(ctx)
	if got.SMSValidation {
		t.Fatalf("toggle not persisted")
	}
}

func TestSettings_ReadFailure(t *testing.T) {
	store := newStore(t)
	s := NewSettingsService(store, NewProfileService(store))
	failReads(store)
	if _, err := s.Get(context.Background()); !errors.Is(err, ErrStoreRead) {
		t.Fatalf("want ErrStoreRead, got %v", err)
	}
}
