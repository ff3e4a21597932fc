// Package services – ProfileService
//
// Profiles live at profiles/{uid}. Users edit their own display name and
// presentation video; the phone number is written only by PhoneService.
// Admins (admin == true on their own profile) can list every profile and
// flip other users' admin flag.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/identity"
)

// ProfilesCollection holds one document per user.
const ProfilesCollection = "profiles"

// DisplayNameMaxLen caps stored display names by rune length.
const DisplayNameMaxLen = 80

// ProfileService manages user profiles and the admin flag.
type ProfileService struct {
	Store docstore.Store
}

// NewProfileService returns a ProfileService over store.
func NewProfileService(store docstore.Store) *ProfileService {
	return &ProfileService{Store: store}
}

// Get returns the profile of uid or ErrNotFound.
func (s *ProfileService) Get(ctx context.Context, uid string) (*domain.Profile, error) {
	doc, err := s.Store.Get(ctx, ProfilesCollection, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, readErr(err)
	}
	p := decodeProfile(*doc)
	return &p, nil
}

// Update merge-writes the actor's display name and video link. Other
// profile fields (phone, admin) are left untouched.
func (s *ProfileService) Update(ctx context.Context, actor identity.Principal, displayName, videoURL string) (*domain.Profile, error) {
	ctx, span := startSpan(ctx, "services/ProfileService", "Update", attribute.String("user.id", actor.ID))
	defer span.End()

	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	name := clipRunes(normalizeLine(displayName), DisplayNameMaxLen)
	video, err := checkMediaURL("videoUrl", videoURL)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{"displayName": name, "videoUrl": video}
	if err := s.Store.Put(ctx, ProfilesCollection, actor.ID, fields, true); err != nil {
		span.RecordError(err)
		return nil, writeErr(err)
	}
	return s.Get(ctx, actor.ID)
}

// IsAdmin reports whether uid's profile carries admin == true. A missing
// profile is not an admin.
func (s *ProfileService) IsAdmin(ctx context.Context, uid string) (bool, error) {
	if strings.TrimSpace(uid) == "" {
		return false, nil
	}
	p, err := s.Get(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Admin, nil
}

// requireAdmin fails with ErrUnauthenticated or ErrForbidden unless actor
// is an admin.
func (s *ProfileService) requireAdmin(ctx context.Context, actor identity.Principal) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	ok, err := s.IsAdmin(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: admin rights required", ErrForbidden)
	}
	return nil
}

// ListProfiles returns every profile in creation order. Admin only.
func (s *ProfileService) ListProfiles(ctx context.Context, actor identity.Principal) ([]domain.Profile, error) {
	ctx, span := startSpan(ctx, "services/ProfileService", "ListProfiles", attribute.String("user.id", actor.ID))
	defer span.End()

	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	docs, err := s.Store.List(ctx, ProfilesCollection, docstore.Query{})
	if err != nil {
		return nil, readErr(err)
	}
	out := make([]domain.Profile, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeProfile(d))
	}
	return out, nil
}

// ToggleAdmin flips the admin flag of uid and returns the new value. Admin
// only. A missing target profile is ErrNotFound.
func (s *ProfileService) ToggleAdmin(ctx context.Context, actor identity.Principal, uid string) (bool, error) {
	ctx, span := startSpan(ctx, "services/ProfileService", "ToggleAdmin",
		attribute.String("user.id", actor.ID),
		attribute.String("target.id", uid),
	)
	defer span.End()

	if err := s.requireAdmin(ctx, actor); err != nil {
		return false, err
	}
	target, err := s.Get(ctx, uid)
	if err != nil {
		return false, err
	}
	next := !target.Admin
	if err := s.Store.Put(ctx, ProfilesCollection, uid, map[string]any{"admin": next}, true); err != nil {
		span.RecordError(err)
		return false, writeErr(err)
	}
	return next, nil
}

func decodeProfile(d domain.Document) domain.Profile {
	return domain.Profile{
		ID:          d.ID,
		DisplayName: docstore.String(d.Fields, "displayName"),
		Phone:       docstore.String(d.Fields, "phone"),
		VideoURL:    docstore.String(d.Fields, "videoUrl"),
		Admin:       docstore.Bool(d.Fields, "admin"),
	}
}
