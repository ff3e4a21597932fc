package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/identity"
)

// Location of the global settings document.
const (
	SettingsCollection = "config"
	SettingsID         = "global"
)

// SettingsService reads and toggles application-wide switches.
type SettingsService struct {
	Store    docstore.Store
	Profiles *ProfileService
}

// NewSettingsService returns a SettingsService.
func NewSettingsService(store docstore.Store, profiles *ProfileService) *SettingsService {
	return &SettingsService{Store: store, Profiles: profiles}
}

// Get returns the global settings. SMS validation defaults to on when the
// document or the field is absent.
func (s *SettingsService) Get(ctx context.Context) (*domain.Settings, error) {
	doc, err := s.Store.Get(ctx, SettingsCollection, SettingsID)
	if errors.Is(err, docstore.ErrNotFound) {
		return &domain.Settings{SMSValidation: true}, nil
	}
	if err != nil {
		return nil, readErr(err)
	}
	out := &domain.Settings{SMSValidation: true}
	if v, ok := doc.Fields["smsValidation"].(bool); ok {
		out.SMSValidation = v
	}
	return out, nil
}

// ToggleSMSValidation flips the SMS validation switch and returns the new
// value. Admin only.
func (s *SettingsService) ToggleSMSValidation(ctx context.Context, actor identity.Principal) (bool, error) {
	ctx, span := startSpan(ctx, "services/SettingsService", "ToggleSMSValidation", attribute.String("user.id", actor.ID))
	defer span.End()

	if err := s.Profiles.requireAdmin(ctx, actor); err != nil {
		return false, err
	}
	cur, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	next := !cur.SMSValidation
	if err := s.Store.Put(ctx, SettingsCollection, SettingsID, map[string]any{"smsValidation": next}, true); err != nil {
		span.RecordError(err)
		return false, writeErr(err)
	}
	return next, nil
}
