package services

import (
	"github.com/tbourn/summerjobs-backend/internal/config"
	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/sms"
)

// Set holds one instance of every service, sharing a store.
type Set struct {
	Profiles *ProfileService
	Settings *SettingsService
	Ratings  *RatingService
	Phone    *PhoneService
	Listings *ListingService
}

// NewSet wires the services over store. Codes are delivered through sender.
func NewSet(store docstore.Store, sender sms.Sender, cfg config.Config) *Set {
	profiles := NewProfileService(store)
	settings := NewSettingsService(store, profiles)
	return &Set{
		Profiles: profiles,
		Settings: settings,
		Ratings:  NewRatingService(store, cfg.MaxCommentRunes),
		Phone:    NewPhoneService(store, settings, sender, cfg.SMS.CodeTTL, cfg.SMS.MaxAttempts),
		Listings: NewListingService(store, profiles),
	}
}
