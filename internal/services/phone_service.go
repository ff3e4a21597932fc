// Package services – PhoneService
//
// Phone numbers are verified with a one-time code sent by SMS. Each request
// creates a phoneVerifications/{id} document holding the bcrypt hash of the
// code, its expiry, and an attempt counter; confirming the code writes the
// number onto the caller's profile. When the global SMS validation switch is
// off, users save their number directly instead.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/identity"
	"github.com/tbourn/summerjobs-backend/internal/sms"
)

// VerificationsCollection holds pending phone verifications.
const VerificationsCollection = "phoneVerifications"

// ErrSMSDelivery is returned when the verification code could not be sent.
var ErrSMSDelivery = errors.New("could not send verification code")

// phoneRE accepts North American numbers in E.164 form.
var phoneRE = regexp.MustCompile(`^\+1\d{10}$`)

// ValidPhone reports whether p is a +1 followed by ten digits.
func ValidPhone(p string) bool { return phoneRE.MatchString(p) }

// PhoneService runs the SMS one-time-code flow.
type PhoneService struct {
	Store    docstore.Store
	Settings *SettingsService
	Sender   sms.Sender

	CodeTTL     time.Duration
	MaxAttempts int
	// HashCost is the bcrypt cost for stored codes.
	HashCost int

	now func() time.Time
}

// NewPhoneService returns a PhoneService with bcrypt.DefaultCost.
func NewPhoneService(store docstore.Store, settings *SettingsService, sender sms.Sender, ttl time.Duration, maxAttempts int) *PhoneService {
	return &PhoneService{
		Store:       store,
		Settings:    settings,
		Sender:      sender,
		CodeTTL:     ttl,
		MaxAttempts: maxAttempts,
		HashCost:    bcrypt.DefaultCost,
	}
}

func (s *PhoneService) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// RequestCode starts a verification of phone for actor and texts the code.
// Fails with ErrSMSDisabled when SMS validation is switched off.
func (s *PhoneService) RequestCode(ctx context.Context, actor identity.Principal, phone string) (v *domain.PhoneVerification, err error) {
	ctx, span := startSpan(ctx, "services/PhoneService", "RequestCode", attribute.String("user.id", actor.ID))
	defer span.End()
	defer func() { phoneVerifications.WithLabelValues("request", result(err)).Inc() }()

	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	phone = strings.TrimSpace(phone)
	if !ValidPhone(phone) {
		return nil, invalid("phone must match +1XXXXXXXXXX")
	}
	settings, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.SMSValidation {
		return nil, ErrSMSDisabled
	}

	code, err := newCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.HashCost)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	v = &domain.PhoneVerification{
		ID:        s.Store.GenerateID(),
		UserID:    actor.ID,
		Phone:     phone,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(s.CodeTTL),
	}
	fields := map[string]any{
		"userId":    v.UserID,
		"phone":     v.Phone,
		"codeHash":  v.CodeHash,
		"attempts":  0,
		"expiresAt": docstore.Timestamp(v.ExpiresAt),
		"consumed":  false,
		"createdAt": docstore.Timestamp(now),
	}
	if err := s.Store.Put(ctx, VerificationsCollection, v.ID, fields, false); err != nil {
		return nil, writeErr(err)
	}

	body := fmt.Sprintf("Your SummerJobs verification code is %s", code)
	if err := s.Sender.Send(ctx, phone, body); err != nil {
		span.RecordError(err)
		if derr := s.Store.Delete(ctx, VerificationsCollection, v.ID); derr != nil {
			log.Warn().Err(derr).Str("verification_id", v.ID).Msg("could not remove unsent verification")
		}
		return nil, fmt.Errorf("%w: %v", ErrSMSDelivery, err)
	}
	return v, nil
}

// ConfirmCode checks code against the verification and, on success, saves
// the phone number on the actor's profile.
//
// Every call spends one attempt before the code is compared, so parallel
// guesses cannot share a counter value. Wrong codes fail with ErrValidation.
// Expired, consumed, or exhausted verifications fail with ErrValidation
// without checking the code.
func (s *PhoneService) ConfirmCode(ctx context.Context, actor identity.Principal, verificationID, code string) (err error) {
	ctx, span := startSpan(ctx, "services/PhoneService", "ConfirmCode",
		attribute.String("user.id", actor.ID),
		attribute.String("verification.id", verificationID),
	)
	defer span.End()
	defer func() { phoneVerifications.WithLabelValues("confirm", result(err)).Inc() }()

	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	v, err := s.load(ctx, verificationID)
	if err != nil {
		return err
	}
	if v.UserID != actor.ID {
		return fmt.Errorf("%w: verification belongs to another user", ErrForbidden)
	}
	if err := s.takeAttempt(ctx, v.ID); err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(strings.TrimSpace(code))) != nil {
		return invalid("invalid code")
	}

	if err := s.Store.Put(ctx, ProfilesCollection, actor.ID, map[string]any{"phone": v.Phone}, true); err != nil {
		return writeErr(err)
	}
	if err := s.Store.Put(ctx, VerificationsCollection, v.ID, map[string]any{"consumed": true}, true); err != nil {
		return writeErr(err)
	}
	return nil
}

// takeAttempt increments the attempt counter in one compare-and-swap write,
// refusing verifications that are consumed, expired or exhausted.
func (s *PhoneService) takeAttempt(ctx context.Context, id string) error {
	now := s.clock()
	err := s.Store.Update(ctx, VerificationsCollection, id, func(f map[string]any) (map[string]any, error) {
		attempts, _ := docstore.Int(f, "attempts")
		exp, _ := docstore.Time(f, "expiresAt")
		switch {
		case docstore.Bool(f, "consumed"):
			return nil, invalid("code already used")
		case !now.Before(exp):
			return nil, invalid("code expired")
		case attempts >= s.MaxAttempts:
			return nil, invalid("too many attempts")
		}
		return map[string]any{"attempts": attempts + 1}, nil
	})
	switch {
	case err == nil, errors.Is(err, ErrValidation):
		return err
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	default:
		return writeErr(err)
	}
}

// SavePhone writes phone directly onto the actor's profile. Allowed only
// while SMS validation is switched off.
func (s *PhoneService) SavePhone(ctx context.Context, actor identity.Principal, phone string) error {
	ctx, span := startSpan(ctx, "services/PhoneService", "SavePhone", attribute.String("user.id", actor.ID))
	defer span.End()

	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	phone = strings.TrimSpace(phone)
	if !ValidPhone(phone) {
		return invalid("phone must match +1XXXXXXXXXX")
	}
	settings, err := s.Settings.Get(ctx)
	if err != nil {
		return err
	}
	if settings.SMSValidation {
		return fmt.Errorf("%w: phone must be verified by SMS", ErrForbidden)
	}
	if err := s.Store.Put(ctx, ProfilesCollection, actor.ID, map[string]any{"phone": phone}, true); err != nil {
		return writeErr(err)
	}
	return nil
}

// PurgeExpired deletes verifications that expired or were consumed before
// now and returns how many were removed.
func (s *PhoneService) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	docs, err := s.Store.List(ctx, VerificationsCollection, docstore.Query{})
	if err != nil {
		return 0, readErr(err)
	}
	n := 0
	for _, d := range docs {
		exp, ok := docstore.Time(d.Fields, "expiresAt")
		if ok && now.Before(exp) && !docstore.Bool(d.Fields, "consumed") {
			continue
		}
		if err := s.Store.Delete(ctx, VerificationsCollection, d.ID); err != nil {
			return n, writeErr(err)
		}
		n++
	}
	return n, nil
}

func (s *PhoneService) load(ctx context.Context, id string) (*domain.PhoneVerification, error) {
	doc, err := s.Store.Get(ctx, VerificationsCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, readErr(err)
	}
	f := doc.Fields
	exp, _ := docstore.Time(f, "expiresAt")
	attempts, _ := docstore.Int(f, "attempts")
	return &domain.PhoneVerification{
		ID:        doc.ID,
		UserID:    docstore.String(f, "userId"),
		Phone:     docstore.String(f, "phone"),
		CodeHash:  docstore.String(f, "codeHash"),
		Attempts:  attempts,
		ExpiresAt: exp,
		Consumed:  docstore.Bool(f, "consumed"),
	}, nil
}

// newCode returns a uniformly random six-digit code.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
