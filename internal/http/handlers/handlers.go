// Package handlers exposes the marketplace services over HTTP.
//
// Handlers are transport-thin: they bind and shape input, resolve the
// calling principal, delegate to the services, and translate results
// (including conditional GETs and idempotent replays) into responses.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/http/middleware"
	"github.com/tbourn/summerjobs-backend/internal/identity"
	"github.com/tbourn/summerjobs-backend/internal/services"
)

//
// Service contracts
//

// ProfileService covers profile reads, self-edits, and admin operations.
type ProfileService interface {
	Get(ctx context.Context, uid string) (*domain.Profile, error)
	Update(ctx context.Context, actor identity.Principal, displayName, videoURL string) (*domain.Profile, error)
	ListProfiles(ctx context.Context, actor identity.Principal) ([]domain.Profile, error)
	ToggleAdmin(ctx context.Context, actor identity.Principal, uid string) (bool, error)
}

// RatingService covers ratings and replies on a profile.
type RatingService interface {
	SubmitRating(ctx context.Context, subjectID string, reviewer identity.Principal, stars int, comment, mediaURL string) (*domain.Rating, error)
	Summary(ctx context.Context, subjectID string) (*domain.RatingSummary, error)
	Fingerprint(ctx context.Context, subjectID string) (string, error)
	GetRating(ctx context.Context, subjectID, ratingID string) (*domain.Rating, error)
	SoftDeleteRating(ctx context.Context, subjectID, ratingID string, actor identity.Principal) error
	SetReply(ctx context.Context, subjectID, ratingID string, actor identity.Principal, text, mediaURL string) error
	ClearReply(ctx context.Context, subjectID, ratingID string, actor identity.Principal) error
}

// PhoneService covers SMS verification and direct phone saves.
type PhoneService interface {
	RequestCode(ctx context.Context, actor identity.Principal, phone string) (*domain.PhoneVerification, error)
	ConfirmCode(ctx context.Context, actor identity.Principal, verificationID, code string) error
	SavePhone(ctx context.Context, actor identity.Principal, phone string) error
}

// ListingService covers offers and requests.
type ListingService interface {
	Post(ctx context.Context, actor identity.Principal, kind string, in services.ListingInput) (*domain.Listing, error)
	List(ctx context.Context, kind, filter string, viewer identity.Principal) ([]domain.Listing, error)
	Get(ctx context.Context, kind, id string, viewer identity.Principal) (*domain.Listing, error)
	Delete(ctx context.Context, actor identity.Principal, kind, id string) error
	Watch(ctx context.Context, kind, filter string, viewer identity.Principal) (<-chan []domain.Listing, error)
}

// SettingsService covers the global switches.
type SettingsService interface {
	Get(ctx context.Context) (*domain.Settings, error)
	ToggleSMSValidation(ctx context.Context, actor identity.Principal) (bool, error)
}

// IdempotencyStore remembers which resource a (user, scope, key) created.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string, now time.Time) (resourceID string, status int, found bool)
	Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Deps bundles the collaborators of Handlers. Idempotency may be nil.
type Deps struct {
	Profiles    ProfileService
	Ratings     RatingService
	Phone       PhoneService
	Listings    ListingService
	Settings    SettingsService
	Idempotency IdempotencyStore

	// StreamHeartbeat is the keep-alive interval of listing streams.
	StreamHeartbeat time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	profiles  ProfileService
	ratings   RatingService
	phone     PhoneService
	listings  ListingService
	settings  SettingsService
	idem      IdempotencyStore
	heartbeat time.Duration
}

// New returns Handlers bound to d.
func New(d Deps) *Handlers {
	hb := d.StreamHeartbeat
	if hb <= 0 {
		hb = 25 * time.Second
	}
	return &Handlers{
		profiles:  d.Profiles,
		ratings:   d.Ratings,
		phone:     d.Phone,
		listings:  d.Listings,
		settings:  d.Settings,
		idem:      d.Idempotency,
		heartbeat: hb,
	}
}

// principal returns the caller resolved by middleware.Authenticate.
func principal(c *gin.Context) identity.Principal { return middleware.PrincipalFrom(c) }

// IdempotencyScope names the collection a creating request writes to, or ""
// for requests that do not create resources. The router hands it to
// middleware.IdempotencyValidator so lookups and stores agree on the scope.
func IdempotencyScope(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return ""
	}
	path := c.FullPath()
	switch {
	case strings.HasSuffix(path, "/profiles/:id/ratings"):
		return services.RatingsCollection(c.Param("id"))
	case strings.HasSuffix(path, "/listings/:kind"):
		return c.Param("kind")
	}
	return ""
}

// replayed looks up a stored result for the request's Idempotency-Key and
// returns the created resource id and original status.
func (h *Handlers) replayed(c *gin.Context, uid string) (string, int, bool) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil || uid == "" {
		return "", 0, false
	}
	return h.idem.Lookup(c.Request.Context(), uid, IdempotencyScope(c), key, time.Now().UTC())
}

// remember stores the created resource id for the request's key. Failures
// are logged and do not affect the response.
func (h *Handlers) remember(c *gin.Context, uid, resourceID string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil || uid == "" {
		return
	}
	if err := h.idem.Remember(c.Request.Context(), uid, IdempotencyScope(c), key, resourceID, status); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("scope", IdempotencyScope(c)).Msg("idempotency record not stored")
	}
}

// markReplay sets the response header announcing a replayed result.
func markReplay(c *gin.Context) { c.Header("Idempotency-Replayed", "true") }
