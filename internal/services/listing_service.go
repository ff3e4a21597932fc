// Package services – ListingService
//
// Service offers and service requests are stored in the "offers" and
// "requests" collections. Listings are shown newest first, can be narrowed
// with a case-insensitive text filter on the service name, and are soft
// deleted by their poster. The poster's name and phone are copied onto the
// listing when it is posted and are only shown to signed-in callers.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"

	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/identity"
)

// Field limits for listings.
const (
	ServiceMaxLen = 120
	AddressMaxLen = 200
)

// ListingInput is the user-supplied part of a listing.
type ListingInput struct {
	Service string
	Date    string // YYYY-MM-DD
	Time    string // HH:MM (24h)
	Price   float64
	Address string
}

// ListingService manages offers and requests.
type ListingService struct {
	Store    docstore.Store
	Profiles *ProfileService

	now func() time.Time
}

// NewListingService returns a ListingService.
func NewListingService(store docstore.Store, profiles *ProfileService) *ListingService {
	return &ListingService{Store: store, Profiles: profiles}
}

func (s *ListingService) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// ValidKind reports whether kind names a listing collection.
func ValidKind(kind string) bool {
	return kind == domain.ListingOffers || kind == domain.ListingRequests
}

// kindLabel keeps the metric label set closed; kind comes from the URL.
func kindLabel(kind string) string {
	if ValidKind(kind) {
		return kind
	}
	return "unknown"
}

func checkKind(kind string) error {
	if !ValidKind(kind) {
		return fmt.Errorf("%w: unknown listing kind %q", ErrNotFound, kind)
	}
	return nil
}

// Post validates in and stores a new listing for actor.
func (s *ListingService) Post(ctx context.Context, actor identity.Principal, kind string, in ListingInput) (l *domain.Listing, err error) {
	ctx, span := startSpan(ctx, "services/ListingService", "Post",
		attribute.String("user.id", actor.ID),
		attribute.String("listing.kind", kind),
	)
	defer span.End()
	defer func() { listingOps.WithLabelValues(kindLabel(kind), "post", result(err)).Inc() }()

	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	in, err = normalizeListing(in)
	if err != nil {
		return nil, err
	}

	name, phone := strings.TrimSpace(actor.Label), ""
	if p, perr := s.Profiles.Get(ctx, actor.ID); perr == nil {
		if p.DisplayName != "" {
			name = p.DisplayName
		}
		phone = p.Phone
	} else if !errors.Is(perr, ErrNotFound) {
		return nil, perr
	}
	if name == "" {
		name = identity.Anonymous
	}

	l = &domain.Listing{
		ID:        s.Store.GenerateID(),
		Kind:      kind,
		Service:   in.Service,
		Date:      in.Date,
		Time:      in.Time,
		Price:     in.Price,
		Address:   in.Address,
		UserID:    actor.ID,
		UserName:  name,
		UserPhone: phone,
		CreatedAt: s.clock(),
	}
	fields := map[string]any{
		"service":   l.Service,
		"date":      l.Date,
		"time":      l.Time,
		"price":     l.Price,
		"address":   l.Address,
		"userId":    l.UserID,
		"userName":  l.UserName,
		"userPhone": l.UserPhone,
		"createdAt": docstore.Timestamp(l.CreatedAt),
		"deletedAt": nil,
	}
	if err := s.Store.Put(ctx, kind, l.ID, fields, false); err != nil {
		span.RecordError(err)
		return nil, writeErr(err)
	}
	return l, nil
}

// List returns live listings of kind, newest first, whose service contains
// filter under Unicode case folding. Contact details are cleared unless
// viewer is signed in.
func (s *ListingService) List(ctx context.Context, kind, filter string, viewer identity.Principal) ([]domain.Listing, error) {
	ctx, span := startSpan(ctx, "services/ListingService", "List",
		attribute.String("listing.kind", kind),
		attribute.String("filter", filter),
	)
	defer span.End()

	if err := checkKind(kind); err != nil {
		return nil, err
	}
	docs, err := s.Store.List(ctx, kind, docstore.Query{Descending: true})
	if err != nil {
		span.RecordError(err)
		return nil, readErr(err)
	}
	return visibleListings(docs, kind, filter, viewer), nil
}

// Get returns one live listing.
func (s *ListingService) Get(ctx context.Context, kind, id string, viewer identity.Principal) (*domain.Listing, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	doc, err := s.Store.Get(ctx, kind, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, readErr(err)
	}
	l := decodeListing(*doc, kind)
	if l.DeletedAt != nil {
		return nil, ErrNotFound
	}
	if !viewer.Authenticated() {
		hideContact(&l)
	}
	return &l, nil
}

// Delete soft-deletes a listing. Only its poster may do so.
func (s *ListingService) Delete(ctx context.Context, actor identity.Principal, kind, id string) (err error) {
	ctx, span := startSpan(ctx, "services/ListingService", "Delete",
		attribute.String("user.id", actor.ID),
		attribute.String("listing.kind", kind),
		attribute.String("listing.id", id),
	)
	defer span.End()
	defer func() { listingOps.WithLabelValues(kindLabel(kind), "delete", result(err)).Inc() }()

	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	l, err := s.Get(ctx, kind, id, actor)
	if err != nil {
		return err
	}
	if l.UserID != actor.ID {
		return fmt.Errorf("%w: only the poster can delete this listing", ErrForbidden)
	}
	if err := s.Store.Put(ctx, kind, id, map[string]any{"deletedAt": docstore.Timestamp(s.clock())}, true); err != nil {
		span.RecordError(err)
		return writeErr(err)
	}
	return nil
}

// Watch streams the filtered listing view of kind after every change. The
// channel starts with the current view and is closed when ctx ends.
func (s *ListingService) Watch(ctx context.Context, kind, filter string, viewer identity.Principal) (<-chan []domain.Listing, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	sub, err := s.Store.Subscribe(ctx, kind, docstore.Query{Descending: true})
	if err != nil {
		return nil, readErr(err)
	}
	out := make(chan []domain.Listing)
	go func() {
		defer close(out)
		defer sub.Close()
		for snap := range sub.Updates() {
			view := visibleListings(snap.Docs, kind, filter, viewer)
			select {
			case out <- view:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func visibleListings(docs []domain.Document, kind, filter string, viewer identity.Principal) []domain.Listing {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(filter))
	out := make([]domain.Listing, 0, len(docs))
	for _, d := range docs {
		l := decodeListing(d, kind)
		if l.DeletedAt != nil {
			continue
		}
		if needle != "" && !strings.Contains(fold.String(l.Service), needle) {
			continue
		}
		if !viewer.Authenticated() {
			hideContact(&l)
		}
		out = append(out, l)
	}
	return out
}

func hideContact(l *domain.Listing) {
	l.UserName = ""
	l.UserPhone = ""
}

func normalizeListing(in ListingInput) (ListingInput, error) {
	in.Service = normalizeLine(in.Service)
	in.Address = normalizeLine(in.Address)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)

	if in.Service == "" {
		return in, invalid("service is required")
	}
	if err := checkLength("service", in.Service, ServiceMaxLen); err != nil {
		return in, err
	}
	if _, err := time.Parse(time.DateOnly, in.Date); err != nil {
		return in, invalid("date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", in.Time); err != nil {
		return in, invalid("time must be HH:MM")
	}
	if math.IsNaN(in.Price) || math.IsInf(in.Price, 0) || in.Price < 0 {
		return in, invalid("price must be a non-negative number")
	}
	if in.Address == "" {
		return in, invalid("address is required")
	}
	if err := checkLength("address", in.Address, AddressMaxLen); err != nil {
		return in, err
	}
	return in, nil
}

func decodeListing(d domain.Document, kind string) domain.Listing {
	f := d.Fields
	price, _ := docstore.Float(f, "price")
	created, ok := docstore.Time(f, "createdAt")
	if !ok {
		created = d.CreatedAt
	}
	l := domain.Listing{
		ID:        d.ID,
		Kind:      kind,
		Service:   docstore.String(f, "service"),
		Date:      docstore.String(f, "date"),
		Time:      docstore.String(f, "time"),
		Price:     price,
		Address:   docstore.String(f, "address"),
		UserID:    docstore.String(f, "userId"),
		UserName:  docstore.String(f, "userName"),
		UserPhone: docstore.String(f, "userPhone"),
		CreatedAt: created,
	}
	if t, ok := docstore.Time(f, "deletedAt"); ok {
		l.DeletedAt = &t
	}
	return l
}
