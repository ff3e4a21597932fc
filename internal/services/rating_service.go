// Package services – RatingService
//
// This file implements the rating aggregate attached to a profile: star
// submission, soft deletion by the reviewer, a single-slot reply owned by
// the rated user, and the visible average. Ratings live at
// profiles/{subjectId}/ratings/{id} and are always addressed by id.
//
// Every mutation is one merge write of a single document, so concurrent
// edits of the same rating are last-writer-wins. Ownership rules are
// enforced here, before anything is written.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/summerjobs-backend/internal/docstore"
	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/identity"
)

// Star bounds for a rating.
const (
	MinStars = 1
	MaxStars = 5
)

// RatingService owns the lifecycle of ratings.
type RatingService struct {
	Store docstore.Store

	// MaxCommentRunes caps comments and reply text. Zero disables the cap.
	MaxCommentRunes int

	now func() time.Time
}

// NewRatingService returns a RatingService over store.
func NewRatingService(store docstore.Store, maxCommentRunes int) *RatingService {
	return &RatingService{Store: store, MaxCommentRunes: maxCommentRunes}
}

func (s *RatingService) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// RatingsCollection is the collection path holding the ratings of subjectID.
func RatingsCollection(subjectID string) string {
	return docstore.Collection("profiles", subjectID, "ratings")
}

func startSpan(ctx context.Context, tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracer).Start(ctx, name, trace.WithAttributes(attrs...))
}

// SubmitRating appends a new rating by reviewer for subjectID.
//
// Fails with ErrUnauthenticated without a reviewer, ErrValidation for a
// blank subject, stars outside [1,5], an oversized comment, or a media link
// that is not an absolute http(s) URL, ErrForbidden for self-rating, and
// ErrStoreWrite when the write fails.
func (s *RatingService) SubmitRating(ctx context.Context, subjectID string, reviewer identity.Principal, stars int, comment, mediaURL string) (rt *domain.Rating, err error) {
	ctx, span := startSpan(ctx, "services/RatingService", "SubmitRating",
		attribute.String("subject.id", subjectID),
		attribute.String("user.id", reviewer.ID),
		attribute.Int("stars", stars),
	)
	defer span.End()
	defer func() { ratingOps.WithLabelValues("submit", result(err)).Inc() }()

	if !reviewer.Authenticated() {
		return nil, ErrUnauthenticated
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, invalid("subject id is required")
	}
	if subjectID == reviewer.ID {
		return nil, fmt.Errorf("%w: cannot rate your own profile", ErrForbidden)
	}
	if stars < MinStars || stars > MaxStars {
		return nil, invalid("stars must be between %d and %d", MinStars, MaxStars)
	}
	comment = strings.TrimSpace(comment)
	if err := checkLength("comment", comment, s.MaxCommentRunes); err != nil {
		return nil, err
	}
	mediaURL, err = checkMediaURL("mediaUrl", mediaURL)
	if err != nil {
		return nil, err
	}

	label := strings.TrimSpace(reviewer.Label)
	if label == "" {
		label = identity.Anonymous
	}

	r := &domain.Rating{
		ID:            s.Store.GenerateID(),
		SubjectID:     subjectID,
		ReviewerID:    reviewer.ID,
		ReviewerLabel: label,
		Stars:         stars,
		Comment:       comment,
		MediaURL:      mediaURL,
		CreatedAt:     s.clock(),
	}
	fields := map[string]any{
		"subjectId":     r.SubjectID,
		"reviewerId":    r.ReviewerID,
		"reviewerLabel": r.ReviewerLabel,
		"stars":         r.Stars,
		"comment":       r.Comment,
		"mediaUrl":      r.MediaURL,
		"deleted":       false,
		"replyText":     "",
		"replyMediaUrl": "",
		"createdAt":     docstore.Timestamp(r.CreatedAt),
	}
	if err := s.Store.Put(ctx, RatingsCollection(subjectID), r.ID, fields, false); err != nil {
		span.RecordError(err)
		return nil, writeErr(err)
	}
	return r, nil
}

// ListVisibleRatings returns the non-deleted ratings of subjectID in
// creation order. Documents without a valid star value are skipped.
func (s *RatingService) ListVisibleRatings(ctx context.Context, subjectID string) ([]domain.Rating, error) {
	ctx, span := startSpan(ctx, "services/RatingService", "ListVisibleRatings",
		attribute.String("subject.id", subjectID))
	defer span.End()

	docs, err := s.Store.List(ctx, RatingsCollection(subjectID), docstore.Query{})
	if err != nil {
		span.RecordError(err)
		return nil, readErr(err)
	}
	out := make([]domain.Rating, 0, len(docs))
	for _, d := range docs {
		r, ok := decodeRating(d, subjectID)
		if !ok || r.Deleted {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ComputeAverage returns the arithmetic mean of stars, or 0 for no ratings.
// Deleted ratings never contribute.
func ComputeAverage(ratings []domain.Rating) float64 {
	var sum, n int
	for _, r := range ratings {
		if r.Deleted {
			continue
		}
		sum += r.Stars
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// Summary returns the visible ratings of subjectID with their average.
func (s *RatingService) Summary(ctx context.Context, subjectID string) (*domain.RatingSummary, error) {
	rs, err := s.ListVisibleRatings(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return &domain.RatingSummary{
		SubjectID: subjectID,
		Average:   ComputeAverage(rs),
		Count:     len(rs),
		Ratings:   rs,
	}, nil
}

// Fingerprint returns a weak ETag for the ratings of subjectID. It changes
// whenever a rating is added or modified.
func (s *RatingService) Fingerprint(ctx context.Context, subjectID string) (string, error) {
	count, maxTS, err := s.Store.Stats(ctx, RatingsCollection(subjectID))
	if err != nil {
		return "", readErr(err)
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"ratings:%s:%d:%d"`, subjectID, count, ts), nil
}

// GetRating returns one visible rating by id.
func (s *RatingService) GetRating(ctx context.Context, subjectID, ratingID string) (*domain.Rating, error) {
	doc, err := s.Store.Get(ctx, RatingsCollection(subjectID), ratingID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, readErr(err)
	}
	r, ok := decodeRating(*doc, subjectID)
	if !ok || r.Deleted {
		return nil, ErrNotFound
	}
	return &r, nil
}

// SoftDeleteRating marks a rating deleted. Only its reviewer may do so. The
// document is kept in storage.
func (s *RatingService) SoftDeleteRating(ctx context.Context, subjectID, ratingID string, actor identity.Principal) (err error) {
	ctx, span := startSpan(ctx, "services/RatingService", "SoftDeleteRating",
		attribute.String("subject.id", subjectID),
		attribute.String("rating.id", ratingID),
		attribute.String("user.id", actor.ID),
	)
	defer span.End()
	defer func() { ratingOps.WithLabelValues("delete", result(err)).Inc() }()

	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	r, err := s.GetRating(ctx, subjectID, ratingID)
	if err != nil {
		return err
	}
	if r.ReviewerID != actor.ID {
		return fmt.Errorf("%w: only the reviewer can delete this rating", ErrForbidden)
	}
	if err := s.Store.Put(ctx, RatingsCollection(subjectID), ratingID, map[string]any{"deleted": true}, true); err != nil {
		span.RecordError(err)
		return writeErr(err)
	}
	return nil
}

// SetReply writes the subject's reply on a rating, replacing any previous
// reply. Only the rated user may reply.
func (s *RatingService) SetReply(ctx context.Context, subjectID, ratingID string, actor identity.Principal, text, mediaURL string) (err error) {
	op := "reply"
	if strings.TrimSpace(text) == "" && strings.TrimSpace(mediaURL) == "" {
		op = "clear_reply"
	}
	ctx, span := startSpan(ctx, "services/RatingService", "SetReply",
		attribute.String("subject.id", subjectID),
		attribute.String("rating.id", ratingID),
		attribute.String("user.id", actor.ID),
	)
	defer span.End()
	defer func() { ratingOps.WithLabelValues(op, result(err)).Inc() }()

	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if actor.ID != subjectID {
		return fmt.Errorf("%w: only the profile owner can reply", ErrForbidden)
	}
	text = strings.TrimSpace(text)
	if err := checkLength("replyText", text, s.MaxCommentRunes); err != nil {
		return err
	}
	mediaURL, err = checkMediaURL("replyMediaUrl", mediaURL)
	if err != nil {
		return err
	}
	if _, err := s.GetRating(ctx, subjectID, ratingID); err != nil {
		return err
	}

	fields := map[string]any{"replyText": text, "replyMediaUrl": mediaURL}
	if err := s.Store.Put(ctx, RatingsCollection(subjectID), ratingID, fields, true); err != nil {
		span.RecordError(err)
		return writeErr(err)
	}
	return nil
}

// ClearReply removes the subject's reply from a rating.
func (s *RatingService) ClearReply(ctx context.Context, subjectID, ratingID string, actor identity.Principal) error {
	return s.SetReply(ctx, subjectID, ratingID, actor, "", "")
}

// decodeRating maps a stored document to a Rating. It reports false when
// stars is missing, non-integral, or out of range.
func decodeRating(d domain.Document, subjectID string) (domain.Rating, bool) {
	f := d.Fields
	stars, ok := docstore.Int(f, "stars")
	if !ok || stars < MinStars || stars > MaxStars {
		return domain.Rating{}, false
	}
	created, ok := docstore.Time(f, "createdAt")
	if !ok {
		created = d.CreatedAt
	}
	subject := docstore.String(f, "subjectId")
	if subject == "" {
		subject = subjectID
	}
	return domain.Rating{
		ID:            d.ID,
		SubjectID:     subject,
		ReviewerID:    docstore.String(f, "reviewerId"),
		ReviewerLabel: docstore.String(f, "reviewerLabel"),
		Stars:         stars,
		Comment:       docstore.String(f, "comment"),
		MediaURL:      docstore.String(f, "mediaUrl"),
		Deleted:       docstore.Bool(f, "deleted"),
		ReplyText:     docstore.String(f, "replyText"),
		ReplyMediaURL: docstore.String(f, "replyMediaUrl"),
		CreatedAt:     created,
	}, true
}
