package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/http/middleware"
)

func TestRatings_SubmitAndList(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/profiles/u2/ratings", "u1", SubmitRatingRequest{Stars: 4, Comment: "solid"})
	wantStatus(t, w, http.StatusCreated)
	r := decode[domain.Rating](t, w)
	if r.ID == "" || r.Stars != 4 || r.ReviewerID != "u1" || r.SubjectID != "u2" {
		t.Fatalf("unexpected rating: %+v", r)
	}

	wantStatus(t, f.do(t, http.MethodPost, "/profiles/u2/ratings", "u3", SubmitRatingRequest{Stars: 5}), http.StatusCreated)

	// anonymous readers see the summary
	w = f.do(t, http.MethodGet, "/profiles/u2/ratings", "", nil)
	wantStatus(t, w, http.StatusOK)
	sum := decode[domain.RatingSummary](t, w)
	if sum.Count != 2 || sum.Average != 4.5 || len(sum.Ratings) != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Ratings[0].ID != r.ID {
		t.Fatalf("ratings not in creation order: %+v", sum.Ratings)
	}
}

func TestRatings_SubmitRejections(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		uid  string
		path string
		body any
		want int
	}{
		{"anonymous", "", "/profiles/u2/ratings", SubmitRatingRequest{Stars: 5}, http.StatusUnauthorized},
		{"self rating", "u2", "/profiles/u2/ratings", SubmitRatingRequest{Stars: 5}, http.StatusForbidden},
		{"stars too high", "u1", "/profiles/u2/ratings", SubmitRatingRequest{Stars: 6}, http.StatusBadRequest},
		{"stars zero", "u1", "/profiles/u2/ratings", SubmitRatingRequest{Stars: 0}, http.StatusBadRequest},
		{"bad media", "u1", "/profiles/u2/ratings", SubmitRatingRequest{Stars: 3, MediaURL: "javascript:alert(1)"}, http.StatusBadRequest},
		{"bad json", "u1", "/profiles/u2/ratings", "nope", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wantStatus(t, f.do(t, http.MethodPost, tc.path, tc.uid, tc.body), tc.want)
		})
	}
}

func TestRatings_ETagNotModified(t *testing.T) {
	f := newFixture(t)
	wantStatus(t, f.do(t, http.MethodPost, "/profiles/u2/ratings", "u1", SubmitRatingRequest{Stars: 3}), http.StatusCreated)

	w := f.do(t, http.MethodGet, "/profiles/u2/ratings", "", nil)
	wantStatus(t, w, http.StatusOK)
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	w = f.do(t, http.MethodGet, "/profiles/u2/ratings", "", nil, "If-None-Match", etag)
	wantStatus(t, w, http.StatusNotModified)
	if w.Body.Len() != 0 {
		t.Fatalf("304 must not carry a body: %q", w.Body.String())
	}

	// a new rating changes the fingerprint
	wantStatus(t, f.do(t, http.MethodPost, "/profiles/u2/ratings", "u3", SubmitRatingRequest{Stars: 1}), http.StatusCreated)
	w = f.do(t, http.MethodGet, "/profiles/u2/ratings", "", nil, "If-None-Match", etag)
	wantStatus(t, w, http.StatusOK)
	if w.Header().Get("ETag") == etag {
		t.Fatal("ETag did not change after a write")
	}
}

func TestRatings_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	key := []string{middleware.HeaderIdempotencyKey, "rate-u2-1"}

	w1 := f.do(t, http.MethodPost, "/profiles/u2/ratings", "u1", SubmitRatingRequest{Stars: 5}, key...)
	wantStatus(t, w1, http.StatusCreated)
	first := decode[domain.Rating](t, w1)

	w2 := f.do(t, http.MethodPost, "/profiles/u2/ratings", "u1", SubmitRatingRequest{Stars: 5}, key...)
	wantStatus(t, w2, http.StatusCreated)
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("replay header missing")
	}
	if again := decode[domain.Rating](t, w2); again.ID != first.ID {
		t.Fatalf("replay returned %s, want %s", again.ID, first.ID)
	}

	sum := decode[domain.RatingSummary](t, f.do(t, http.MethodGet, "/profiles/u2/ratings", "", nil))
	if sum.Count != 1 {
		t.Fatalf("replay created a duplicate: count=%d", sum.Count)
	}

	// same key from another user is a fresh request
	wantStatus(t, f.do(t, http.MethodPost, "/profiles/u2/ratings", "u3", SubmitRatingRequest{Stars: 5}, key...), http.StatusCreated)
	if w := f.do(t, http.MethodPost, "/profiles/u2/ratings", "u1", SubmitRatingRequest{Stars: 5}, middleware.HeaderIdempotencyKey, "bad key!"); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed key accepted: %d", w.Code)
	}
}

func TestRatings_DeleteAndReply(t *testing.T) {
	f := newFixture(t)
	r := decode[domain.Rating](t, f.do(t, http.MethodPost, "/profiles/u2/ratings", "u1", SubmitRatingRequest{Stars: 2}))
	base := "/profiles/u2/ratings/" + r.ID

	// only the rated user may reply
	wantStatus(t, f.do(t, http.MethodPut, base+"/reply", "u1", ReplyRequest{Text: "hi"}), http.StatusForbidden)
	wantStatus(t, f.do(t, http.MethodPut, base+"/reply", "u2", ReplyRequest{Text: "Sorry about that"}), http.StatusNoContent)

	sum := decode[domain.RatingSummary](t, f.do(t, http.MethodGet, "/profiles/u2/ratings", "", nil))
	if sum.Ratings[0].ReplyText != "Sorry about that" {
		t.Fatalf("reply not stored: %+v", sum.Ratings[0])
	}

	wantStatus(t, f.do(t, http.MethodDelete, base+"/reply", "u2", nil), http.StatusNoContent)
	sum = decode[domain.RatingSummary](t, f.do(t, http.MethodGet, "/profiles/u2/ratings", "", nil))
	if sum.Ratings[0].HasReply() {
		t.Fatalf("reply not cleared: %+v", sum.Ratings[0])
	}

	// only the reviewer may delete
	wantStatus(t, f.do(t, http.MethodDelete, base, "u3", nil), http.StatusForbidden)
	wantStatus(t, f.do(t, http.MethodDelete, base, "u1", nil), http.StatusNoContent)
	wantStatus(t, f.do(t, http.MethodDelete, base, "u1", nil), http.StatusNotFound)

	sum = decode[domain.RatingSummary](t, f.do(t, http.MethodGet, "/profiles/u2/ratings", "", nil))
	if sum.Count != 0 || sum.Average != 0 {
		t.Fatalf("deleted rating still visible: %+v", sum)
	}
}
