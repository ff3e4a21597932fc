package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ratingOps counts rating mutations by operation and outcome.
	ratingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratings_operations_total",
			Help: "Rating mutations by operation and result.",
		},
		[]string{"op", "result"},
	)

	// listingOps counts listing mutations by kind, operation, and outcome.
	listingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_operations_total",
			Help: "Listing mutations by kind, operation and result.",
		},
		[]string{"kind", "op", "result"},
	)

	// phoneVerifications counts OTP lifecycle events.
	phoneVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phone_verifications_total",
			Help: "Phone verification events by stage and result.",
		},
		[]string{"stage", "result"},
	)
)

func init() {
	prometheus.MustRegister(ratingOps, listingOps, phoneVerifications)
}

// result maps an error to a low-cardinality metric label.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
