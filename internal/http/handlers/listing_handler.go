// Listing HTTP handlers.
//
//   - GET    /listings/{kind}          (offers or requests, newest first)
//   - GET    /listings/{kind}/stream   (server-sent events on every change)
//   - POST   /listings/{kind}          (post, Idempotency-Key)
//   - DELETE /listings/{kind}/{id}     (poster soft delete)
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/summerjobs-backend/internal/domain"
	"github.com/tbourn/summerjobs-backend/internal/http/middleware"
	"github.com/tbourn/summerjobs-backend/internal/services"
	"github.com/tbourn/summerjobs-backend/internal/utils"
)

const (
	defaultListingLimit = 100
	maxListingLimit     = 500
)

// PostListingRequest is the JSON payload for posting an offer or request.
type PostListingRequest struct {
	Service string   `json:"service" example:"Lawn mowing"`
	Date    string   `json:"date"    example:"2025-07-01"`
	Time    string   `json:"time"    example:"09:30"`
	Price   *float64 `json:"price"   binding:"required" example:"20"`
	Address string   `json:"address" example:"12 Elm St"`
}

// ListingsResponse wraps a page of listings.
type ListingsResponse struct {
	Listings []domain.Listing `json:"listings"`
}

// ListListings godoc
// @ID          listListings
// @Summary     Browse offers or requests
// @Description Live listings, newest first. q narrows by service name (case-insensitive).
// @Description Poster name and phone are only shown to signed-in callers.
// @Tags        Listings
// @Produce     json
// @Param       kind   path   string  true   "offers or requests"  Enums(offers, requests)
// @Param       q      query  string  false  "Service name filter"
// @Param       limit  query  int     false  "Max results (1-500, default 100)"
// @Success     200  {object}  handlers.ListingsResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown kind"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /listings/{kind} [get]
func (h *Handlers) ListListings(c *gin.Context) {
	items, err := h.listings.List(c.Request.Context(), c.Param("kind"), c.Query("q"), principal(c))
	if err != nil {
		failErr(c, err)
		return
	}
	limit := utils.ClampLimit(c.Query("limit"), defaultListingLimit, maxListingLimit)
	ok(c, http.StatusOK, ListingsResponse{Listings: head(items, limit)})
}

// StreamListings godoc
// @ID          streamListings
// @Summary     Watch offers or requests
// @Description Server-sent events. A "listings" event carrying the full filtered view is sent
// @Description on connect and after every change; comment lines keep idle connections open.
// @Tags        Listings
// @Produce     text/event-stream
// @Param       kind   path   string  true   "offers or requests"  Enums(offers, requests)
// @Param       q      query  string  false  "Service name filter"
// @Param       limit  query  int     false  "Max results per event (1-500, default 100)"
// @Success     200  {array}   domain.Listing
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown kind"
// @Router      /listings/{kind}/stream [get]
func (h *Handlers) StreamListings(c *gin.Context) {
	ctx := c.Request.Context()
	updates, err := h.listings.Watch(ctx, c.Param("kind"), c.Query("q"), principal(c))
	if err != nil {
		failErr(c, err)
		return
	}
	limit := utils.ClampLimit(c.Query("limit"), defaultListingLimit, maxListingLimit)

	closed := middleware.StreamOpened(c)
	defer closed()

	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case view, open := <-updates:
			if !open {
				return
			}
			c.SSEvent("listings", head(view, limit))
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// PostListing godoc
// @ID          postListing
// @Summary     Post an offer or request
// @Description The poster's display name and phone are copied onto the listing.
// @Description Retrying with the same Idempotency-Key returns the original listing.
// @Tags        Listings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind             path    string  true   "offers or requests"  Enums(offers, requests)
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"
// @Param       body             body    handlers.PostListingRequest  true  "Listing"
// @Success     201  {object}  domain.Listing
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown kind"
// @Failure     500  {object}  handlers.ErrorResponse  "Write failed"
// @Router      /listings/{kind} [post]
func (h *Handlers) PostListing(c *gin.Context) {
	ctx := c.Request.Context()
	kind := c.Param("kind")
	actor := principal(c)

	if lid, status, found := h.replayed(c, actor.ID); found {
		if prev, err := h.listings.Get(ctx, kind, lid, actor); err == nil {
			markReplay(c)
			ok(c, status, prev)
			return
		}
	}

	var req PostListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body or missing price")
		return
	}
	l, err := h.listings.Post(ctx, actor, kind, services.ListingInput{
		Service: req.Service,
		Date:    req.Date,
		Time:    req.Time,
		Price:   *req.Price,
		Address: req.Address,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, actor.ID, l.ID, http.StatusCreated)
	ok(c, http.StatusCreated, l)
}

// DeleteListing godoc
// @ID          deleteListing
// @Summary     Remove own listing
// @Tags        Listings
// @Security    BearerAuth
// @Param       kind  path  string  true  "offers or requests"  Enums(offers, requests)
// @Param       id    path  string  true  "Listing ID"
// @Success     204  "Deleted"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the poster"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{kind}/{id} [delete]
func (h *Handlers) DeleteListing(c *gin.Context) {
	if err := h.listings.Delete(c.Request.Context(), principal(c), c.Param("kind"), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

func head(items []domain.Listing, n int) []domain.Listing {
	if len(items) > n {
		return items[:n]
	}
	return items
}
