// Rating HTTP handlers.
//
//   - GET    /profiles/{id}/ratings                      (summary, ETag)
//   - POST   /profiles/{id}/ratings                      (submit, Idempotency-Key)
//   - DELETE /profiles/{id}/ratings/{ratingId}           (reviewer soft delete)
//   - PUT    /profiles/{id}/ratings/{ratingId}/reply     (owner reply)
//   - DELETE /profiles/{id}/ratings/{ratingId}/reply     (owner clears reply)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SubmitRatingRequest is the JSON payload for rating a profile.
type SubmitRatingRequest struct {
	Stars    int    `json:"stars"    example:"5"`
	Comment  string `json:"comment"  example:"Great job on the lawn"`
	MediaURL string `json:"mediaUrl" example:"https://youtu.be/xyz"`
}

// ReplyRequest is the JSON payload for replying to a rating.
type ReplyRequest struct {
	Text     string `json:"text"     example:"Thanks!"`
	MediaURL string `json:"mediaUrl" example:""`
}

// ListRatings godoc
// @ID          listRatings
// @Summary     Ratings of a profile
// @Description Returns visible ratings in creation order with their average.
// @Description Supports conditional requests via If-None-Match.
// @Tags        Ratings
// @Produce     json
// @Param       id             path    string  true   "Rated user ID"
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Success     200  {object}  domain.RatingSummary
// @Success     304  "Not modified"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /profiles/{id}/ratings [get]
func (h *Handlers) ListRatings(c *gin.Context) {
	ctx := c.Request.Context()
	subject := c.Param("id")

	// ETag pre-check; a failure here just skips the conditional path.
	if etag, err := h.ratings.Fingerprint(ctx, subject); err == nil {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	sum, err := h.ratings.Summary(ctx, subject)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// SubmitRating godoc
// @ID          submitRating
// @Summary     Rate a profile
// @Description Adds a 1-5 star rating with optional comment and media link.
// @Description Retrying with the same Idempotency-Key returns the original rating.
// @Tags        Ratings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    string  true   "Rated user ID"
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"
// @Param       body             body    handlers.SubmitRatingRequest  true  "Rating"
// @Success     201  {object}  domain.Rating
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Self-rating"
// @Failure     500  {object}  handlers.ErrorResponse  "Write failed"
// @Router      /profiles/{id}/ratings [post]
func (h *Handlers) SubmitRating(c *gin.Context) {
	ctx := c.Request.Context()
	subject := c.Param("id")
	actor := principal(c)

	if rid, status, found := h.replayed(c, actor.ID); found {
		if prev, err := h.ratings.GetRating(ctx, subject, rid); err == nil {
			markReplay(c)
			ok(c, status, prev)
			return
		}
	}

	var req SubmitRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	r, err := h.ratings.SubmitRating(ctx, subject, actor, req.Stars, req.Comment, req.MediaURL)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, actor.ID, r.ID, http.StatusCreated)
	ok(c, http.StatusCreated, r)
}

// DeleteRating godoc
// @ID          deleteRating
// @Summary     Remove own rating
// @Description Soft-deletes a rating. Only its reviewer may do so.
// @Tags        Ratings
// @Security    BearerAuth
// @Param       id        path  string  true  "Rated user ID"
// @Param       ratingId  path  string  true  "Rating ID"
// @Success     204  "Deleted"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the reviewer"
// @Failure     404  {object}  handlers.ErrorResponse  "Rating not found"
// @Router      /profiles/{id}/ratings/{ratingId} [delete]
func (h *Handlers) DeleteRating(c *gin.Context) {
	if err := h.ratings.SoftDeleteRating(c.Request.Context(), c.Param("id"), c.Param("ratingId"), principal(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// SetReply godoc
// @ID          setReply
// @Summary     Reply to a rating
// @Description Writes the rated user's reply, replacing any previous one.
// @Tags        Ratings
// @Accept      json
// @Security    BearerAuth
// @Param       id        path  string  true  "Rated user ID (must be the caller)"
// @Param       ratingId  path  string  true  "Rating ID"
// @Param       body      body  handlers.ReplyRequest  true  "Reply"
// @Success     204  "Saved"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the profile owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Rating not found"
// @Router      /profiles/{id}/ratings/{ratingId}/reply [put]
func (h *Handlers) SetReply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.ratings.SetReply(c.Request.Context(), c.Param("id"), c.Param("ratingId"), principal(c), req.Text, req.MediaURL); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ClearReply godoc
// @ID          clearReply
// @Summary     Remove reply from a rating
// @Tags        Ratings
// @Security    BearerAuth
// @Param       id        path  string  true  "Rated user ID (must be the caller)"
// @Param       ratingId  path  string  true  "Rating ID"
// @Success     204  "Cleared"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the profile owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Rating not found"
// @Router      /profiles/{id}/ratings/{ratingId}/reply [delete]
func (h *Handlers) ClearReply(c *gin.Context) {
	if err := h.ratings.ClearReply(c.Request.Context(), c.Param("id"), c.Param("ratingId"), principal(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
