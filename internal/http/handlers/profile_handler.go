// Profile HTTP handlers.
//
//   - GET /profiles/{id}   (public profile view)
//   - PUT /profiles/me     (edit own display name and video link)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/summerjobs-backend/internal/domain"
)

// UpdateProfileRequest is the JSON payload for editing one's own profile.
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName" example:"Maya"`
	VideoURL    string `json:"videoUrl"    example:"https://youtu.be/abc"`
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Get a profile
// @Description Returns a user's profile. The phone number is only included for signed-in callers.
// @Tags        Profiles
// @Produce     json
// @Param       id   path  string  true  "User ID"
// @Success     200  {object}  domain.Profile
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /profiles/{id} [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	out := *p
	if !principal(c).Authenticated() {
		out.Phone = ""
	}
	ok(c, http.StatusOK, out)
}

// UpdateMyProfile godoc
// @ID          updateMyProfile
// @Summary     Edit own profile
// @Description Merge-writes display name and presentation video link. Phone and admin flag are untouched.
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.UpdateProfileRequest  true  "Profile fields"
// @Success     200  {object}  domain.Profile
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     500  {object}  handlers.ErrorResponse  "Write failed"
// @Router      /profiles/me [put]
func (h *Handlers) UpdateMyProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), principal(c), req.DisplayName, req.VideoURL)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// ListUsersResponse wraps the admin user list.
type ListUsersResponse struct {
	Users []domain.Profile `json:"users"`
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List all users (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListUsersResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Not an admin"
// @Router      /admin/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.profiles.ListProfiles(c.Request.Context(), principal(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: users})
}

// ToggleResponse reports the new value of a flipped switch.
type ToggleResponse struct {
	Value bool `json:"value"`
}

// ToggleAdmin godoc
// @ID          toggleAdmin
// @Summary     Flip a user's admin flag (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "User ID"
// @Success     200  {object}  handlers.ToggleResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Not an admin"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /admin/users/{id}/admin [post]
func (h *Handlers) ToggleAdmin(c *gin.Context) {
	v, err := h.profiles.ToggleAdmin(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ToggleResponse{Value: v})
}

// GetSettings godoc
// @ID          getSettings
// @Summary     Read global settings
// @Tags        Settings
// @Produce     json
// @Success     200  {object}  domain.Settings
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /settings [get]
func (h *Handlers) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// ToggleSMSValidation godoc
// @ID          toggleSmsValidation
// @Summary     Flip the SMS validation switch (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ToggleResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     403  {object}  handlers.ErrorResponse  "Not an admin"
// @Router      /admin/settings/sms-validation [post]
func (h *Handlers) ToggleSMSValidation(c *gin.Context) {
	v, err := h.settings.ToggleSMSValidation(c.Request.Context(), principal(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ToggleResponse{Value: v})
}
