// Phone HTTP handlers.
//
//   - POST /phone/verifications               (text a one-time code)
//   - POST /phone/verifications/{id}/confirm  (check the code, save the number)
//   - PUT  /phone                             (direct save when SMS validation is off)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PhoneRequest carries a phone number in +1XXXXXXXXXX form.
type PhoneRequest struct {
	Phone string `json:"phone" binding:"required" example:"+15551234567"`
}

// ConfirmCodeRequest carries the code received by SMS.
type ConfirmCodeRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric" example:"042917"`
}

// RequestPhoneCode godoc
// @ID          requestPhoneCode
// @Summary     Start phone verification
// @Description Sends a six-digit code by SMS. Fails with 409 while SMS validation is switched off.
// @Tags        Phone
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.PhoneRequest  true  "Phone number"
// @Success     201  {object}  domain.PhoneVerification
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid phone"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     409  {object}  handlers.ErrorResponse  "SMS validation disabled"
// @Failure     502  {object}  handlers.ErrorResponse  "SMS gateway failure"
// @Router      /phone/verifications [post]
func (h *Handlers) RequestPhoneCode(c *gin.Context) {
	var req PhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone required")
		return
	}
	v, err := h.phone.RequestCode(c.Request.Context(), principal(c), req.Phone)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, v)
}

// ConfirmPhoneCode godoc
// @ID          confirmPhoneCode
// @Summary     Confirm phone verification
// @Description Checks the code; on success the number is saved on the caller's profile.
// @Tags        Phone
// @Accept      json
// @Security    BearerAuth
// @Param       id    path  string  true  "Verification ID"
// @Param       body  body  handlers.ConfirmCodeRequest  true  "Code"
// @Success     204  "Phone saved"
// @Failure     400  {object}  handlers.ErrorResponse  "Wrong, expired, or used code"
// @Failure     403  {object}  handlers.ErrorResponse  "Another user's verification"
// @Failure     404  {object}  handlers.ErrorResponse  "Verification not found"
// @Router      /phone/verifications/{id}/confirm [post]
func (h *Handlers) ConfirmPhoneCode(c *gin.Context) {
	var req ConfirmCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code must be 6 digits")
		return
	}
	if err := h.phone.ConfirmCode(c.Request.Context(), principal(c), c.Param("id"), req.Code); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// SavePhone godoc
// @ID          savePhone
// @Summary     Save phone without verification
// @Description Allowed only while SMS validation is switched off.
// @Tags        Phone
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.PhoneRequest  true  "Phone number"
// @Success     204  "Phone saved"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid phone"
// @Failure     403  {object}  handlers.ErrorResponse  "SMS validation required"
// @Router      /phone [put]
func (h *Handlers) SavePhone(c *gin.Context) {
	var req PhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone required")
		return
	}
	if err := h.phone.SavePhone(c.Request.Context(), principal(c), req.Phone); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
