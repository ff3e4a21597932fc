package handlers

import "github.com/gin-gonic/gin"

// Register mounts every endpoint on rg. Paths are relative to the API base.
func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.GET("/settings", h.GetSettings)

	rg.GET("/profiles/:id", h.GetProfile)
	rg.PUT("/profiles/me", h.UpdateMyProfile)

	rg.GET("/profiles/:id/ratings", h.ListRatings)
	rg.POST("/profiles/:id/ratings", h.SubmitRating)
	rg.DELETE("/profiles/:id/ratings/:ratingId", h.DeleteRating)
	rg.PUT("/profiles/:id/ratings/:ratingId/reply", h.SetReply)
	rg.DELETE("/profiles/:id/ratings/:ratingId/reply", h.ClearReply)

	rg.POST("/phone/verifications", h.RequestPhoneCode)
	rg.POST("/phone/verifications/:id/confirm", h.ConfirmPhoneCode)
	rg.PUT("/phone", h.SavePhone)

	rg.GET("/listings/:kind", h.ListListings)
	rg.GET("/listings/:kind/stream", h.StreamListings)
	rg.POST("/listings/:kind", h.PostListing)
	rg.DELETE("/listings/:kind/:id", h.DeleteListing)

	admin := rg.Group("/admin")
	admin.GET("/users", h.ListUsers)
	admin.POST("/users/:id/admin", h.ToggleAdmin)
	admin.POST("/settings/sms-validation", h.ToggleSMSValidation)
}
