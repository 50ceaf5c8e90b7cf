package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rental-marketplace/internal/auth"
	"rental-marketplace/internal/ratelimit"
)

// Router bundles what RegisterRoutes needs
type Router struct {
	JWTSecret    string
	Verification *VerificationHandler
	Admin        *AdminHandler
	Limiter      *ratelimit.RateLimiter
}

// RegisterRoutes mounts the health check and the authenticated API
func (rt Router) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", healthCheck)

	api := r.Group("/api", auth.Middleware(rt.JWTSecret))
	{
		v := api.Group("/verifications")
		v.POST("/request/:property_id", RateLimit(rt.Limiter), rt.Verification.RequestVerification)
		v.GET("/pending", rt.Verification.ListPending)
		v.GET("/property/:property_id", rt.Verification.ListForProperty)
		v.GET("/history/:property_id", rt.Verification.History)
		v.GET("/:id", rt.Verification.Get)
		v.POST("/:id/respond", rt.Verification.Respond)
		v.PUT("/:id", auth.RequireAdmin(), rt.Verification.AdminUpdate)

		api.PUT("/properties/:property_id/status", rt.Verification.UpdatePropertyStatus)
	}

	admin := api.Group("/admin", auth.RequireAdmin())
	{
		admin.PUT("/properties/:property_id/verify", rt.Verification.VerifyProperty)
		admin.POST("/verifications/schedule", rt.Admin.TriggerSchedule)
		admin.POST("/verifications/sweep", rt.Admin.TriggerSweep)
		admin.POST("/verifications/reindex", rt.Admin.Reindex)
		admin.GET("/verifications/stats", rt.Admin.GetStats)
		admin.GET("/verifications/search", rt.Admin.SearchTrust)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
