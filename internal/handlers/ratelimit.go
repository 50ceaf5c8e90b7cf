package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"rental-marketplace/internal/ratelimit"
)

// RateLimit limits each authenticated caller independently; it must run after auth
func RateLimit(limiter *ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("user:%d", caller(c).UserID)
		if !limiter.AllowRequest(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many verification requests. Please try again later.",
				"stats":   limiter.GetStats(key),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
