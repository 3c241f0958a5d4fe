package middleware

import (
	"net/http"

	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit rejects requests above the given sustained rate with 429. One
// shared limiter per route group; used on endpoints that fan out to paid
// upstream services.
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(r, burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Error(http.StatusTooManyRequests, "Too many requests, slow down"))
			return
		}
		c.Next()
	}
}
