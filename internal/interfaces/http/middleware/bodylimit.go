package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/syncline/backend/internal/interfaces/http/dto"
)

// DefaultMaxBodyBytes bounds staged-edit and resolve payloads
const DefaultMaxBodyBytes = 1 << 20 // 1MB

// BodyLimit returns a middleware that limits request body size
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
				dto.ErrCodeBadRequest, "Request body exceeds maximum allowed size"))
			return
		}

		// Wrap the body with a limited reader for streaming requests
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
