package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lecturelink/backend/internal/auth"
	"github.com/lecturelink/backend/pkg/response"
)

const (
	// ContextInstructorID is the key for the instructor ID (uuid.UUID) in gin context.
	ContextInstructorID = auth.ContextInstructorID
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUsername is the key for the instructor username in gin context.
	ContextUsername = "username"
)

// JWT returns a middleware that validates JWT and sets instructor claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextInstructorID, claims.InstructorID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}
