package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt-engine/internal/response"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
)

// RequireRole checks that the authenticated caller carries the given role.
// It must run after RequireJWT or RequireWSAuth.
func RequireRole(role service.Role) gin.HandlerFunc {
	denied := response.ErrForbidden
	switch role {
	case service.RoleStudent:
		denied = response.ErrStudentAccessOnly
	case service.RoleAdmin:
		denied = response.ErrAdminAccessOnly
	}

	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if claims.Role != role {
			response.AbortFail(c, http.StatusForbidden, denied)
			return
		}
		c.Next()
	}
}
