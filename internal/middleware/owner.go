package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt-engine/internal/response"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
)

// ContextKeyAttemptID is the Gin context key for the verified attempt ID.
const ContextKeyAttemptID = "attempt_id"

// OwnerVerifier is satisfied by service.AttemptService.
type OwnerVerifier interface {
	VerifyOwner(ctx context.Context, attemptID uuid.UUID, userID string) error
}

// RequireAttemptOwner rejects requests for an :attempt_id the caller does not
// own, so one student cannot read or write another student's attempt.
func RequireAttemptOwner(verifier OwnerVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		attemptID, err := uuid.Parse(c.Param("attempt_id"))
		if err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		err = verifier.VerifyOwner(c.Request.Context(), attemptID, claims.UserID())
		switch {
		case err == nil:
		case errors.Is(err, service.ErrNotAttemptOwner):
			response.AbortFail(c, http.StatusForbidden, response.ErrNotAttemptOwner)
			return
		case errors.Is(err, service.ErrAttemptNotFound):
			response.AbortFail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		default:
			_ = c.Error(err)
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Set(ContextKeyAttemptID, attemptID)
		c.Next()
	}
}

// GetAttemptID returns the attempt ID verified by RequireAttemptOwner.
func GetAttemptID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get(ContextKeyAttemptID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}
