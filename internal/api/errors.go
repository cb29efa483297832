package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"microgrid_simulator/internal/simulator"
	"microgrid_simulator/internal/store"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeDefaultSession  = "DEFAULT_SESSION"
	CodeSessionLimit    = "SESSION_LIMIT"
	CodeInternal        = "INTERNAL_ERROR"
)

func abortWithError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: err.Error()},
	})
}

// abortWithDomainError maps store and simulator errors to a status and code.
func abortWithDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		abortWithError(c, http.StatusNotFound, CodeSessionNotFound, err)
	case errors.Is(err, store.ErrDefaultSession):
		abortWithError(c, http.StatusConflict, CodeDefaultSession, err)
	case errors.Is(err, store.ErrLimitReached):
		abortWithError(c, http.StatusTooManyRequests, CodeSessionLimit, err)
	case errors.Is(err, simulator.ErrInvalidInput):
		abortWithError(c, http.StatusBadRequest, CodeInvalidInput, err)
	default:
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err)
	}
}

// recovery turns panics into INTERNAL_ERROR responses.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		msg := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			msg = s
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: CodeInternal, Message: msg},
		})
	})
}
