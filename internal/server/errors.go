package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/ceremony/internal/remote"
)

// APIError is an error with an HTTP status and a wire code.
type APIError struct {
	Status  int
	Code    remote.ErrorCode
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

func badRequest(code remote.ErrorCode, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Message: message}
}

func unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return &APIError{Status: http.StatusUnauthorized, Code: remote.CodeUnauthorized, Message: message}
}

func notFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: remote.CodeNotFound, Message: message}
}

func internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return &APIError{Status: http.StatusInternalServerError, Code: remote.CodeServer, Message: message}
}

func writeError(c *gin.Context, apiErr *APIError) {
	if apiErr == nil {
		apiErr = internal("")
	}
	c.AbortWithStatusJSON(apiErr.Status, remote.ErrorBody{
		Error: remote.ErrorDetail{Code: apiErr.Code, Message: apiErr.Message},
	})
}
