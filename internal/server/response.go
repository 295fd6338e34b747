package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/caseline/pkg/apperr"
)

// envelope wraps every response body.
type envelope struct {
	Success    bool                `json:"success"`
	StatusCode int                 `json:"status_code"`
	Message    string              `json:"message"`
	Data       any                 `json:"data"`
	Errors     []apperr.FieldError `json:"errors,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func respondOK(c *gin.Context, data any) {
	respond(c, http.StatusOK, "OK", data)
}

func respondCreated(c *gin.Context, data any) {
	respond(c, http.StatusCreated, "Created", data)
}

func failure(status int, message string, errs []apperr.FieldError) (int, envelope) {
	return status, envelope{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Errors:     errs,
	}
}
