package server

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/caseline/internal/auth/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/caseline/internal/observability/metrics"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

const (
	msgForbidden       = "You do not have permission to perform this action."
	msgUnauthenticated = "Authentication credentials were not provided or are invalid."
	msgNotFound        = "Not found."
	msgValidation      = "Validation error"
	msgRateLimited     = "Too many requests, try again later."
	msgUnknown         = "Unable to process the request."
)

type errorKind string

const (
	kindValidation      errorKind = "validation_error"
	kindConflict        errorKind = "conflict"
	kindUnauthenticated errorKind = "unauthorized"
	kindForbidden       errorKind = "forbidden"
	kindNotFound        errorKind = "not_found"
	kindRateLimited     errorKind = "rate_limited"
	kindUnknown         errorKind = "internal_error"
)

// codePattern matches sentinel messages such as "invalid_period".
var codePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)+$`)

func ErrorHandlingMiddleware(metrics *obsmetrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		switch kind, _ := classifyError(lastErr.Err); kind {
		case kindUnknown:
			logger.FromContext(c.Request.Context()).Warn("unhandled request error", zap.Error(lastErr.Err))
		case kindForbidden:
			metrics.RecordAuthorizationDenied(c.Request.Context(), c.FullPath())
		}
		status, body := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, body)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return apperr.Invalid("request", "Invalid request body")
}

func newValidationError(field, code, message string) error {
	v := &apperr.ValidationError{}
	v.Add(field, code, message)
	return v
}

// mapError renders err as the response envelope.
func mapError(err error) (int, envelope) {
	kind, code := classifyError(err)
	switch kind {
	case kindValidation:
		if v, ok := apperr.AsValidation(err); ok {
			return failure(http.StatusBadRequest, msgValidation, v.Errors)
		}
		return failure(http.StatusBadRequest, msgValidation, []apperr.FieldError{{
			Field:   validationErrorField(code),
			Code:    code,
			Message: validationErrorMessage(code),
		}})
	case kindConflict:
		c, _ := apperr.AsConflict(err)
		return failure(http.StatusBadRequest, c.Message, nil)
	case kindUnauthenticated:
		return failure(http.StatusUnauthorized, msgUnauthenticated, nil)
	case kindForbidden:
		return failure(http.StatusForbidden, msgForbidden, nil)
	case kindNotFound:
		return failure(http.StatusNotFound, msgNotFound, nil)
	case kindRateLimited:
		return failure(http.StatusTooManyRequests, msgRateLimited, nil)
	default:
		return failure(http.StatusBadRequest, msgUnknown, nil)
	}
}

func classifyError(err error) (errorKind, string) {
	if err == nil {
		return kindUnknown, ""
	}
	if _, ok := apperr.AsValidation(err); ok {
		return kindValidation, "validation_error"
	}
	if _, ok := apperr.AsConflict(err); ok {
		return kindConflict, "conflict"
	}

	switch {
	case errors.Is(err, principal.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return kindUnauthenticated, rootCode(err)
	case errors.Is(err, authdomain.ErrTooManyAttempts),
		errors.Is(err, ErrRateLimited):
		return kindRateLimited, rootCode(err)
	case errors.Is(err, authorization.ErrForbidden):
		return kindForbidden, "forbidden"
	case errors.Is(err, gorm.ErrRecordNotFound):
		return kindNotFound, "not_found"
	}

	code := rootCode(err)
	switch {
	case code == "":
		return kindUnknown, ""
	case strings.HasSuffix(code, "_not_found") || code == ErrNotFound.Error():
		return kindNotFound, code
	default:
		return kindValidation, code
	}
}

// rootCode returns the innermost error message when it looks like a
// sentinel code, or "" for free-form errors.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	msg := err.Error()
	if !codePattern.MatchString(msg) {
		return ""
	}
	return msg
}

func classifyErrorForLog(err error) (string, string) {
	kind, code := classifyError(err)
	return string(kind), code
}

func validationErrorField(code string) string {
	if code == ErrInvalidRequest.Error() {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return "request"
}

func validationErrorMessage(code string) string {
	switch {
	case code == ErrInvalidRequest.Error():
		return "Invalid request"
	case strings.HasPrefix(code, "invalid_"):
		return "Invalid " + strings.ReplaceAll(strings.TrimPrefix(code, "invalid_"), "_", " ")
	default:
		return strings.ReplaceAll(code, "_", " ")
	}
}
