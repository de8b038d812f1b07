// Package validation provides input validation helpers for the RiskPulse API.
package validation

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// MaxRequestSize caps request bodies at 1MB.
	MaxRequestSize = 1 << 20

	// MaxStringLength caps free-text fields such as signal content.
	MaxStringLength = 10000
)

// RequestSizeMiddleware rejects request bodies larger than maxSize.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeString strips null bytes, trims whitespace, and truncates to maxLen.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// ValidationError is a single field failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects field failures from one request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Field + ": " + ve.Message
	}
	return strings.Join(parts, "; ")
}

// Validate runs each check and collects the failures. A nil/empty result
// means the input passed.
func Validate(checks ...func() *ValidationError) ValidationErrors {
	var failures ValidationErrors
	for _, check := range checks {
		if ve := check(); ve != nil {
			failures = append(failures, *ve)
		}
	}
	return failures
}

// Required fails when value is empty or whitespace-only.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength fails when value is longer than max bytes.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// OneOf fails when value is set but not among allowed. Empty passes;
// combine with Required for mandatory fields.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of: " + strings.Join(allowed, ", ")}
	}
}

// UnitRange fails when value lies outside [lo, hi].
func UnitRange(field string, value, lo, hi float64) func() *ValidationError {
	return func() *ValidationError {
		if value < lo || value > hi {
			return &ValidationError{Field: field, Message: "out of range"}
		}
		return nil
	}
}
