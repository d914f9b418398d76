// internal/utils/helpers.go
// General utility functions shared across packages.

package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateRequestID generates a unique request ID for HTTP access logs.
func GenerateRequestID() string {
	return fmt.Sprintf("req_%s", GenerateUUID())
}

// SanitizeString trims and escapes a user-supplied string before it is
// broadcast to other connections (chat text, display names).
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
