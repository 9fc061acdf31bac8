// Package mocks holds in-memory stand-ins for Redis and DynamoDB so the
// server runs fully self-contained in local dev and in tests.
package mocks

import (
	"os"
	"strings"
)

// IsMockMode reports whether USE_MOCKS asks for the in-memory backends.
func IsMockMode() bool {
	val := strings.ToLower(os.Getenv("USE_MOCKS"))
	return val == "true" || val == "1"
}
