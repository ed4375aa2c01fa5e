package mocks

import (
	"os"
	"strings"
)

// IsMockMode reports whether the USE_MOCKS environment variable selects
// the in-memory stand-ins instead of real external services.
func IsMockMode() bool {
	val := os.Getenv("USE_MOCKS")
	return strings.ToLower(val) == "true" || val == "1"
}
