package env

import (
	"os"
	"strings"
)

// Get reads key before config is loaded. Blank values count as unset.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
