package instance

import (
	"os"
	"strings"
)

// GetID names this process for lock ownership and logs. DUKALINK_WORKER_ID
// wins, then the hostname.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("DUKALINK_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
