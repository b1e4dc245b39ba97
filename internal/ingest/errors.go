package ingest

import (
	"strings"
)

// transientMarkers are matched case-insensitively against error messages.
// Anything else is treated as non-transient and goes straight to the DLQ.
var transientMarkers = []string{
	"busy",
	"locked",
	"timeout",
	"ioerr",
	"database is locked",
}

// IsTransient classifies a persistence error as retryable contention
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
