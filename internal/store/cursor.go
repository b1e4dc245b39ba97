package store

import (
	"encoding/base64"
	"strconv"
)

// Cursors for conversation and message listings are timestamps: a page
// continues strictly below the cursor value. The wire form is base64 so
// the REST collaborator can treat it as opaque.

// EncodeCursor encodes a timestamp cursor; zero encodes to ""
func EncodeCursor(ts int64) string {
	if ts == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(ts, 10)))
}

// DecodeCursor parses a cursor string. Returns 0 and false when empty
// or invalid.
func DecodeCursor(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, false
	}
	ts, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || ts <= 0 {
		return 0, false
	}
	return ts, true
}
