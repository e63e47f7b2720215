// Package pagination provides cursor-based pagination utilities.
//
// Report listings are keyed by (endTime, id): session end times are
// millisecond timestamps that collide under load, so the ID breaks ties.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Cursor represents a position in a paginated result set.
type Cursor struct {
	EndTime int64 // wall-clock ms
	ID      string
}

// Encode returns an opaque cursor string from an end timestamp and ID.
func Encode(endTime int64, id string) string {
	raw := fmt.Sprintf("%d|%s", endTime, id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor")
	}
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	return &Cursor{EndTime: ms, ID: parts[1]}, nil
}

// Contains reports whether the item at (endTime, id) sorts strictly after
// the cursor in the newest-first ordering, i.e. belongs on this page.
func (c *Cursor) Contains(endTime int64, id string) bool {
	if endTime != c.EndTime {
		return endTime < c.EndTime
	}
	return id < c.ID
}

// ComputePage takes a slice of items (fetched with limit+1), the requested limit,
// and a function to extract (endTime, id) from the last item.
// Returns the trimmed items, next cursor, and has_more flag.
func ComputePage[T any](items []T, limit int, extractKey func(T) (int64, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	last := items[len(items)-1]
	endTime, id := extractKey(last)
	return items, Encode(endTime, id), true
}
