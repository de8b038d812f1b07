// Package pagination implements opaque keyset cursors for list endpoints.
// A cursor encodes the (timestamp, id) pair of the last item on a page,
// so listings stay stable while new signals are ingested.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned when a cursor string cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a decoded position in a result set ordered by
// (timestamp DESC, id DESC).
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// Encode builds an opaque cursor for the item with the given key.
func Encode(ts time.Time, id string) string {
	return base64.RawURLEncoding.EncodeToString(
		[]byte(strconv.FormatInt(ts.UnixNano(), 10) + "|" + id))
}

// Decode parses an opaque cursor. An empty string decodes to nil,
// meaning "start from the beginning".
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanosStr, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp", ErrInvalidCursor)
	}
	return &Cursor{Timestamp: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// ComputePage trims a limit+1 fetch down to one page. extractKey pulls
// the (timestamp, id) key from an item. Returns the page, the cursor for
// the next page, and whether more items remain.
func ComputePage[T any](items []T, limit int, extractKey func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	page := items[:limit]
	ts, id := extractKey(page[len(page)-1])
	return page, Encode(ts, id), true
}
