package dto

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// Page sizes for list endpoints.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// cursorPrefix tags cursors so a value from another listing is rejected.
const cursorPrefix = "after:"

// ErrInvalidCursor is returned for a cursor this API did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// PageRequest holds the paging query parameters. Embed it in a list
// request so they bind and validate with the rest of the query.
type PageRequest struct {
	// Cursor is NextCursor from the previous page; empty for the first.
	Cursor string `form:"cursor"`

	Limit int `form:"limit" validate:"omitempty,gte=1,lte=100"`
}

// Size returns the page size with defaults and the ceiling applied.
func (p *PageRequest) Size() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}

	return min(p.Limit, MaxLimit)
}

// After returns the key the page starts after, or zero for the first page.
func (p *PageRequest) After() (int, error) {
	if p.Cursor == "" {
		return 0, nil
	}

	return DecodeCursor(p.Cursor)
}

// Page is one slice of an ordered listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// NewPage builds a page from items fetched with one extra element: the
// extra element only signals that more follow and is dropped. key returns
// the ordering key the next page resumes after.
func NewPage[T any](items []T, size int, key func(T) int) Page[T] {
	page := Page[T]{Items: items}

	if len(items) > size {
		page.Items = items[:size]
		page.HasMore = true
	}

	if page.HasMore && size > 0 {
		page.NextCursor = EncodeCursor(key(page.Items[size-1]))
	}

	return page
}

// EncodeCursor returns the opaque cursor for resuming after key.
func EncodeCursor(key int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(key)))
}

// DecodeCursor returns the key a cursor resumes after.
func DecodeCursor(cursor string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}

	digits, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}

	key, err := strconv.Atoi(digits)
	if err != nil || key <= 0 {
		return 0, ErrInvalidCursor
	}

	return key, nil
}
