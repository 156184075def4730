package domain

import "time"

// DefaultCategory is used for remote records that arrive without a category.
const DefaultCategory = "General"

// Timestamp is a modification time in Unix milliseconds.
// It matches the representation used in exported snapshots.
type Timestamp int64

// NewTimestamp converts t to a Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time returns the timestamp as a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

// Quote is a quotation tracked by the local store.
// This is a domain entity - it has no knowledge of external systems.
type Quote struct {
	// ID identifies the quote. Nil for records that were never assigned one.
	ID *int `json:"id,omitempty"`

	// Text is the quotation itself.
	Text string `json:"text"`

	// Category groups quotes for filtering.
	Category string `json:"category"`

	// UpdatedAt is the last modification time. Nil for legacy records.
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// HasID reports whether the quote carries an identifier.
func (q Quote) HasID() bool {
	return q.ID != nil
}

// IDValue returns the identifier or 0 when absent.
func (q Quote) IDValue() int {
	if q.ID == nil {
		return 0
	}

	return *q.ID
}

// WithID returns a copy of q carrying id.
func (q Quote) WithID(id int) Quote {
	q.ID = &id
	return q
}

// WithUpdatedAt returns a copy of q stamped with ts.
func (q Quote) WithUpdatedAt(ts Timestamp) Quote {
	q.UpdatedAt = &ts
	return q
}

// Supersedes reports whether q should replace local under last-write-wins.
// A local record without a timestamp always loses; otherwise q must be
// strictly newer, which keeps replaying the same record a no-op.
func (q Quote) Supersedes(local Quote) bool {
	if local.UpdatedAt == nil {
		return true
	}

	return q.UpdatedAt != nil && *q.UpdatedAt > *local.UpdatedAt
}

// Clone returns a deep copy so callers cannot alias store internals.
func (q Quote) Clone() Quote {
	if q.ID != nil {
		id := *q.ID
		q.ID = &id
	}

	if q.UpdatedAt != nil {
		ts := *q.UpdatedAt
		q.UpdatedAt = &ts
	}

	return q
}

// DefaultQuotes is the built-in set used when nothing has been persisted yet.
// They predate modification timestamps, so any remote copy replaces them.
func DefaultQuotes() []Quote {
	seed := []Quote{
		{Text: "The best way to predict the future is to invent it.", Category: "Inspiration"},
		{Text: "Simplicity is prerequisite for reliability.", Category: "Engineering"},
		{Text: "Life is what happens when you're busy making other plans.", Category: "Life"},
		{Text: "Talk is cheap. Show me the code.", Category: "Engineering"},
		{Text: "In the middle of difficulty lies opportunity.", Category: "Inspiration"},
	}

	for i := range seed {
		seed[i] = seed[i].WithID(i + 1)
	}

	return seed
}
