// Package ports holds the interfaces the application layer depends on.
// Adapters implement them and speak only in domain types and domain errors.
package ports

import (
	"context"
	"time"

	"github.com/jsamuelsen/quote-manager/internal/domain"
)

// Storage keys shared by the application layer and the CLI.
const (
	// KeyQuotes holds the ordered quote collection as a JSON array.
	KeyQuotes = "quotes"

	// KeySelectedCategory holds the last category filter chosen by the user.
	KeySelectedCategory = "lastSelectedCategory"

	// KeyLastViewedQuote holds the most recently displayed quote.
	// It lives in session scope and is lost on restart.
	KeyLastViewedQuote = "lastViewedQuote"
)

// KeyValueStore persists string values by key.
type KeyValueStore interface {
	// Get returns the stored value and whether the key exists.
	// A missing key is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key, overwriting any previous value.
	// Returns domain.ErrUnavailable if the backing store cannot be written.
	Put(ctx context.Context, key, value string) error
}

// QuoteSource fetches the authoritative quote set from a remote service.
// Every record of one fetch carries the same fetch-completion timestamp.
type QuoteSource interface {
	// FetchQuotes returns the remote batch in server order.
	// Returns domain.ErrUnavailable if the service is unreachable.
	FetchQuotes(ctx context.Context) ([]domain.Quote, error)
}

// Notifier shows a transient status message to the user.
type Notifier interface {
	// Notify replaces any visible message with msg and restarts its display window.
	Notify(msg string)

	// Current returns the visible message and whether one is showing.
	Current() (Notification, bool)
}

// Notification is a message together with its display window.
type Notification struct {
	Message   string    `json:"message"`
	ShownAt   time.Time `json:"shownAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
