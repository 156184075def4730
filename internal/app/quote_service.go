// Package app contains application services that orchestrate use cases.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen/quote-manager/internal/domain"
	"github.com/jsamuelsen/quote-manager/internal/ports"
)

// Synchronizer runs a reconciliation pass on demand.
type Synchronizer interface {
	SyncNow(ctx context.Context) (ReconcileResult, error)
}

// QuoteServiceConfig contains configuration for the quote service.
type QuoteServiceConfig struct {
	// Store is the in-memory collection. Required.
	Store *LocalStore

	// Preferences persists the selected category. Required.
	Preferences ports.KeyValueStore

	// Session holds the last viewed quote. Required.
	Session ports.KeyValueStore

	// Syncer backs Sync. When nil, Sync reports the remote as unavailable.
	Syncer Synchronizer

	// Notifier backs CurrentNotification. May be nil.
	Notifier ports.Notifier

	Logger *slog.Logger

	// Now stamps manually added quotes. Defaults to time.Now.
	Now func() time.Time
}

// QuoteService orchestrates quote-related use cases.
// It depends on port interfaces, not concrete implementations.
type QuoteService struct {
	store       *LocalStore
	preferences ports.KeyValueStore
	session     ports.KeyValueStore
	syncer      Synchronizer
	notifier    ports.Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewQuoteService creates a new quote service with the provided dependencies.
// Panics if Store, Preferences or Session is nil.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Store == nil {
		panic("QuoteService: Store is required")
	}

	if cfg.Preferences == nil || cfg.Session == nil {
		panic("QuoteService: Preferences and Session are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &QuoteService{
		store:       cfg.Store,
		preferences: cfg.Preferences,
		session:     cfg.Session,
		syncer:      cfg.Syncer,
		notifier:    cfg.Notifier,
		logger:      logger,
		now:         now,
	}
}

// ListQuery selects a page of quotes.
type ListQuery struct {
	// Category filters the collection. Empty or CategoryAll means no filter.
	Category string

	// AfterID resumes after the record with this id. Zero starts at the beginning.
	AfterID int

	// Limit caps the page size.
	Limit int
}

// ImportResult summarises a successful import.
type ImportResult struct {
	Imported int            `json:"imported"`
	Total    int            `json:"total"`
	Quotes   []domain.Quote `json:"quotes"`
}

// RandomQuote picks a random quote from category and remembers it as the
// last viewed quote. An empty category falls back to the saved selection.
func (s *QuoteService) RandomQuote(ctx context.Context, category string) (domain.Quote, error) {
	if category == "" {
		selected, err := s.SelectedCategory(ctx)
		if err != nil {
			return domain.Quote{}, err
		}

		category = selected
	}

	quote, err := s.store.Random(category)
	if err != nil {
		s.logger.InfoContext(ctx, "no quote available", slog.String("category", category))
		return domain.Quote{}, err
	}

	data, err := json.Marshal(quote)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("encoding last viewed quote: %w", err)
	}

	if err := s.session.Put(ctx, ports.KeyLastViewedQuote, string(data)); err != nil {
		// The quote is still returned; only the session bookmark is lost.
		s.logger.WarnContext(ctx, "failed to remember last viewed quote", slog.Any("error", err))
	}

	return quote, nil
}

// LastViewed returns the quote most recently returned by RandomQuote in this session.
func (s *QuoteService) LastViewed(ctx context.Context) (domain.Quote, error) {
	raw, ok, err := s.session.Get(ctx, ports.KeyLastViewedQuote)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("reading last viewed quote: %w", err)
	}

	if !ok {
		return domain.Quote{}, domain.NewNotFoundError("last viewed quote", "")
	}

	var quote domain.Quote
	if err := json.Unmarshal([]byte(raw), &quote); err != nil {
		s.logger.WarnContext(ctx, "last viewed quote is malformed", slog.Any("error", err))
		return domain.Quote{}, domain.NewNotFoundError("last viewed quote", "")
	}

	return quote, nil
}

// ListQuotes returns up to Limit+1 quotes after AfterID in collection order.
// The extra record lets callers detect a following page.
func (s *QuoteService) ListQuotes(ctx context.Context, q ListQuery) ([]domain.Quote, error) {
	if q.Limit <= 0 {
		return nil, domain.NewValidationErrorWithValue("limit", "must be positive", q.Limit)
	}

	quotes := s.store.Filter(q.Category)

	start := 0
	if q.AfterID != 0 {
		start = -1

		for i, quote := range quotes {
			if quote.HasID() && quote.IDValue() == q.AfterID {
				start = i + 1
				break
			}
		}

		if start < 0 {
			return nil, domain.NewValidationErrorWithValue("cursor", "does not match a quote", q.AfterID)
		}
	}

	end := min(start+q.Limit+1, len(quotes))

	s.logger.DebugContext(ctx, "listing quotes",
		slog.String("category", q.Category),
		slog.Int("after_id", q.AfterID),
		slog.Int("returned", end-start),
	)

	return quotes[start:end], nil
}

// Categories returns the distinct categories in first-appearance order.
func (s *QuoteService) Categories(_ context.Context) []string {
	return s.store.Categories()
}

// SelectedCategory returns the saved category filter, CategoryAll when none is saved.
func (s *QuoteService) SelectedCategory(ctx context.Context) (string, error) {
	raw, ok, err := s.preferences.Get(ctx, ports.KeySelectedCategory)
	if err != nil {
		return "", fmt.Errorf("reading selected category: %w", err)
	}

	if !ok || raw == "" {
		return CategoryAll, nil
	}

	return raw, nil
}

// SetSelectedCategory saves the category filter. The category must be
// CategoryAll or one that exists in the store.
func (s *QuoteService) SetSelectedCategory(ctx context.Context, category string) error {
	if category == "" {
		return domain.NewValidationError("category", "is required")
	}

	if category != CategoryAll && !s.hasCategory(category) {
		return domain.NewNotFoundError("category", category)
	}

	if err := s.preferences.Put(ctx, ports.KeySelectedCategory, category); err != nil {
		return fmt.Errorf("saving selected category: %w", err)
	}

	s.logger.InfoContext(ctx, "selected category changed", slog.String("category", category))

	return nil
}

func (s *QuoteService) hasCategory(category string) bool {
	for _, c := range s.store.Categories() {
		if c == category {
			return true
		}
	}

	return false
}

// AddQuote validates, stamps and appends a new quote, then persists the collection.
// Nothing changes when validation or persistence fails.
func (s *QuoteService) AddQuote(ctx context.Context, text, category string) (domain.Quote, error) {
	q := domain.Quote{Text: text, Category: category}

	if err := validateLocalQuote(q); err != nil {
		return domain.Quote{}, err
	}

	q = q.WithUpdatedAt(domain.NewTimestamp(s.now()))

	added, err := s.store.Import(ctx, []domain.Quote{q})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to add quote", slog.Any("error", err))
		return domain.Quote{}, err
	}

	s.logger.InfoContext(ctx, "quote added",
		slog.Int("quote_id", added[0].IDValue()),
		slog.String("category", category),
	)

	return added[0], nil
}

// ImportQuotes appends every record in batch or none of them.
// Records keep explicit ids; records without one are numbered after the current maximum.
func (s *QuoteService) ImportQuotes(ctx context.Context, batch []domain.Quote) (ImportResult, error) {
	op := Operation[[]domain.Quote, []domain.Quote, ImportResult]{
		Name: "import_quotes",
		Validate: func(_ context.Context, in []domain.Quote) error {
			if len(in) == 0 {
				return domain.NewValidationError("quotes", "must contain at least one quote")
			}

			for i, q := range in {
				if err := validateLocalQuote(q); err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
			}

			return nil
		},
		Perform: func(ctx context.Context, in []domain.Quote) ([]domain.Quote, error) {
			return s.store.Import(ctx, in)
		},
		Verify: func(_ context.Context, in []domain.Quote, added []domain.Quote) error {
			if len(added) != len(in) {
				return fmt.Errorf("imported %d of %d records", len(added), len(in))
			}

			for _, q := range added {
				if _, ok := s.store.Position(q.IDValue()); !ok {
					return fmt.Errorf("imported quote %d is not indexed", q.IDValue())
				}
			}

			return nil
		},
		Respond: func(_ context.Context, _ []domain.Quote, added []domain.Quote) (ImportResult, error) {
			return ImportResult{
				Imported: len(added),
				Total:    s.store.Len(),
				Quotes:   added,
			}, nil
		},
	}

	return Execute(ctx, s.logger, op, batch)
}

// ExportQuotes serialises the full ordered collection as indented JSON.
func (s *QuoteService) ExportQuotes(ctx context.Context) ([]byte, error) {
	quotes := s.store.Snapshot()

	data, err := json.MarshalIndent(quotes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}

	s.logger.InfoContext(ctx, "quotes exported", slog.Int("count", len(quotes)))

	return data, nil
}

// Sync runs a reconciliation pass, joining one already in flight.
func (s *QuoteService) Sync(ctx context.Context) (ReconcileResult, error) {
	if s.syncer == nil {
		return ReconcileResult{}, domain.NewUnavailableError("sync", "remote sync is disabled")
	}

	return s.syncer.SyncNow(ctx)
}

// CurrentNotification returns the visible sync notification, if any.
func (s *QuoteService) CurrentNotification() (ports.Notification, bool) {
	if s.notifier == nil {
		return ports.Notification{}, false
	}

	return s.notifier.Current()
}
