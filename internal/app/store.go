package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/jsamuelsen/quote-manager/internal/domain"
	"github.com/jsamuelsen/quote-manager/internal/ports"
)

// CategoryAll selects every quote when used as a filter.
const CategoryAll = "all"

// LocalStore holds the ordered quote collection and its identifier index.
//
// The collection is the source of truth. The index maps id to position and
// is rebuilt from the collection after every structural change. Records
// without an id are kept but never indexed.
//
// All exported methods are safe for concurrent use.
type LocalStore struct {
	mu         sync.RWMutex
	quotes     []domain.Quote
	index      map[int]int
	categories []string

	kv     ports.KeyValueStore
	logger *slog.Logger
	intn   func(n int) int
}

// LocalStoreOption configures a LocalStore.
type LocalStoreOption func(*LocalStore)

// WithRandom overrides the random source used by Random.
func WithRandom(intn func(n int) int) LocalStoreOption {
	return func(s *LocalStore) {
		s.intn = intn
	}
}

// NewLocalStore creates a store seeded with the built-in default quotes.
// Call Load to replace them with the persisted snapshot.
func NewLocalStore(kv ports.KeyValueStore, logger *slog.Logger, opts ...LocalStoreOption) *LocalStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &LocalStore{
		quotes: domain.DefaultQuotes(),
		kv:     kv,
		logger: logger,
		intn:   rand.IntN,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.rebuildLocked()

	return s
}

// Load replaces the collection with the persisted snapshot.
// A missing or malformed snapshot leaves the current collection in place.
// Only a storage read failure is returned.
func (s *LocalStore) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, ports.KeyQuotes)
	if err != nil {
		return fmt.Errorf("reading %s: %w", ports.KeyQuotes, err)
	}

	if !ok {
		s.logger.InfoContext(ctx, "no persisted quotes, using defaults")
		return nil
	}

	var loaded []domain.Quote
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		s.logger.WarnContext(ctx, "persisted quotes are malformed, keeping defaults",
			slog.Any("error", err),
		)

		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotes = loaded
	s.rebuildLocked()

	s.logger.InfoContext(ctx, "loaded persisted quotes", slog.Int("count", len(loaded)))

	return nil
}

// Save writes the full ordered collection to persistent storage.
func (s *LocalStore) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.saveLocked(ctx)
}

// Append adds q at the end of the collection.
// A quote without an id is assigned max(existing ids)+1.
// An explicit id that is already present returns a conflict error.
// The collection is not persisted; call Save afterwards.
func (s *LocalStore) Append(q domain.Quote) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLocked(q)
}

// ReplaceAt overwrites the record at position, keeping its place in order.
func (s *LocalStore) ReplaceAt(position int, q domain.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaceAtLocked(position, q)
}

// RebuildIndex recomputes the id to position index from the collection.
func (s *LocalStore) RebuildIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rebuildLocked()
}

// Position returns the position of the record with id.
func (s *LocalStore) Position(id int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]

	return pos, ok
}

// Snapshot returns a deep copy of the collection in order.
func (s *LocalStore) Snapshot() []domain.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneQuotes(s.quotes)
}

// Len returns the number of stored quotes.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.quotes)
}

// Categories returns the distinct categories in first-appearance order.
func (s *LocalStore) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.categories))
	copy(out, s.categories)

	return out
}

// Filter returns the quotes in category. An empty category or CategoryAll
// returns the whole collection.
func (s *LocalStore) Filter(category string) []domain.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterLocked(category)
}

// Random returns a random quote from category.
// Returns domain.ErrNotFound when the category has no quotes.
func (s *LocalStore) Random(category string) (domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.filterLocked(category)
	if len(matches) == 0 {
		return domain.Quote{}, domain.NewNotFoundError("quotes in category", category)
	}

	return matches[s.intn(len(matches))], nil
}

// Import appends every record and persists the result, or changes nothing.
// Records are validated first; ids are assigned to records that lack one.
func (s *LocalStore) Import(ctx context.Context, batch []domain.Quote) ([]domain.Quote, error) {
	for i, q := range batch {
		if err := validateLocalQuote(q); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := cloneQuotes(s.quotes)
	added := make([]domain.Quote, 0, len(batch))

	for _, q := range batch {
		stored, err := s.appendLocked(q)
		if err != nil {
			s.restoreLocked(before)
			return nil, err
		}

		added = append(added, stored)
	}

	if err := s.saveLocked(ctx); err != nil {
		s.restoreLocked(before)
		return nil, err
	}

	return added, nil
}

// ReplaceAll swaps the whole collection and persists it.
// Duplicate ids are rejected before anything changes.
func (s *LocalStore) ReplaceAll(ctx context.Context, quotes []domain.Quote) error {
	seen := make(map[int]struct{}, len(quotes))

	for i, q := range quotes {
		if err := validateLocalQuote(q); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}

		if !q.HasID() {
			continue
		}

		if _, dup := seen[q.IDValue()]; dup {
			return domain.NewIDConflictError(q.IDValue(), "duplicate id")
		}

		seen[q.IDValue()] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.quotes
	s.quotes = cloneQuotes(quotes)
	s.rebuildLocked()

	if err := s.saveLocked(ctx); err != nil {
		s.restoreLocked(before)
		return err
	}

	return nil
}

func (s *LocalStore) appendLocked(q domain.Quote) (domain.Quote, error) {
	q = q.Clone()

	if q.HasID() {
		if _, exists := s.index[q.IDValue()]; exists {
			return domain.Quote{}, domain.NewIDConflictError(q.IDValue(), "duplicate id")
		}
	} else {
		q = q.WithID(s.nextIDLocked())
	}

	s.quotes = append(s.quotes, q)
	s.index[q.IDValue()] = len(s.quotes) - 1
	s.refreshCategoriesLocked()

	return q.Clone(), nil
}

func (s *LocalStore) replaceAtLocked(position int, q domain.Quote) error {
	if position < 0 || position >= len(s.quotes) {
		return domain.NewNotFoundError("quote position", strconv.Itoa(position))
	}

	if q.HasID() {
		if pos, exists := s.index[q.IDValue()]; exists && pos != position {
			return domain.NewIDConflictError(q.IDValue(), "id belongs to another record")
		}
	}

	s.quotes[position] = q.Clone()
	s.rebuildLocked()

	return nil
}

func (s *LocalStore) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(s.quotes)
	if err != nil {
		return fmt.Errorf("encoding quotes: %w", err)
	}

	if err := s.kv.Put(ctx, ports.KeyQuotes, string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", ports.KeyQuotes, err)
	}

	return nil
}

func (s *LocalStore) restoreLocked(quotes []domain.Quote) {
	s.quotes = quotes
	s.rebuildLocked()
}

// rebuildLocked recomputes the index and the category list.
// When ids repeat in a loaded snapshot the first occurrence wins.
func (s *LocalStore) rebuildLocked() {
	s.index = make(map[int]int, len(s.quotes))

	for pos, q := range s.quotes {
		if !q.HasID() {
			continue
		}

		if _, exists := s.index[q.IDValue()]; !exists {
			s.index[q.IDValue()] = pos
		}
	}

	s.refreshCategoriesLocked()
}

func (s *LocalStore) refreshCategoriesLocked() {
	seen := make(map[string]struct{})
	s.categories = s.categories[:0]

	for _, q := range s.quotes {
		if _, ok := seen[q.Category]; ok {
			continue
		}

		seen[q.Category] = struct{}{}
		s.categories = append(s.categories, q.Category)
	}
}

func (s *LocalStore) nextIDLocked() int {
	highest := 0

	for _, q := range s.quotes {
		if q.HasID() && q.IDValue() > highest {
			highest = q.IDValue()
		}
	}

	return highest + 1
}

func (s *LocalStore) filterLocked(category string) []domain.Quote {
	if category == "" || category == CategoryAll {
		return cloneQuotes(s.quotes)
	}

	out := make([]domain.Quote, 0)

	for _, q := range s.quotes {
		if q.Category == category {
			out = append(out, q.Clone())
		}
	}

	return out
}

func cloneQuotes(in []domain.Quote) []domain.Quote {
	out := make([]domain.Quote, len(in))
	for i, q := range in {
		out[i] = q.Clone()
	}

	return out
}
