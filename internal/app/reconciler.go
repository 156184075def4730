package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jsamuelsen/quote-manager/internal/domain"
	"github.com/jsamuelsen/quote-manager/internal/platform/logging"
	"github.com/jsamuelsen/quote-manager/internal/ports"
)

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	// Added is true when at least one unknown record was appended.
	Added bool `json:"added"`

	// Updated is true when at least one local record was replaced.
	Updated bool `json:"updated"`

	AddedCount   int `json:"addedCount"`
	UpdatedCount int `json:"updatedCount"`
	Rejected     int `json:"rejected"`
}

// Changed reports whether the pass mutated the store.
func (r ReconcileResult) Changed() bool {
	return r.Added || r.Updated
}

// Reconciler merges remote batches into the LocalStore using last-write-wins.
type Reconciler struct {
	store    *LocalStore
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewReconciler creates a reconciler for store. notifier may be nil.
func NewReconciler(store *LocalStore, notifier ports.Notifier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Reconcile merges remote into the store.
//
// Records are processed in order. An unknown id is appended. A known id is
// replaced in place when the local copy has no timestamp or the remote copy
// is strictly newer. Records that fail the shape check are skipped.
//
// When anything changed the store is persisted and a single notification is
// emitted. If persisting fails the collection is restored to its state before
// the pass, so a later replay of the same batch merges it again. The whole
// pass runs under the store's write lock.
func (r *Reconciler) Reconcile(ctx context.Context, remote []domain.Quote) (ReconcileResult, error) {
	var result ReconcileResult

	if len(remote) == 0 {
		return result, nil
	}

	logger := logging.FromContextOr(ctx, r.logger)

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rebuildLocked()
	before := cloneQuotes(s.quotes)

	// rollback undoes a partial merge; only the rejects survive it.
	rollback := func(err error) (ReconcileResult, error) {
		s.restoreLocked(before)
		return ReconcileResult{Rejected: result.Rejected}, err
	}

	for _, incoming := range remote {
		if err := validateRemoteQuote(incoming); err != nil {
			result.Rejected++

			logger.WarnContext(ctx, "skipping malformed remote quote",
				slog.Int("id", incoming.IDValue()),
				slog.Any("error", err),
			)

			continue
		}

		pos, known := s.index[incoming.IDValue()]
		if !known {
			if _, err := s.appendLocked(incoming); err != nil {
				return rollback(err)
			}

			result.Added = true
			result.AddedCount++

			continue
		}

		if !incoming.Supersedes(s.quotes[pos]) {
			continue
		}

		if err := s.replaceAtLocked(pos, incoming); err != nil {
			return rollback(err)
		}

		result.Updated = true
		result.UpdatedCount++
	}

	if !result.Changed() {
		logger.DebugContext(ctx, "reconcile found nothing to merge",
			slog.Int("received", len(remote)),
			slog.Int("rejected", result.Rejected),
		)

		return result, nil
	}

	if err := s.saveLocked(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to persist reconciled quotes, merge rolled back", slog.Any("error", err))
		return rollback(err)
	}

	s.refreshCategoriesLocked()

	if r.notifier != nil {
		r.notifier.Notify(SyncMessage(result))
	}

	logger.InfoContext(ctx, "reconciled remote quotes",
		slog.Int("added", result.AddedCount),
		slog.Int("updated", result.UpdatedCount),
		slog.Int("rejected", result.Rejected),
	)

	return result, nil
}

// SyncMessage builds the user-facing summary for a pass that changed data.
func SyncMessage(result ReconcileResult) string {
	parts := []string{"Data synced with server."}

	if result.Updated {
		parts = append(parts, "Conflicts resolved.")
	}

	if result.Added {
		parts = append(parts, "New quotes added.")
	}

	return strings.Join(parts, " ")
}
