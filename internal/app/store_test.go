package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-manager/internal/adapters/storage/memory"
	"github.com/jsamuelsen/quote-manager/internal/domain"
	"github.com/jsamuelsen/quote-manager/internal/mocks"
	"github.com/jsamuelsen/quote-manager/internal/ports"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ts(ms int64) *domain.Timestamp {
	t := domain.Timestamp(ms)
	return &t
}

func quote(id int, text, category string, updatedAt *domain.Timestamp) domain.Quote {
	return domain.Quote{ID: &id, Text: text, Category: category, UpdatedAt: updatedAt}
}

// emptyStore returns a store with no records backed by an in-memory kv.
func emptyStore(t *testing.T) (*LocalStore, *memory.Store) {
	t.Helper()

	kv := memory.New()
	store := NewLocalStore(kv, discardLogger())
	require.NoError(t, store.ReplaceAll(context.Background(), nil))

	return store, kv
}

func TestNewLocalStore_SeedsDefaults(t *testing.T) {
	store := NewLocalStore(memory.New(), nil)

	assert.Equal(t, 5, store.Len())
	assert.Equal(t, []string{"Inspiration", "Engineering", "Life"}, store.Categories())

	pos, ok := store.Position(3)
	require.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestLocalStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("missing snapshot keeps defaults", func(t *testing.T) {
		store := NewLocalStore(memory.New(), discardLogger())

		require.NoError(t, store.Load(ctx))
		assert.Empty(t, cmp.Diff(domain.DefaultQuotes(), store.Snapshot()))
	})

	t.Run("malformed snapshot keeps defaults", func(t *testing.T) {
		kv := memory.New()
		require.NoError(t, kv.Put(ctx, ports.KeyQuotes, `[{"id":1,`))

		store := NewLocalStore(kv, discardLogger())

		require.NoError(t, store.Load(ctx))
		assert.Equal(t, 5, store.Len())
	})

	t.Run("valid snapshot replaces collection and index", func(t *testing.T) {
		kv := memory.New()
		require.NoError(t, kv.Put(ctx, ports.KeyQuotes,
			`[{"id":7,"text":"a","category":"X","updatedAt":100},{"id":9,"text":"b","category":"Y"}]`))

		store := NewLocalStore(kv, discardLogger())
		require.NoError(t, store.Load(ctx))

		want := []domain.Quote{
			quote(7, "a", "X", ts(100)),
			quote(9, "b", "Y", nil),
		}
		assert.Empty(t, cmp.Diff(want, store.Snapshot()))

		pos, ok := store.Position(9)
		require.True(t, ok)
		assert.Equal(t, 1, pos)

		_, ok = store.Position(1)
		assert.False(t, ok)
	})

	t.Run("read failure is returned", func(t *testing.T) {
		kv := mocks.NewMockKeyValueStore(t)
		kv.EXPECT().Get(mock.Anything, ports.KeyQuotes).Return("", false, errors.New("disk gone"))

		store := NewLocalStore(kv, discardLogger())

		err := store.Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk gone")
		assert.Equal(t, 5, store.Len())
	})
}

func TestLocalStore_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()

	store := NewLocalStore(kv, discardLogger())
	_, err := store.Append(domain.Quote{Text: "new", Category: "Z", UpdatedAt: ts(42)})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx))

	reloaded := NewLocalStore(kv, discardLogger())
	require.NoError(t, reloaded.Load(ctx))

	assert.Empty(t, cmp.Diff(store.Snapshot(), reloaded.Snapshot()))
}

func TestLocalStore_Append(t *testing.T) {
	store := NewLocalStore(memory.New(), discardLogger())

	added, err := store.Append(domain.Quote{Text: "t", Category: "C"})
	require.NoError(t, err)
	assert.Equal(t, 6, added.IDValue())

	explicit, err := store.Append(quote(40, "t", "C", nil))
	require.NoError(t, err)
	assert.Equal(t, 40, explicit.IDValue())

	next, err := store.Append(domain.Quote{Text: "t", Category: "C"})
	require.NoError(t, err)
	assert.Equal(t, 41, next.IDValue())

	_, err = store.Append(quote(2, "dup", "C", nil))
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, 8, store.Len())
	assert.Contains(t, store.Categories(), "C")
}

func TestLocalStore_AppendToEmptyStartsAtOne(t *testing.T) {
	store, _ := emptyStore(t)

	added, err := store.Append(domain.Quote{Text: "first", Category: "C"})
	require.NoError(t, err)
	assert.Equal(t, 1, added.IDValue())
}

func TestLocalStore_ReplaceAt(t *testing.T) {
	store := NewLocalStore(memory.New(), discardLogger())

	require.NoError(t, store.ReplaceAt(1, quote(2, "changed", "Engineering", ts(5))))
	assert.Equal(t, "changed", store.Snapshot()[1].Text)

	err := store.ReplaceAt(9, quote(2, "x", "y", nil))
	assert.True(t, domain.IsNotFound(err))

	err = store.ReplaceAt(-1, quote(2, "x", "y", nil))
	assert.True(t, domain.IsNotFound(err))

	err = store.ReplaceAt(0, quote(2, "steal", "y", nil))
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, "The best way to predict the future is to invent it.", store.Snapshot()[0].Text)
}

func TestLocalStore_RebuildIndex(t *testing.T) {
	store := NewLocalStore(memory.New(), discardLogger())

	store.RebuildIndex()

	for id := 1; id <= 5; id++ {
		pos, ok := store.Position(id)
		require.True(t, ok)
		assert.Equal(t, id-1, pos)
	}
}

func TestLocalStore_SnapshotIsACopy(t *testing.T) {
	store := NewLocalStore(memory.New(), discardLogger())

	snap := store.Snapshot()
	snap[0].Text = "mutated"
	*snap[0].ID = 99

	fresh := store.Snapshot()
	assert.NotEqual(t, "mutated", fresh[0].Text)
	assert.Equal(t, 1, fresh[0].IDValue())
}

func TestLocalStore_Filter(t *testing.T) {
	store := NewLocalStore(memory.New(), discardLogger())

	assert.Len(t, store.Filter(""), 5)
	assert.Len(t, store.Filter(CategoryAll), 5)

	engineering := store.Filter("Engineering")
	require.Len(t, engineering, 2)
	assert.Equal(t, 2, engineering[0].IDValue())
	assert.Equal(t, 4, engineering[1].IDValue())

	assert.Empty(t, store.Filter("Unknown"))
}

func TestLocalStore_Random(t *testing.T) {
	store := NewLocalStore(memory.New(), discardLogger(), WithRandom(func(n int) int { return n - 1 }))

	q, err := store.Random("Inspiration")
	require.NoError(t, err)
	assert.Equal(t, 5, q.IDValue())

	q, err = store.Random(CategoryAll)
	require.NoError(t, err)
	assert.Equal(t, 5, q.IDValue())

	_, err = store.Random("Unknown")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestLocalStore_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("appends and persists", func(t *testing.T) {
		kv := memory.New()
		store := NewLocalStore(kv, discardLogger())

		added, err := store.Import(ctx, []domain.Quote{
			{Text: "a", Category: "New"},
			{Text: "b", Category: "New"},
		})
		require.NoError(t, err)
		require.Len(t, added, 2)
		assert.Equal(t, 6, added[0].IDValue())
		assert.Equal(t, 7, added[1].IDValue())

		raw, ok, err := kv.Get(ctx, ports.KeyQuotes)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Contains(t, raw, `"text":"b"`)
	})

	t.Run("invalid record imports nothing", func(t *testing.T) {
		store := NewLocalStore(memory.New(), discardLogger())

		_, err := store.Import(ctx, []domain.Quote{
			{Text: "a", Category: "New"},
			{Text: "  ", Category: "New"},
		})
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
		assert.Contains(t, err.Error(), "record 1")
		assert.Equal(t, 5, store.Len())
	})

	t.Run("duplicate id imports nothing", func(t *testing.T) {
		store := NewLocalStore(memory.New(), discardLogger())

		_, err := store.Import(ctx, []domain.Quote{
			{Text: "a", Category: "New"},
			quote(3, "dup", "New", nil),
		})
		require.Error(t, err)
		assert.True(t, domain.IsConflict(err))
		assert.Equal(t, 5, store.Len())
		assert.NotContains(t, store.Categories(), "New")
	})

	t.Run("save failure rolls back", func(t *testing.T) {
		kv := mocks.NewMockKeyValueStore(t)
		kv.EXPECT().Put(mock.Anything, ports.KeyQuotes, mock.Anything).Return(domain.NewUnavailableError("storage", "read-only"))

		store := NewLocalStore(kv, discardLogger())

		_, err := store.Import(ctx, []domain.Quote{{Text: "a", Category: "New"}})
		require.Error(t, err)
		assert.True(t, domain.IsUnavailable(err))
		assert.Empty(t, cmp.Diff(domain.DefaultQuotes(), store.Snapshot()))
	})
}

func TestLocalStore_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(memory.New(), discardLogger())

	err := store.ReplaceAll(ctx, []domain.Quote{quote(1, "a", "X", nil), quote(1, "b", "X", nil)})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, 5, store.Len())

	err = store.ReplaceAll(ctx, []domain.Quote{quote(1, "", "X", nil)})
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, store.ReplaceAll(ctx, []domain.Quote{quote(10, "a", "X", nil)}))
	assert.Equal(t, []string{"X"}, store.Categories())
}

func TestLocalStore_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()

	source := NewLocalStore(memory.New(), discardLogger())
	_, err := source.Import(ctx, []domain.Quote{{Text: "stamped", Category: "Z", UpdatedAt: ts(77)}})
	require.NoError(t, err)

	exported := source.Snapshot()

	target, _ := emptyStore(t)
	_, err = target.Import(ctx, exported)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(exported, target.Snapshot()))
}
