package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-manager/internal/domain"
)

type cliEnv struct {
	configDir string
	dbPath    string
	remoteURL string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"id": 1, "title": "Remote replaces the seed.", "body": "Inspiration"},
			{"id": 200, "title": "Fresh from the server.", "body": "Remote"}
		]`)
	}))
	t.Cleanup(remote.Close)

	dir := t.TempDir()

	return cliEnv{
		configDir: dir,
		dbPath:    filepath.Join(dir, "quotes.db"),
		remoteURL: remote.URL,
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{
		"--config-dir", e.configDir,
		"--profile", "test",
		"--db", e.dbPath,
		"--remote", e.remoteURL,
	}, args...))

	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), err
}

func TestList_SeedsDefaultsOnFirstRun(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "list", "--category", "Engineering")
	require.NoError(t, err)

	assert.Equal(t,
		"#2 [Engineering] Simplicity is prerequisite for reliability.\n"+
			"#4 [Engineering] Talk is cheap. Show me the code.\n",
		out)
}

func TestImportThenExport(t *testing.T) {
	env := newCLIEnv(t)

	importFile := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(importFile, []byte(`[
		{"id": 10, "text": "Imported with an id.", "category": "Testing", "updatedAt": 1700000000000},
		{"text": "Imported without an id.", "category": "Testing"}
	]`), 0o600))

	out, err := env.run(t, "import", importFile)
	require.NoError(t, err)
	assert.Equal(t, "imported 2 quotes, 7 total\n", out)

	exportFile := filepath.Join(t.TempDir(), "export.json")
	_, err = env.run(t, "export", "--out", exportFile)
	require.NoError(t, err)

	data, err := os.ReadFile(exportFile)
	require.NoError(t, err)

	var exported []domain.Quote
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 7)

	want := []domain.Quote{
		domain.Quote{Text: "Imported with an id.", Category: "Testing"}.WithID(10).WithUpdatedAt(1700000000000),
		domain.Quote{Text: "Imported without an id.", Category: "Testing"}.WithID(11),
	}

	if diff := cmp.Diff(want, exported[5:]); diff != "" {
		t.Errorf("exported tail mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_DuplicateIDChangesNothing(t *testing.T) {
	env := newCLIEnv(t)

	importFile := filepath.Join(t.TempDir(), "dup.json")
	require.NoError(t, os.WriteFile(importFile, []byte(`[
		{"text": "Would be fine.", "category": "Testing"},
		{"id": 3, "text": "Collides with a seed.", "category": "Testing"}
	]`), 0o600))

	_, err := env.run(t, "import", importFile)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))

	out, err := env.run(t, "categories")
	require.NoError(t, err)
	assert.NotContains(t, out, "Testing")
}

func TestCategory_SelectionPersists(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "category")
	require.NoError(t, err)
	assert.Equal(t, "all\n", out)

	out, err = env.run(t, "category", "Life")
	require.NoError(t, err)
	assert.Equal(t, "Life\n", out)

	out, err = env.run(t, "random")
	require.NoError(t, err)
	assert.Equal(t, "#3 [Life] Life is what happens when you're busy making other plans.\n", out)

	_, err = env.run(t, "category", "Poetry")
	assert.True(t, domain.IsNotFound(err))
}

func TestAdd(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "add", "Fresh words.", "--category", "Notes")
	require.NoError(t, err)
	assert.Equal(t, "#6 [Notes] Fresh words.\n", out)

	_, err = env.run(t, "add", "No category")
	require.Error(t, err)
}

func TestSync(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "sync")
	require.NoError(t, err)
	assert.Equal(t,
		"Data synced with server. Conflicts resolved. New quotes added. (1 added, 1 updated, 0 rejected)\n",
		out)

	// Fetched records carry the fetch time, so a replay refreshes them
	// but never appends twice.
	out, err = env.run(t, "sync")
	require.NoError(t, err)
	assert.NotContains(t, out, "New quotes added.")

	out, err = env.run(t, "list", "--category", "Remote")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#200 [Remote] Fresh from the server."))
}
