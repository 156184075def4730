package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-manager/internal/adapters/http/dto"
	"github.com/jsamuelsen/quote-manager/internal/adapters/storage/memory"
	"github.com/jsamuelsen/quote-manager/internal/app"
	"github.com/jsamuelsen/quote-manager/internal/domain"
)

var testNow = time.UnixMilli(1_700_000_000_000)

// newQuoteRouter wires a QuoteHandler over a service seeded with the default quotes.
// The random source always picks the first candidate.
func newQuoteRouter(t *testing.T) (*gin.Engine, *app.QuoteService) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := app.NewQuoteService(app.QuoteServiceConfig{
		Store:       app.NewLocalStore(memory.New(), logger, app.WithRandom(func(int) int { return 0 })),
		Preferences: memory.New(),
		Session:     memory.New(),
		Logger:      logger,
		Now:         func() time.Time { return testNow },
	})

	router := gin.New()
	NewQuoteHandler(svc).RegisterQuoteRoutes(router.Group("/api/v1"))

	return router, svc
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())

	return v
}

func TestToQuoteResponse(t *testing.T) {
	q := domain.Quote{Text: "t", Category: "c"}.WithID(7).WithUpdatedAt(42)

	resp := toQuoteResponse(q)

	assert.Equal(t, 7, resp.ID)
	assert.Equal(t, "t", resp.Text)
	assert.Equal(t, "c", resp.Category)
	require.NotNil(t, resp.UpdatedAt)
	assert.Equal(t, int64(42), *resp.UpdatedAt)

	assert.Nil(t, toQuoteResponse(domain.Quote{Text: "legacy"}).UpdatedAt)
}

func TestQuoteHandler_GetRandomQuote(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantID     int
		wantCode   string
	}{
		{name: "all categories", path: "/api/v1/quotes/random", wantStatus: http.StatusOK, wantID: 1},
		{name: "explicit category", path: "/api/v1/quotes/random?category=Engineering", wantStatus: http.StatusOK, wantID: 2},
		{name: "unknown category", path: "/api/v1/quotes/random?category=Nope", wantStatus: http.StatusNotFound, wantCode: dto.ErrorCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newQuoteRouter(t)

			w := doRequest(router, http.MethodGet, tt.path, "")
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeJSON[dto.ErrorResponse](t, w).Error.Code)
				return
			}

			assert.Equal(t, tt.wantID, decodeJSON[QuoteResponse](t, w).ID)
		})
	}
}

func TestQuoteHandler_GetLastViewed(t *testing.T) {
	router, _ := newQuoteRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/quotes/last", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	doRequest(router, http.MethodGet, "/api/v1/quotes/random?category=Life", "")

	w = doRequest(router, http.MethodGet, "/api/v1/quotes/last", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decodeJSON[QuoteResponse](t, w).ID)
}

func TestQuoteHandler_ListQuotes_Paginates(t *testing.T) {
	router, _ := newQuoteRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/quotes?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	first := decodeJSON[dto.Page[QuoteResponse]](t, w)
	require.Len(t, first.Items, 2)
	assert.Equal(t, 1, first.Items[0].ID)
	assert.Equal(t, 2, first.Items[1].ID)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)

	w = doRequest(router, http.MethodGet, "/api/v1/quotes?limit=2&cursor="+first.NextCursor, "")
	require.Equal(t, http.StatusOK, w.Code)

	second := decodeJSON[dto.Page[QuoteResponse]](t, w)
	require.Len(t, second.Items, 2)
	assert.Equal(t, 3, second.Items[0].ID)

	w = doRequest(router, http.MethodGet, "/api/v1/quotes?limit=2&cursor="+second.NextCursor, "")
	third := decodeJSON[dto.Page[QuoteResponse]](t, w)
	require.Len(t, third.Items, 1)
	assert.False(t, third.HasMore)
	assert.Empty(t, third.NextCursor)
}

func TestQuoteHandler_ListQuotes_Filters(t *testing.T) {
	router, _ := newQuoteRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/quotes?category=Engineering", "")
	require.Equal(t, http.StatusOK, w.Code)

	page := decodeJSON[dto.Page[QuoteResponse]](t, w)
	require.Len(t, page.Items, 2)

	for _, q := range page.Items {
		assert.Equal(t, "Engineering", q.Category)
	}
}

func TestQuoteHandler_ListQuotes_BadInput(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{name: "limit above max", query: "?limit=500", wantCode: dto.ErrorCodeValidation},
		{name: "limit not a number", query: "?limit=abc", wantCode: dto.ErrorCodeBadRequest},
		{name: "garbage cursor", query: "?cursor=not-base64!", wantCode: dto.ErrorCodeValidation},
		{name: "cursor from another listing", query: "?cursor=" + base64.RawURLEncoding.EncodeToString([]byte("page:2")), wantCode: dto.ErrorCodeValidation},
		{name: "cursor for unknown id", query: "?cursor=" + dto.EncodeCursor(999), wantCode: dto.ErrorCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newQuoteRouter(t)

			w := doRequest(router, http.MethodGet, "/api/v1/quotes"+tt.query, "")
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decodeJSON[dto.ErrorResponse](t, w).Error.Code)
		})
	}
}

func TestQuoteHandler_AddQuote(t *testing.T) {
	router, svc := newQuoteRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/quotes", `{"text":"Stay hungry.","category":"Life"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeJSON[QuoteResponse](t, w)
	assert.Equal(t, 6, resp.ID)
	assert.Equal(t, "Stay hungry.", resp.Text)
	require.NotNil(t, resp.UpdatedAt)
	assert.Equal(t, testNow.UnixMilli(), *resp.UpdatedAt)

	assert.Len(t, svc.Categories(t.Context()), 3)
}

func TestQuoteHandler_AddQuote_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCode    string
		wantDetails string
	}{
		{name: "missing category", body: `{"text":"x"}`, wantCode: dto.ErrorCodeValidation, wantDetails: "category"},
		{name: "blank text", body: `{"text":"   ","category":"Life"}`, wantCode: dto.ErrorCodeValidation, wantDetails: "text"},
		{name: "malformed json", body: `{"text":`, wantCode: dto.ErrorCodeBadRequest},
		{name: "wrong type", body: `{"text":1,"category":"Life"}`, wantCode: dto.ErrorCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := newQuoteRouter(t)

			w := doRequest(router, http.MethodPost, "/api/v1/quotes", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			resp := decodeJSON[dto.ErrorResponse](t, w)
			assert.Equal(t, tt.wantCode, resp.Error.Code)

			if tt.wantDetails != "" {
				assert.Contains(t, resp.Error.Details, tt.wantDetails)
			}

			page, err := svc.ListQuotes(t.Context(), app.ListQuery{Limit: 100})
			require.NoError(t, err)
			assert.Len(t, page, 5)
		})
	}
}

func TestQuoteHandler_ImportQuotes(t *testing.T) {
	router, _ := newQuoteRouter(t)

	body := `[{"text":"a","category":"New"},{"id":40,"text":"b","category":"New","updatedAt":5}]`

	w := doRequest(router, http.MethodPost, "/api/v1/quotes/import", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeJSON[ImportResponse](t, w)
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, 7, resp.Total)
	require.Len(t, resp.Quotes, 2)
	assert.Equal(t, 40, resp.Quotes[1].ID)
	require.NotNil(t, resp.Quotes[1].UpdatedAt)
	assert.Equal(t, int64(5), *resp.Quotes[1].UpdatedAt)
}

func TestQuoteHandler_ImportQuotes_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "not an array", body: `{"text":"a"}`, wantStatus: http.StatusBadRequest, wantCode: dto.ErrorCodeBadRequest},
		{name: "empty array", body: `[]`, wantStatus: http.StatusBadRequest, wantCode: dto.ErrorCodeValidation},
		{name: "invalid record", body: `[{"text":"a","category":"x"},{"text":""}]`, wantStatus: http.StatusBadRequest, wantCode: dto.ErrorCodeValidation},
		{name: "duplicate id", body: `[{"id":1,"text":"a","category":"x"}]`, wantStatus: http.StatusConflict, wantCode: dto.ErrorCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := newQuoteRouter(t)

			w := doRequest(router, http.MethodPost, "/api/v1/quotes/import", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decodeJSON[dto.ErrorResponse](t, w).Error.Code)

			page, err := svc.ListQuotes(t.Context(), app.ListQuery{Limit: 100})
			require.NoError(t, err)
			assert.Len(t, page, 5, "a rejected import must not change the collection")
		})
	}
}

func TestQuoteHandler_ExportQuotes(t *testing.T) {
	router, _ := newQuoteRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/quotes/export", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, `attachment; filename="quotes.json"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var exported []domain.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	assert.Equal(t, domain.DefaultQuotes(), exported)
}

func TestQuoteHandler_Categories(t *testing.T) {
	router, _ := newQuoteRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/categories", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeJSON[CategoriesResponse](t, w)
	assert.Equal(t, []string{"Inspiration", "Engineering", "Life"}, resp.Categories)
	assert.Equal(t, app.CategoryAll, resp.Selected)
}

func TestQuoteHandler_SelectedCategory(t *testing.T) {
	router, _ := newQuoteRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/preferences/category", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, app.CategoryAll, decodeJSON[CategoryPreference](t, w).Category)

	w = doRequest(router, http.MethodPut, "/api/v1/preferences/category", `{"category":"Life"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(router, http.MethodGet, "/api/v1/preferences/category", "")
	assert.Equal(t, "Life", decodeJSON[CategoryPreference](t, w).Category)

	// The saved selection drives random picks without a query parameter.
	w = doRequest(router, http.MethodGet, "/api/v1/quotes/random", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Life", decodeJSON[QuoteResponse](t, w).Category)
}

func TestQuoteHandler_PutSelectedCategory_Rejects(t *testing.T) {
	router, _ := newQuoteRouter(t)

	w := doRequest(router, http.MethodPut, "/api/v1/preferences/category", `{"category":"Nope"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodPut, "/api/v1/preferences/category", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondBindError_PayloadTooLarge(t *testing.T) {
	router := gin.New()
	router.POST("/", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 4)

		var req AddQuoteRequest
		if err := dto.BindAndValidate(c, &req); err != nil {
			respondBindError(c, err)
		}
	})

	w := doRequest(router, http.MethodPost, "/", `{"text":"far too long","category":"x"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrorCodePayloadTooLarge, decodeJSON[dto.ErrorResponse](t, w).Error.Code)
}
