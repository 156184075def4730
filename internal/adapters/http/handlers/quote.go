package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quote-manager/internal/adapters/http/dto"
	"github.com/jsamuelsen/quote-manager/internal/app"
	"github.com/jsamuelsen/quote-manager/internal/domain"
)

// ExportFilename is the attachment name used by the export endpoint.
const ExportFilename = "quotes.json"

// QuoteHandler handles quote-related HTTP endpoints.
type QuoteHandler struct {
	service *app.QuoteService
}

// NewQuoteHandler creates a new quote handler.
func NewQuoteHandler(service *app.QuoteService) *QuoteHandler {
	return &QuoteHandler{
		service: service,
	}
}

// QuoteResponse is the HTTP response structure for a quote.
type QuoteResponse struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	Category  string `json:"category"`
	UpdatedAt *int64 `json:"updatedAt,omitempty"`
}

// toQuoteResponse converts a domain Quote to an HTTP response.
func toQuoteResponse(q domain.Quote) QuoteResponse {
	resp := QuoteResponse{
		ID:       q.IDValue(),
		Text:     q.Text,
		Category: q.Category,
	}

	if q.UpdatedAt != nil {
		ms := int64(*q.UpdatedAt)
		resp.UpdatedAt = &ms
	}

	return resp
}

func toQuoteResponses(quotes []domain.Quote) []QuoteResponse {
	out := make([]QuoteResponse, len(quotes))
	for i, q := range quotes {
		out[i] = toQuoteResponse(q)
	}

	return out
}

// AddQuoteRequest is the body of POST /api/v1/quotes.
type AddQuoteRequest struct {
	Text     string `json:"text"     validate:"notempty"`
	Category string `json:"category" validate:"notempty"`
}

// ImportQuoteRequest is one element of the POST /api/v1/quotes/import array.
// Field checks happen in the service so errors can name the record index.
type ImportQuoteRequest struct {
	ID        *int   `json:"id,omitempty"`
	Text      string `json:"text"`
	Category  string `json:"category"`
	UpdatedAt *int64 `json:"updatedAt,omitempty"`
}

func (r ImportQuoteRequest) toDomain() domain.Quote {
	q := domain.Quote{ID: r.ID, Text: r.Text, Category: r.Category}
	if r.UpdatedAt != nil {
		q = q.WithUpdatedAt(domain.Timestamp(*r.UpdatedAt))
	}

	return q
}

// ListQuotesRequest holds the query parameters of GET /api/v1/quotes.
type ListQuotesRequest struct {
	dto.PageRequest

	Category string `form:"category"`
}

// CategoriesResponse is the body of GET /api/v1/categories.
type CategoriesResponse struct {
	Categories []string `json:"categories"`
	Selected   string   `json:"selected"`
}

// CategoryPreference is the body of GET and PUT /api/v1/preferences/category.
type CategoryPreference struct {
	Category string `json:"category" validate:"notempty"`
}

// ImportResponse is the body of a successful import.
type ImportResponse struct {
	Imported int             `json:"imported"`
	Total    int             `json:"total"`
	Quotes   []QuoteResponse `json:"quotes"`
}

// GetRandomQuote handles GET /api/v1/quotes/random.
// The optional category query parameter overrides the saved selection.
//
// @Summary Get a random quote
// @Tags quotes
// @Produce json
// @Param category query string false "Category filter, or all"
// @Success 200 {object} QuoteResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/quotes/random [get]
func (h *QuoteHandler) GetRandomQuote(c *gin.Context) {
	quote, err := h.service.RandomQuote(c.Request.Context(), c.Query("category"))
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuoteResponse(quote))
}

// GetLastViewed handles GET /api/v1/quotes/last.
//
// @Summary Get the last viewed quote
// @Tags quotes
// @Produce json
// @Success 200 {object} QuoteResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/quotes/last [get]
func (h *QuoteHandler) GetLastViewed(c *gin.Context) {
	quote, err := h.service.LastViewed(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuoteResponse(quote))
}

// ListQuotes handles GET /api/v1/quotes with cursor pagination.
//
// @Summary List quotes
// @Tags quotes
// @Produce json
// @Param category query string false "Category filter, or all"
// @Param limit query int false "Page size (1-100)"
// @Param cursor query string false "Cursor from a previous page"
// @Success 200 {object} dto.Page[QuoteResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	var req ListQuotesRequest

	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	afterID, err := req.After()
	if err != nil {
		dto.HandleError(c, domain.NewValidationError("cursor", "is malformed"))
		return
	}

	limit := req.Size()

	quotes, err := h.service.ListQuotes(c.Request.Context(), app.ListQuery{
		Category: req.Category,
		AfterID:  afterID,
		Limit:    limit,
	})
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	page := dto.NewPage(toQuoteResponses(quotes), limit, func(q QuoteResponse) int { return q.ID })

	c.JSON(http.StatusOK, page)
}

// AddQuote handles POST /api/v1/quotes.
//
// @Summary Add a quote
// @Tags quotes
// @Accept json
// @Produce json
// @Param quote body AddQuoteRequest true "New quote"
// @Success 201 {object} QuoteResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/quotes [post]
func (h *QuoteHandler) AddQuote(c *gin.Context) {
	var req AddQuoteRequest

	if err := dto.BindAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	quote, err := h.service.AddQuote(c.Request.Context(), req.Text, req.Category)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toQuoteResponse(quote))
}

// ImportQuotes handles POST /api/v1/quotes/import.
// The body is a JSON array; every record is imported or none is.
//
// @Summary Import quotes
// @Tags quotes
// @Accept json
// @Produce json
// @Param quotes body []ImportQuoteRequest true "Quotes to append"
// @Success 201 {object} ImportResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/quotes/import [post]
func (h *QuoteHandler) ImportQuotes(c *gin.Context) {
	var records []ImportQuoteRequest

	if err := c.ShouldBindJSON(&records); err != nil {
		respondBindError(c, err)
		return
	}

	batch := make([]domain.Quote, len(records))
	for i, r := range records {
		batch[i] = r.toDomain()
	}

	result, err := h.service.ImportQuotes(c.Request.Context(), batch)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ImportResponse{
		Imported: result.Imported,
		Total:    result.Total,
		Quotes:   toQuoteResponses(result.Quotes),
	})
}

// ExportQuotes handles GET /api/v1/quotes/export.
// The full collection is returned as a downloadable quotes.json.
//
// @Summary Export quotes
// @Tags quotes
// @Produce json
// @Success 200 {array} QuoteResponse
// @Router /api/v1/quotes/export [get]
func (h *QuoteHandler) ExportQuotes(c *gin.Context) {
	data, err := h.service.ExportQuotes(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	c.Data(http.StatusOK, "application/json", data)
}

// GetCategories handles GET /api/v1/categories.
//
// @Summary List categories
// @Tags categories
// @Produce json
// @Success 200 {object} CategoriesResponse
// @Router /api/v1/categories [get]
func (h *QuoteHandler) GetCategories(c *gin.Context) {
	ctx := c.Request.Context()

	selected, err := h.service.SelectedCategory(ctx)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, CategoriesResponse{
		Categories: h.service.Categories(ctx),
		Selected:   selected,
	})
}

// GetSelectedCategory handles GET /api/v1/preferences/category.
func (h *QuoteHandler) GetSelectedCategory(c *gin.Context) {
	selected, err := h.service.SelectedCategory(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, CategoryPreference{Category: selected})
}

// PutSelectedCategory handles PUT /api/v1/preferences/category.
//
// @Summary Save the category filter
// @Tags categories
// @Accept json
// @Produce json
// @Param preference body CategoryPreference true "Category, or all"
// @Success 200 {object} CategoryPreference
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/preferences/category [put]
func (h *QuoteHandler) PutSelectedCategory(c *gin.Context) {
	var req CategoryPreference

	if err := dto.BindAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.service.SetSelectedCategory(c.Request.Context(), req.Category); err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// RegisterQuoteRoutes registers quote and category routes on the given router group.
func (h *QuoteHandler) RegisterQuoteRoutes(rg *gin.RouterGroup) {
	quotes := rg.Group("/quotes")
	quotes.GET("", h.ListQuotes)
	quotes.POST("", h.AddQuote)
	quotes.GET("/random", h.GetRandomQuote)
	quotes.GET("/last", h.GetLastViewed)
	quotes.POST("/import", h.ImportQuotes)
	quotes.GET("/export", h.ExportQuotes)

	rg.GET("/categories", h.GetCategories)
	rg.GET("/preferences/category", h.GetSelectedCategory)
	rg.PUT("/preferences/category", h.PutSelectedCategory)
}

// respondBindError writes a 400 for a request that failed binding or tag validation.
func respondBindError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		dto.HandleErrorCode(c, dto.ErrorCodePayloadTooLarge, "request body is too large")
		return
	}

	var fields dto.FieldErrors
	if errors.As(err, &fields) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithDetails(
			dto.ErrorCodeValidation,
			"request validation failed",
			fields,
		).WithTraceID(dto.GetTraceID(c)))

		return
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &syntaxErr):
		dto.HandleErrorCode(c, dto.ErrorCodeBadRequest, "request body is not valid JSON")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		dto.HandleErrorCode(c, dto.ErrorCodeBadRequest, "field "+typeErr.Field+" has the wrong type")
	case errors.As(err, &typeErr):
		dto.HandleErrorCode(c, dto.ErrorCodeBadRequest, "request body has the wrong shape")
	default:
		dto.HandleErrorCode(c, dto.ErrorCodeBadRequest, err.Error())
	}
}
