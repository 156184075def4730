package acl

import (
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"slices"

	"github.com/jsamuelsen/quote-manager/internal/adapters/clients"
	"github.com/jsamuelsen/quote-manager/internal/domain"
)

// feedError is an error body in either the nested {"error":{...}} or the
// flat {"code","message"} form.
type feedError struct {
	Nested struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *feedError) message() string {
	if e.Nested.Message != "" {
		return e.Nested.Message
	}

	return e.Message
}

// firstDetail returns the alphabetically first field detail, if any.
func (e *feedError) firstDetail() (field, msg string, ok bool) {
	if len(e.Nested.Details) == 0 {
		return "", "", false
	}

	field = slices.Sorted(maps.Keys(e.Nested.Details))[0]

	return field, e.Nested.Details[field], true
}

// readFeedError decodes an error body. It returns nil for bodies that are
// empty, not JSON, or carry neither a code nor a message.
func readFeedError(body io.Reader) *feedError {
	if body == nil {
		return nil
	}

	var fe feedError
	if err := json.NewDecoder(body).Decode(&fe); err != nil {
		return nil
	}

	if fe.Nested.Code == "" && fe.Code == "" && fe.message() == "" {
		return nil
	}

	return &fe
}

// statusError converts a non-2xx answer for path into a domain error.
func statusError(service, path string, status int, body io.Reader) error {
	fe := readFeedError(body)

	msg := http.StatusText(status)
	if fe != nil && fe.message() != "" {
		msg = fe.message()
	}

	switch {
	case status == http.StatusNotFound:
		return domain.NewNotFoundError(service, path)

	case status == http.StatusConflict:
		return domain.NewConflictError(service, msg)

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewUnavailableError(service, "request refused: "+msg)

	case status == http.StatusTooManyRequests:
		return domain.NewUnavailableError(service, "rate limit exceeded")

	case status >= http.StatusInternalServerError:
		return domain.NewUnavailableError(service, msg)

	default:
		if fe != nil {
			if field, detail, ok := fe.firstDetail(); ok {
				return domain.NewValidationError(field, detail)
			}
		}

		return domain.NewValidationError("", msg)
	}
}

// clientError converts a failure that produced no response at all.
func clientError(service, operation string, err error) error {
	if errors.Is(err, clients.ErrCircuitOpen) {
		return domain.NewUnavailableError(service, "circuit breaker open during "+operation)
	}

	return domain.NewUnavailableError(service, operation+" failed: "+err.Error())
}
