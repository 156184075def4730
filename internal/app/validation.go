package app

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jsamuelsen/quote-manager/internal/domain"
)

// quoteValidate checks record shapes before they reach the store.
var quoteValidate = newQuoteValidator()

// localShape is the contract for quotes entered by the user or imported.
type localShape struct {
	Text     string `json:"text"     validate:"notblank"`
	Category string `json:"category" validate:"notblank"`
}

// remoteShape is the contract for records received from the remote source.
// An id-less remote record would be appended again on every pass, so remote
// records must carry an id to be reconciled.
type remoteShape struct {
	ID       *int   `json:"id"       validate:"required"`
	Text     string `json:"text"     validate:"notblank"`
	Category string `json:"category" validate:"notblank"`
}

func newQuoteValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return v
}

func validateLocalQuote(q domain.Quote) error {
	return toDomainValidation(quoteValidate.Struct(localShape{Text: q.Text, Category: q.Category}))
}

func validateRemoteQuote(q domain.Quote) error {
	return toDomainValidation(quoteValidate.Struct(remoteShape{ID: q.ID, Text: q.Text, Category: q.Category}))
}

// toDomainValidation reports the first failing field as a domain.ValidationError.
func toDomainValidation(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.NewValidationError("", err.Error())
	}

	fe := fieldErrs[0]

	return domain.NewValidationErrorWithValue(fe.Field(), "is required", fe.Value())
}
