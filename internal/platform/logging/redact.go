package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// Values that look like credentials regardless of the key they are logged under.
var (
	jwtValue        = regexp.MustCompile(`^eyJ[\w-]*\.eyJ[\w-]*\.[\w-]*$`)
	authHeaderValue = regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+`)
)

// secretKeys are attribute keys and struct field names that are always masked.
// Remote source headers and OTLP exporter headers end up under these keys.
var secretKeys = []string{
	"password",
	"token",
	"apiKey",
	"api_key",
	"x-api-key",
	"X-Api-Key",
	"authorization",
	"Authorization",
	"cookie",
	"Cookie",
	"credentials",
}

// secretPrefixes mask any key starting with them, e.g. "secret_header".
var secretPrefixes = []string{"secret", "private"}

// NewReplaceAttr returns a slog ReplaceAttr hook that masks credentials.
// extra extends the built-in rules, e.g. masq.WithType[RemoteToken]().
func NewReplaceAttr(extra ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	opts := make([]masq.Option, 0, len(secretKeys)+len(secretPrefixes)+2+len(extra))

	for _, key := range secretKeys {
		opts = append(opts, masq.WithFieldName(key))
	}

	for _, prefix := range secretPrefixes {
		opts = append(opts, masq.WithFieldPrefix(prefix))
	}

	opts = append(opts, masq.WithRegex(jwtValue), masq.WithRegex(authHeaderValue))

	return masq.New(append(opts, extra...)...)
}
