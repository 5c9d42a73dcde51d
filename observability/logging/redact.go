package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets such as database DSNs and exporter headers.
const RedactedValue = "[REDACTED]"

var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"run":       {},
	"component": {},
	"height":    {},
	"txid":      {},
	"cdpid":     {},
	"pair":      {},
	"addr":      {},
	"driver":    {},
}

// IsPlain reports whether values under key may be logged verbatim.
func IsPlain(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField logs value under key unless the key is unknown, in which case
// a non-empty value is replaced by RedactedValue.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
