package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces values that must not reach the log.
const RedactedValue = "[REDACTED]"

// plainKeys are written verbatim: handler metadata, protocol identifiers and
// request bookkeeping. Everything else passed through MaskField is hidden.
var plainKeys = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"reason":     {},
	"component":  {},
	"operation":  {},
	"category":   {},
	"market":     {},
	"events":     {},
	"duration":   {},
	"method":     {},
	"path":       {},
	"status":     {},
	"request_id": {},
}

// addressTail is how many trailing characters of an account survive masking.
const addressTail = 4

// IsAllowlisted reports whether key is logged in plain text.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue hides a non-empty value.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField hides value unless key is a plain key.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// MaskAddress keeps the bech32 prefix and the last characters of an account
// so access lines can be correlated without printing the address.
func MaskAddress(key, addr string) slog.Attr {
	addr = strings.TrimSpace(addr)
	sep := strings.LastIndexByte(addr, '1')
	if sep <= 0 || len(addr)-sep-1 <= addressTail {
		return slog.String(key, MaskValue(addr))
	}
	return slog.String(key, addr[:sep+1]+"..."+addr[len(addr)-addressTail:])
}
