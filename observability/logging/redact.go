package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets in log lines.
const RedactedValue = "[REDACTED]"

// plainKeys are logged verbatim. Wallet addresses, action ids and
// transaction hashes are public chain data.
var plainKeys = map[string]bool{
	"account":   true,
	"action":    true,
	"action_id": true,
	"component": true,
	"contract":  true,
	"error":     true,
	"token_id":  true,
	"tx":        true,
}

// MaskField logs value under key, replacing it with RedactedValue unless key
// is known to carry public data. Empty values stay empty so a missing
// setting remains visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) != "" && !plainKeys[strings.ToLower(strings.TrimSpace(key))] {
		value = RedactedValue
	}
	return slog.String(key, value)
}
