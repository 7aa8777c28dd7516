// Package trace captures per-request debugging records: the translated
// payloads, the stored messages, and the outcome of one bridge request,
// sanitized so the capture never holds credentials or unbounded content.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Content modes controlling how content-bearing strings are captured.
const (
	ContentModeNone     = "none"
	ContentModeTruncate = "truncate"
	ContentModeFull     = "full"
)

// hardStringCap bounds any captured string regardless of mode.
const hardStringCap = 1_000_000

const redactedPlaceholder = "[REDACTED]"

// secretKeys are object keys whose values are always replaced, compared
// case-insensitively.
var secretKeys = map[string]bool{
	"authorization":      true,
	"x-api-key":          true,
	"api_key":            true,
	"openrouter_api_key": true,
	"token":              true,
	"access_token":       true,
	"password":           true,
	"secret":             true,
}

// contentKeys mark fields that carry model or user content and follow the
// configured content mode instead of the plain length cap.
var contentKeys = map[string]bool{
	"content":   true,
	"arguments": true,
	"output":    true,
	"text":      true,
	"data":      true,
}

// SanitizeConfig controls how much content a trace record retains.
type SanitizeConfig struct {
	// ContentMode is none, truncate, or full. Unknown values behave like
	// truncate.
	ContentMode string
	// MaxChars caps content-bearing strings in truncate mode and all other
	// strings in every mode.
	MaxChars int
	// RedactSecrets replaces values under credential-like keys.
	RedactSecrets bool
}

// DefaultSanitizeConfig keeps prefixes of content and redacts credentials.
func DefaultSanitizeConfig() SanitizeConfig {
	return SanitizeConfig{
		ContentMode:   ContentModeTruncate,
		MaxChars:      4000,
		RedactSecrets: true,
	}
}

// Sanitize walks a decoded JSON value and returns a copy safe to persist:
// secret keys are redacted and strings are digested or truncated per the
// config. The input is not modified.
func Sanitize(value any, cfg SanitizeConfig) any {
	return sanitizeValue(value, cfg, "")
}

func sanitizeValue(value any, cfg SanitizeConfig, parentKey string) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return sanitizeString(v, cfg, parentKey)
	case bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item, cfg, parentKey)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			lower := strings.ToLower(key)
			if cfg.RedactSecrets && secretKeys[lower] {
				out[key] = redactedPlaceholder
				continue
			}
			out[key] = sanitizeValue(item, cfg, lower)
		}
		return out
	default:
		return sanitizeString(fmt.Sprintf("%v", v), cfg, parentKey)
	}
}

func sanitizeString(s string, cfg SanitizeConfig, parentKey string) any {
	if s == "" {
		return s
	}

	runes := []rune(s)
	if len(runes) > hardStringCap {
		s = string(runes[:hardStringCap]) + fmt.Sprintf("...[TRUNCATED hard_cap=%d]", hardStringCap)
		runes = []rune(s)
	}

	isContent := parentKey != "" && contentKeys[parentKey]
	mode := strings.ToLower(strings.TrimSpace(cfg.ContentMode))
	if mode == "" {
		mode = ContentModeTruncate
	}

	if isContent && mode == ContentModeNone {
		digest := sha256.Sum256([]byte(s))
		return map[string]any{
			"_redacted": true,
			"chars":     len(runes),
			"sha256_16": hex.EncodeToString(digest[:])[:16],
		}
	}

	if (isContent && mode == ContentModeTruncate) || (!isContent && len(runes) > cfg.MaxChars) {
		if cfg.MaxChars > 0 && len(runes) > cfg.MaxChars {
			return string(runes[:cfg.MaxChars]) + fmt.Sprintf("...[TRUNCATED %d chars]", len(runes)-cfg.MaxChars)
		}
		return s
	}

	return s
}
