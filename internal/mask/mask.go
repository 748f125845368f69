// Package mask scrubs credential-looking material from values before they are
// written to durable audit storage or logs.
package mask

import "regexp"

// Replacement is what masked material is rewritten to.
const Replacement = "***"

// Patterns are matched against string values. Order matters only for
// overlapping matches, where the earlier pattern wins.
var patterns = []*regexp.Regexp{
	// GitHub tokens (classic, fine-grained, app installation).
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`github_pat_[A-Za-z0-9_]{20,}`),
	// Bearer / basic authorization header values.
	regexp.MustCompile(`(?i)(bearer|basic)\s+[A-Za-z0-9._~+/=-]{8,}`),
	// key=value style secrets.
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)(["']?\s*[:=]\s*["']?)[^\s"',}]{4,}`),
}

var keyValuePattern = patterns[3]

// String returns s with credential-looking substrings replaced.
func String(s string) string {
	for _, p := range patterns {
		if p == keyValuePattern {
			s = p.ReplaceAllString(s, "${1}${2}"+Replacement)
			continue
		}
		s = p.ReplaceAllString(s, Replacement)
	}
	return s
}

// Sensitive JSON object keys whose values are masked wholesale.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"authorization": true,
	"password":      true,
	"secret":        true,
	"api_key":       true,
	"apikey":        true,
	"private_key":   true,
	"client_secret": true,
}

// JSONValue walks a decoded JSON value and masks string leaves, replacing the
// whole value for well-known sensitive keys. The input is not mutated.
func JSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if sensitiveKeys[k] {
				out[k] = Replacement
				continue
			}
			out[k] = JSONValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = JSONValue(item)
		}
		return out
	case string:
		return String(val)
	default:
		return v
	}
}
