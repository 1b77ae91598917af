package audit

import (
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

// droppedKeys are context keys that carry raw personal data and are removed
// entirely rather than masked.
var droppedKeys = map[string]struct{}{
	"name":       {},
	"full_name":  {},
	"first_name": {},
	"last_name":  {},
	"email":      {},
	"phone":      {},
	"address":    {},
	"payload":    {},
	"free_text":  {},
}

// valuePatterns mask personal data embedded in otherwise-allowed values.
var valuePatterns = []*regexp.Regexp{
	// Email addresses
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	// Phone numbers with separators (7+ digits)
	regexp.MustCompile(`\+?\d[\d\s\-()]{6,}\d`),
}

// redactContext returns a copy of ctx with personal fields dropped and
// embedded personal data masked. The input map is never mutated.
func redactContext(ctx map[string]string) map[string]string {
	if len(ctx) == 0 {
		return nil
	}
	out := make(map[string]string, len(ctx))
	for key, value := range ctx {
		if _, drop := droppedKeys[strings.ToLower(key)]; drop {
			continue
		}
		for _, re := range valuePatterns {
			value = re.ReplaceAllString(value, redactedValue)
		}
		out[key] = value
	}
	return out
}
