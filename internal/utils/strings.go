package utils

import "strings"

// ParseCSV parses a comma-separated query value such as ?state=completed,failed.
// Values are trimmed, empty ones dropped and repeats collapsed, keeping the
// first-seen order. Returns nil when nothing remains.
func ParseCSV(s string) []string {
	var (
		values []string
		seen   map[string]struct{}
	)
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' }) {
		v := strings.TrimSpace(field)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		if seen == nil {
			seen = make(map[string]struct{})
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}
