package utils

import "strings"

// NormalizeSecID upper-cases and trims an exchange ticker, dropping any
// board suffix such as "SBER.ME" or "SBER:TQBR".
func NormalizeSecID(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexAny(s, ".:"); i > 0 {
		s = s[:i]
	}
	return s
}

// NormalizeSecIDs normalizes and deduplicates a list of tickers, keeping
// the first-seen order and dropping blanks.
func NormalizeSecIDs(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		n := NormalizeSecID(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
