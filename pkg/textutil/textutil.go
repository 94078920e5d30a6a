// Package textutil holds small string helpers shared by the clients and the store.
package textutil

import "unicode/utf8"

// Clip returns s cut to at most n runes. It never splits a multi-byte rune.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Snippet shortens s to max runes for logs and error messages, marking the cut.
func Snippet(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return Clip(s, max) + "…"
}
