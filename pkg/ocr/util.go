package ocr

import (
	"encoding/json"
	"strings"
)

// NormalizeText collapses whitespace and line breaks into single spaces.
func NormalizeText(t string) string {
	return strings.Join(strings.Fields(t), " ")
}

// flattenMessage turns an OCR.Space message field, which is either a string or
// a list of strings, into a single string.
func flattenMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := list[:0]
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				parts = append(parts, item)
			}
		}
		return strings.Join(parts, "; ")
	}
	return strings.TrimSpace(string(raw))
}
