// Copyright 2024-2026 Aiku AI

package skypeweb

import (
	"strings"
)

// NormalizeUserID ensures a user id carries the "8:" consumer namespace
// prefix the API expects. Ids that already have a namespace (any "N:"
// prefix) are returned unchanged.
func NormalizeUserID(id string) string {
	if id == "" {
		return id
	}
	if idx := strings.Index(id, ":"); idx > 0 && isDigits(id[:idx]) {
		return id
	}
	return "8:" + id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsGroupConversation reports whether a conversation id names a group
// thread rather than a direct chat.
func IsGroupConversation(id string) bool {
	return strings.HasPrefix(id, "19:")
}

// knownRenditions are CDN view suffixes that may appear in attachment URLs.
// They are all rewritten to the full-size rendition before download.
var knownRenditions = []string{
	"/views/imgt1",
	"/views/imgt1_anim",
	"/views/imgpsh_mobile",
	"/views/thumbnail",
	"/views/original",
}

// NormalizeFileURL rewrites a CDN attachment URL to its full-size rendition
// path. URLs without a views suffix get one appended.
func NormalizeFileURL(url string) string {
	const full = "/views/imgpsh_fullsize"
	for _, r := range knownRenditions {
		if strings.HasSuffix(url, r) {
			return strings.TrimSuffix(url, r) + full
		}
	}
	if strings.Contains(url, "/views/") {
		return url
	}
	return strings.TrimSuffix(url, "/") + full
}
