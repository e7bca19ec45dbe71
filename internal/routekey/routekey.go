// Package routekey derives canonical matching keys from free-text place
// descriptions. Matching never compares raw text, only these keys.
package routekey

import (
	"strings"
	"unicode"
)

// Extract tokenizes a place description into route keys: Latin and Cyrillic
// letters only (digits and punctuation become separators), lowercased, split
// on whitespace, tokens shorter than 2 runes dropped, duplicates removed
// preserving first-seen order.
//
//	"12 мкр дом 45"      -> [мкр дом]
//	"Ош базар"           -> [ош базар]
//	"улица Токтогула 45а" -> [улица токтогула]
func Extract(text string) []string {
	if text == "" {
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Latin, r) || unicode.Is(unicode.Cyrillic, r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var keys []string
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(cleaned) {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keys = append(keys, word)
	}
	return keys
}

// Display formats keys for showing to the user.
func Display(keys []string) string {
	if len(keys) == 0 {
		return "—"
	}
	return strings.Join(keys, ", ")
}

// Canonical returns the space-joined form used for uniqueness comparisons
// and storage.
func Canonical(keys []string) string {
	return strings.Join(keys, " ")
}

// FromCanonical is the inverse of Canonical.
func FromCanonical(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// ValidRoute reports whether both legs produced at least one key. An empty
// leg would trivially satisfy every subset test, so such routes are rejected
// at creation.
func ValidRoute(keysFrom, keysTo []string) bool {
	return len(keysFrom) > 0 && len(keysTo) > 0
}
