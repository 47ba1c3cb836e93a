package util

import (
	"regexp"
	"strings"
)

var (
	reNonAllowed = regexp.MustCompile(`[^a-z0-9\s.]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// NormalizeHeader lowercases a column caption and strips punctuation so
// "Size (in Feet)" and "size in feet" compare equal.
func NormalizeHeader(input string) string {
	s := strings.ToLower(input)
	s = strings.NewReplacer("×", "x", "’", "", "'", "", " ", " ").Replace(s)
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func Tokenize(input string) []string {
	norm := NormalizeHeader(input)
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// SplitLines splits text on newlines and drops blank lines.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
