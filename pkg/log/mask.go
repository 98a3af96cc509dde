package log

import (
	"log/slog"
	"regexp"
	"strings"
)

var maskRe = regexp.MustCompile(`^(\W*)(.).*(.)$`)

// MaskUsername hides everything but the first and last character of each
// part of a username or email address.
func MaskUsername(username string) string {
	parts := strings.Split(username, "@")
	for i, p := range parts {
		parts[i] = maskRe.ReplaceAllString(p, "${1}${2}***${3}")
	}
	return strings.Join(parts, "@")
}

// Masked returns a string attribute with the value masked by MaskUsername.
func Masked(key, value string) slog.Attr {
	return slog.String(key, MaskUsername(value))
}
