package verifier

import (
	"regexp"
	"strings"
)

var (
	tweetIDPattern = regexp.MustCompile(`/status(?:es)?/(\d+)`)
	tokenPattern   = regexp.MustCompile(`[#@][A-Za-z0-9_]+`)
)

// parseTweetID extracts the numeric tweet ID from a post URL. A bare
// numeric ID is accepted as-is.
func parseTweetID(postURL string) string {
	postURL = strings.TrimSpace(postURL)
	if m := tweetIDPattern.FindStringSubmatch(postURL); m != nil {
		return m[1]
	}
	if postURL != "" && strings.IndexFunc(postURL, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
		return postURL
	}
	return ""
}

// extractTokens pulls lower-cased #hashtag and @mention tokens out of the
// tweet text, without their sigils.
func extractTokens(text string) (hashtags, mentions map[string]bool) {
	hashtags = map[string]bool{}
	mentions = map[string]bool{}
	for _, tok := range tokenPattern.FindAllString(text, -1) {
		body := strings.ToLower(tok[1:])
		switch tok[0] {
		case '#':
			hashtags[body] = true
		case '@':
			mentions[body] = true
		}
	}
	return hashtags, mentions
}

// diffRequired splits the required set into found and missing against the
// tokens present in the text. Required entries are compared without sigils,
// case-insensitively.
func diffRequired(required []string, present map[string]bool, sigil string) (found, missing []string) {
	for _, want := range required {
		key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(want), sigil))
		if key == "" {
			continue
		}
		if present[key] {
			found = append(found, key)
		} else {
			missing = append(missing, key)
		}
	}
	return found, missing
}
