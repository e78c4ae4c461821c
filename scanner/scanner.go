// Package scanner locates cloud-drive share links in free-form text.
//
// Scanning is a pure function of its input: the same text always yields
// the same ordered match list. Besides the URLs themselves, the scanner
// extracts nearby access codes and, for Baidu links, infers a
// human-readable folder name from the text preceding the match.
package scanner

import (
	"regexp"
	"strings"
)

// Provider identifies which drive a share link belongs to.
type Provider string

// The supported providers.
const (
	ProviderQuark Provider = "quark"
	ProviderBaidu Provider = "baidu"
)

// Match is a located share link occurrence.
type Match struct {
	Provider Provider

	// The matched URL exactly as it appears in the text.
	RawURL string

	// Byte offsets of RawURL in the scanned text.
	Start, End int

	// Optional extraction code found in or near the URL (Baidu only;
	// Quark links carry their code in the URL itself).
	Password string

	// Inferred folder name (Baidu only). Empty when no usable
	// candidate was found near the match; callers are expected to
	// substitute a fallback of their own.
	FolderName string
}

// How far back from a match we look for a name candidate.
const nameLookback = 200

// Longest folder name we will produce.
const nameMaxLen = 50

var (
	quarkRe = regexp.MustCompile(`https://pan\.quark\.cn/s/[a-zA-Z0-9]+(?:\?pwd=[a-zA-Z0-9]+)?`)
	baiduRe = regexp.MustCompile(`https?://pan\.baidu\.com/s/[a-zA-Z0-9_\-]+(?:\?pwd=[a-zA-Z0-9]+)?`)

	// Access code surface forms: ?pwd=/&pwd= query params, a localized
	// "extraction code:" label, or a bare 4-character token after
	// whitespace.
	passcodeRe = regexp.MustCompile(`(?:[?&]pwd=|提取码[:：]?\s*|\s+)([a-zA-Z0-9]{4})\b`)

	// Lines consisting solely of boilerplate tokens carry no name.
	boilerplateLineRe = regexp.MustCompile(`(?i)^(百度|链接|提取码|:|：|https?|夸克|pwd|code)*$`)

	// Boilerplate suffix to strip from a candidate line.
	boilerplateTailRe = regexp.MustCompile(`(?i)(百度|链接|提取码|:|：|pwd|夸克).*$`)

	bracketRe = regexp.MustCompile(`[【】\[\]()]`)
	invalidRe = regexp.MustCompile(`[^\x{4e00}-\x{9fa5}a-zA-Z0-9_\-\s]`)
	spacesRe  = regexp.MustCompile(`\s+`)
)

// IsProviderURL reports whether u already points at a recognized
// provider domain.
func IsProviderURL(u string) bool {
	return strings.Contains(u, "pan.quark.cn") || strings.Contains(u, "pan.baidu.com")
}

// Scan returns all share link matches in text, Quark links first, each
// provider's matches in discovery order. Identical raw URLs are
// de-duplicated: only the first occurrence is returned, since a later
// whole-text substitution rewrites every occurrence anyway.
func Scan(text string) []Match {
	var matches []Match
	seen := make(map[string]bool)

	for _, loc := range quarkRe.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		if seen[raw] {
			continue
		}
		seen[raw] = true
		matches = append(matches, Match{
			Provider: ProviderQuark,
			RawURL:   raw,
			Start:    loc[0],
			End:      loc[1],
		})
	}

	for _, loc := range baiduRe.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		if seen[raw] {
			continue
		}
		seen[raw] = true
		matches = append(matches, Match{
			Provider:   ProviderBaidu,
			RawURL:     raw,
			Start:      loc[0],
			End:        loc[1],
			Password:   extractPasscode(text, loc[0], loc[1]),
			FolderName: inferFolderName(text, loc[0]),
		})
	}

	return matches
}

// extractPasscode looks for an access code in the matched URL and the
// remainder of its line.
func extractPasscode(text string, start, end int) string {
	lineEnd := strings.IndexByte(text[end:], '\n')
	if lineEnd == -1 {
		lineEnd = len(text)
	} else {
		lineEnd += end
	}

	m := passcodeRe.FindStringSubmatch(text[start:lineEnd])
	if m == nil {
		return ""
	}
	return m[1]
}

// inferFolderName walks backward through up to nameLookback bytes of
// text preceding the match, line by line, skipping empty and
// boilerplate-only lines, and sanitizes the first usable candidate.
// Returns "" when nothing usable survives.
func inferFolderName(text string, matchStart int) string {
	lookback := matchStart - nameLookback
	if lookback < 0 {
		lookback = 0
	}
	lines := strings.Split(text[lookback:matchStart], "\n")

	var candidate string
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || boilerplateLineRe.MatchString(line) {
			continue
		}
		line = strings.TrimSpace(boilerplateTailRe.ReplaceAllString(line, ""))
		if line != "" {
			candidate = line
			break
		}
	}

	name := SanitizeName(candidate)
	if len([]rune(name)) < 2 {
		return ""
	}
	if runes := []rune(name); len(runes) > nameMaxLen {
		name = string(runes[:nameMaxLen])
	}
	return name
}

// SanitizeName turns an arbitrary name candidate into a string safe to
// use as a drive folder name: bracket-like punctuation becomes spaces,
// anything that is not a CJK ideograph, ASCII letter/digit, underscore,
// hyphen or whitespace is dropped, and whitespace runs are collapsed.
func SanitizeName(name string) string {
	if name == "" {
		return ""
	}
	name = bracketRe.ReplaceAllString(name, " ")
	name = invalidRe.ReplaceAllString(name, "")
	return strings.TrimSpace(spacesRe.ReplaceAllString(name, " "))
}
