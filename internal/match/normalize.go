// package match implements cross-catalog track and album matching: string
// normalization, fuzzy similarity scoring, and the staged matcher that
// decides exact, fuzzy, or unmatched-with-suggestions outcomes.
package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	featParenRe  = regexp.MustCompile(`(?i)\s*[(\[]\s*(feat\.?|ft\.?|featuring|with|prod\.?|produced by)[^)\]]*[)\]]`)
	featInlineRe = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring)\s+.+$`)
	// Bracketed release qualifiers that change formatting but not identity.
	editionParenRe     = regexp.MustCompile(`(?i)\s*[(\[][^)\]]*(remaster|remix|version|edit|mix|live|acoustic|radio|single|album|deluxe|bonus|extended|original|anniversary|expanded|mono|stereo|\d{4})[^)\]]*[)\]]`)
	allParenRe         = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)
	thePrefixRe        = regexp.MustCompile(`(?i)^the\s+`)
	nonWordRe          = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	featParenCaptureRe = regexp.MustCompile(`(?i)[(\[]\s*(?:feat\.?|ft\.?|featuring|with)\s+([^)\]]+)[)\]]`)
	featInlineCapRe    = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s+(.+)$`)
)

// localeSpellings unifies locale spelling variants so that catalogs using
// different English conventions still key identically.
var localeSpellings = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\bcolour`), "color"},
	{regexp.MustCompile(`\bfavourite`), "favorite"},
	{regexp.MustCompile(`\btheatre\b`), "theater"},
	{regexp.MustCompile(`\bcentre\b`), "center"},
	{regexp.MustCompile(`\bgrey\b`), "gray"},
	{regexp.MustCompile(`\bharbour\b`), "harbor"},
	{regexp.MustCompile(`\bneighbourhood\b`), "neighborhood"},
	{regexp.MustCompile(`\bjewellery\b`), "jewelry"},
}

// KnownGroups lists collaborative acts whose names contain separator tokens
// but must never be split into primary/featured artists. The enumeration is
// known to be incomplete; extend it rather than special-casing callers.
var KnownGroups = []string{
	"simon & garfunkel",
	"hall & oates",
	"earth, wind & fire",
	"crosby, stills & nash",
	"crosby, stills, nash & young",
	"emerson, lake & palmer",
	"derek & the dominos",
	"ike & tina turner",
	"brooks & dunn",
	"she & him",
	"angus & julia stone",
	"mumford & sons",
	"iron & wine",
	"kool & the gang",
	"big & rich",
	"above & beyond",
}

// stripDiacritics removes combining marks after NFD decomposition, so that
// accented and unaccented spellings compare equal.
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if !unicode.IsMark(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize canonicalizes a title or artist string for comparison: it
// lowercases, strips diacritics, unifies locale spellings, removes featuring
// and edition qualifiers, and collapses whitespace.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	result := strings.ToLower(strings.TrimSpace(s))
	result = stripDiacritics(result)

	for _, sub := range localeSpellings {
		result = sub.re.ReplaceAllString(result, sub.repl)
	}

	result = featParenRe.ReplaceAllString(result, "")
	result = editionParenRe.ReplaceAllString(result, "")
	result = featInlineRe.ReplaceAllString(result, "")

	result = strings.ReplaceAll(result, " & ", " and ")
	result = thePrefixRe.ReplaceAllString(result, "")

	return strings.Join(strings.Fields(result), " ")
}

// NormalizeAggressive strips all remaining bracketed content and non-word
// characters on top of Normalize. The output is only suitable as a fallback
// search key, not as a display value.
func NormalizeAggressive(s string) string {
	if s == "" {
		return ""
	}

	result := Normalize(s)
	result = allParenRe.ReplaceAllString(result, "")
	result = nonWordRe.ReplaceAllString(result, " ")

	return strings.Join(strings.Fields(result), " ")
}

// ExtractFeaturedArtists splits an artist string into the primary act and any
// featured artists. Known collaborative groups are returned whole: their
// separator tokens are part of the act's name, not a feature credit.
func ExtractFeaturedArtists(s string) (primary string, featured []string) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", nil
	}

	lower := strings.ToLower(stripDiacritics(trimmed))
	for _, group := range KnownGroups {
		if strings.Contains(lower, group) {
			return trimmed, nil
		}
	}

	if m := featParenCaptureRe.FindStringSubmatch(trimmed); m != nil {
		primary = strings.TrimSpace(featParenCaptureRe.ReplaceAllString(trimmed, ""))
		return primary, splitArtistList(m[1])
	}

	if m := featInlineCapRe.FindStringSubmatch(trimmed); m != nil {
		primary = strings.TrimSpace(featInlineCapRe.ReplaceAllString(trimmed, ""))
		return primary, splitArtistList(m[1])
	}

	if strings.ContainsAny(trimmed, ",&") {
		parts := splitArtistList(trimmed)
		if len(parts) > 1 {
			return parts[0], parts[1:]
		}
	}

	return trimmed, nil
}

// splitArtistList splits a credit list like "A, B & C" into individual names.
func splitArtistList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '&'
	})

	var artists []string
	for _, f := range fields {
		if name := strings.TrimSpace(f); name != "" {
			artists = append(artists, name)
		}
	}
	return artists
}

// editionKeywords is the closed vocabulary of album edition qualifiers
// recognized by the suffix-stripping strategies.
const editionKeywords = `deluxe|remaster(?:ed)?|expanded|anniversary|live|explicit|clean|mono|stereo|bonus|special|collector'?s?|legacy|reissue|edition|version`

var (
	editionBracketRe    = regexp.MustCompile(`(?i)\s*[(\[][^)\]]*(?:` + editionKeywords + `)[^)\]]*[)\]]`)
	editionHyphenRe     = regexp.MustCompile(`(?i)\s+-\s+[^-]*(?:` + editionKeywords + `)[^-]*$`)
	editionStandaloneRe = regexp.MustCompile(`(?i)\s+(?:` + editionKeywords + `)(?:\s+(?:edition|version))?\s*$`)
)

// StripEditionSuffix removes recognized edition qualifiers (bracketed,
// hyphenated, or trailing) from an album title.
func StripEditionSuffix(title string) string {
	result := editionBracketRe.ReplaceAllString(title, "")
	result = editionHyphenRe.ReplaceAllString(result, "")
	result = editionStandaloneRe.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// EditionVariants returns the original title plus every distinct output of
// the four independent suffix-stripping strategies. Both the original and a
// stripped form may be the one present in the target catalog, so callers
// search all variants rather than a single "best" form.
func EditionVariants(title string) []string {
	candidates := []string{
		title,
		editionBracketRe.ReplaceAllString(title, ""),
		editionHyphenRe.ReplaceAllString(title, ""),
		editionStandaloneRe.ReplaceAllString(title, ""),
		allParenRe.ReplaceAllString(title, ""),
	}

	seen := make(map[string]bool, len(candidates))
	var variants []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, c)
	}
	return variants
}
