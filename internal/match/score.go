package match

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/desertthunder/qsync/internal/models"
)

// Empirically tuned acceptance thresholds. The values were carried over from
// production tuning without a documented derivation; adjust only with
// domain-expert review, never silently.
const (
	// ScorePrimaryAccept gates the primary metadata search.
	ScorePrimaryAccept = 78.0
	// ScoreAlternativeAccept gates the album-qualified, cleaned-title, and
	// primary-artist-only fallback strategies.
	ScoreAlternativeAccept = 65.0
	// Title-only search: title must be near-certain, artist is a sanity floor.
	ScoreTitleOnlyTitle  = 92.0
	ScoreTitleOnlyArtist = 40.0
	// Artist-focused search: artist must be near-certain, title is looser.
	ScoreArtistFocusedArtist = 85.0
	ScoreArtistFocusedTitle  = 70.0
	// ScoreAlbumAccept gates album matching.
	ScoreAlbumAccept = 70.0

	// Suggestion gates.
	SuggestionMinScore     = 40.0
	SuggestionMinArtist    = 60.0
	SuggestionStrongArtist = 85.0

	// Artist-scoring side-channel floors.
	featuredCrossFloor  = 80.0
	artistInTitleFloor  = 70.0
)

// compilationKeywords flags candidate albums that are likely compilations
// rather than the original release.
var compilationKeywords = []string{
	"greatest hits",
	"best of",
	"the best",
	"collection",
	"anthology",
	"essential",
	"soundtrack",
	"compilation",
	"hits",
}

// ratio is the Levenshtein edit-distance similarity on [0,100].
// Two empty strings are identical; one empty string matches nothing.
func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if lb := len([]rune(b)); lb > maxLen {
		maxLen = lb
	}
	return math.Round((1 - float64(dist)/float64(maxLen)) * 100)
}

// tokenSortRatio compares the two strings with their whitespace tokens
// alphabetically sorted, making the score order-independent.
func tokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// tokenSetRatio compares intersection/union token sets, which scores subset
// containment (e.g. a "feat." credit added on one side) as near-identical.
func tokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var common, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}

	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(base, combinedA)
	if s := ratio(base, combinedB); s > best {
		best = s
	}
	if s := ratio(combinedA, combinedB); s > best {
		best = s
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

// partialRatio slides the shorter string across every equal-length window of
// the longer one and keeps the best ratio, which scores substring
// containment highly.
func partialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return ratio(a, b)
	}
	if len(ra) == len(rb) {
		return ratio(string(ra), string(rb))
	}

	short := string(ra)
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		window := string(rb[i : i+len(ra)])
		if s := ratio(short, window); s > best {
			best = s
			if best == 100 {
				break
			}
		}
	}
	return best
}

// BestFuzzyScore computes four complementary similarity ratios and returns
// their maximum, bounded to [0,100].
func BestFuzzyScore(a, b string) float64 {
	best := ratio(a, b)
	if s := tokenSortRatio(a, b); s > best {
		best = s
	}
	if s := tokenSetRatio(a, b); s > best {
		best = s
	}
	if s := partialRatio(a, b); s > best {
		best = s
	}
	return best
}

// TrackScores holds the component scores of one candidate comparison.
type TrackScores struct {
	Combined float64
	Title    float64
	Artist   float64
}

// ScoreTrack scores a candidate track against a source track.
//
// The artist score is the maximum across several comparison paths, because
// the same artist credit appears in wildly different formats across catalogs
// ("A feat. B" vs "A, B" vs "A & B").
func ScoreTrack(source, candidate models.Track) TrackScores {
	srcTitle := Normalize(source.Title)
	srcArtist := Normalize(source.Artist)
	candTitle := Normalize(candidate.Title)
	candArtist := Normalize(candidate.Artist)

	titleScore := BestFuzzyScore(srcTitle, candTitle)

	artistScore := BestFuzzyScore(srcArtist, candArtist)

	for _, a := range source.AllArtists {
		if s := BestFuzzyScore(Normalize(a), candArtist); s > artistScore {
			artistScore = s
		}
	}

	_, srcFeatured := ExtractFeaturedArtists(source.Artist)
	_, candFeatured := ExtractFeaturedArtists(candidate.Artist)
	for _, sf := range srcFeatured {
		for _, cf := range candFeatured {
			if s := BestFuzzyScore(Normalize(sf), Normalize(cf)); s > featuredCrossFloor && s > artistScore {
				artistScore = s
			}
		}
	}

	// A featured artist often only shows up inside the candidate's title.
	if s := partialRatio(srcArtist, candTitle); s > artistInTitleFloor && s > artistScore {
		artistScore = s
	}

	combined := titleScore*0.5 + artistScore*0.5

	srcAlbum := Normalize(source.Album)
	candAlbum := Normalize(candidate.Album)
	if srcAlbum != "" && candAlbum != "" {
		albumScore := tokenSortRatio(srcAlbum, candAlbum)
		switch {
		case albumScore > 85:
			combined += 8
		case albumScore > 70:
			combined += 4
		}
		if isCompilation(candAlbum) && !isCompilation(srcAlbum) {
			combined -= 5
		}
	}

	return TrackScores{
		Combined: clampScore(combined),
		Title:    titleScore,
		Artist:   artistScore,
	}
}

// ScoreAlbum scores a candidate album against a source album. Albums weight
// title over artist and reward agreement on release year and track count.
func ScoreAlbum(source, candidate models.Album) TrackScores {
	titleScore := BestFuzzyScore(Normalize(source.Title), Normalize(candidate.Title))
	artistScore := BestFuzzyScore(Normalize(source.Artist), Normalize(candidate.Artist))

	combined := titleScore*0.6 + artistScore*0.4

	if source.ReleaseYear != 0 && source.ReleaseYear == candidate.ReleaseYear {
		combined += 10
	}

	if source.TrackCount > 0 && candidate.TrackCount > 0 {
		diff := source.TrackCount - candidate.TrackCount
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff == 0:
			combined += 5
		case diff <= 2:
			combined += 2
		case diff <= 4:
			combined += 1
		}
	}

	return TrackScores{
		Combined: clampScore(combined),
		Title:    titleScore,
		Artist:   artistScore,
	}
}

func isCompilation(normalizedAlbum string) bool {
	for _, kw := range compilationKeywords {
		if strings.Contains(normalizedAlbum, kw) {
			return true
		}
	}
	return false
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// DurationToleranceMS returns the acceptable duration difference for a track
// of the given length. The tolerance scales up for long tracks to avoid
// false negatives on classical and live recordings, and stays tight for
// short tracks where near-identical candidates abound.
func DurationToleranceMS(durationMS int) int {
	switch {
	case durationMS < 2*60*1000:
		return 3000
	case durationMS < 4*60*1000:
		return 5000
	case durationMS < 8*60*1000:
		return 10000
	default:
		return 30000
	}
}

// durationDiff returns the absolute duration difference in milliseconds.
func durationDiff(a, b models.Track) int {
	d := a.DurationMS - b.DurationMS
	if d < 0 {
		return -d
	}
	return d
}
