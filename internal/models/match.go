package models

// MatchType identifies how a match was established.
type MatchType string

const (
	MatchExact         MatchType = "exact"                // ISRC/UPC code match, always score 100
	MatchFuzzy         MatchType = "fuzzy"                // Primary metadata search
	MatchFuzzyAlbum    MatchType = "fuzzy_album"          // Album-qualified search
	MatchFuzzyClean    MatchType = "fuzzy_clean"          // Aggressively cleaned title search
	MatchFuzzyPrimary  MatchType = "fuzzy_primary_artist" // Featured artists stripped
	MatchFuzzyArtist   MatchType = "fuzzy_artist"         // Artist-focused search
	MatchFuzzyTitle    MatchType = "fuzzy_title"          // Title-only search
	MatchFuzzyVariant  MatchType = "fuzzy_variant"        // Edition-suffix variant (albums)
	MatchFuzzyArtistLS MatchType = "fuzzy_artist_listing" // Artist-only listing fallback (albums)
)

// IsExact reports whether the match came from an exact ISRC/UPC lookup.
func (m MatchType) IsExact() bool { return m == MatchExact }

// Matched describes a successful match against the target catalog.
type Matched struct {
	Track Track
	Type  MatchType
	Score float64 // [0,100]; always 100 for exact matches
}

// Suggestion is a ranked near-miss candidate offered to a human reviewer
// when no automatic match clears threshold.
type Suggestion struct {
	Track          Track   `json:"track"`
	Score          float64 `json:"score"`
	TitleScore     float64 `json:"title_score"`
	ArtistScore    float64 `json:"artist_score"`
	DurationDiffMS int     `json:"duration_diff_ms"`
}

// MatchOutcome is the result of one track match attempt.
//
// Exactly one of Matched or Suggestions is populated: a matched outcome
// carries no suggestions, and an unmatched outcome carries up to five.
type MatchOutcome struct {
	Matched     *Matched
	Suggestions []Suggestion
}

// IsMatch reports whether the outcome carries a match.
func (o MatchOutcome) IsMatch() bool { return o.Matched != nil }

// AlbumMatch describes a successful album match against the target catalog.
type AlbumMatch struct {
	Album Album
	Type  MatchType
	Score float64
}
