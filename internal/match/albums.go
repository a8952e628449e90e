package match

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/models"
)

// fewCandidates triggers the artist-only listing fallback when the primary
// album search returns a sparse result set.
const fewCandidates = 3

// AlbumMatcher resolves one source album to its counterpart in the target
// catalog. Albums have no suggestion path: the outcome is a match or nil.
type AlbumMatcher struct {
	search Searcher
	logger *log.Logger
}

func NewAlbumMatcher(search Searcher, logger *log.Logger) *AlbumMatcher {
	return &AlbumMatcher{search: search, logger: logger}
}

// Match resolves source against the target catalog. codeIndex is an
// optional pre-built UPC→target-id map from a bulk favorites listing.
//
// Errors from the code lookup and the primary search propagate; fallback
// searches swallow their own failures.
func (m *AlbumMatcher) Match(ctx context.Context, source models.Album, codeIndex map[string]string) (*models.AlbumMatch, error) {
	if source.UPC != "" {
		if targetID, ok := codeIndex[source.UPC]; ok {
			return &models.AlbumMatch{
				Album: models.Album{ID: targetID, Title: source.Title, Artist: source.Artist, UPC: source.UPC},
				Type:  models.MatchExact,
				Score: 100,
			}, nil
		}

		found, err := m.search.SearchAlbumByCode(ctx, source.UPC)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return &models.AlbumMatch{Album: *found, Type: models.MatchExact, Score: 100}, nil
		}
	}

	candidates, err := m.search.SearchAlbums(ctx, source.Title, source.Artist)
	if err != nil {
		return nil, err
	}

	if hit := m.bestAlbum(source, candidates, models.MatchFuzzy); hit != nil {
		return hit, nil
	}

	// The original title may carry an edition suffix the target catalog
	// dropped, or vice versa; retry each distinct stripped variant.
	for _, variant := range EditionVariants(source.Title) {
		if variant == source.Title {
			continue
		}
		more, err := m.search.SearchAlbums(ctx, variant, source.Artist)
		if err != nil {
			m.logger.Debug("variant album search failed", "variant", variant, "error", err)
			continue
		}
		if hit := m.bestAlbum(source, more, models.MatchFuzzyVariant); hit != nil {
			return hit, nil
		}
		candidates = append(candidates, more...)
	}

	if len(candidates) < fewCandidates {
		listing, err := m.search.SearchAlbums(ctx, "", source.Artist)
		if err != nil {
			m.logger.Debug("artist album listing failed", "artist", source.Artist, "error", err)
		} else if hit := m.bestAlbum(source, listing, models.MatchFuzzyArtistLS); hit != nil {
			return hit, nil
		}
	}

	return nil, nil
}

func (m *AlbumMatcher) bestAlbum(source models.Album, candidates []models.Album, matchType models.MatchType) *models.AlbumMatch {
	if source.UPC != "" {
		for i := range candidates {
			if candidates[i].UPC == source.UPC {
				return &models.AlbumMatch{Album: candidates[i], Type: models.MatchExact, Score: 100}
			}
		}
	}

	type scored struct {
		album models.Album
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{album: c, score: ScoreAlbum(source, c).Combined})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > 0 && ranked[0].score >= ScoreAlbumAccept {
		return &models.AlbumMatch{Album: ranked[0].album, Type: matchType, Score: ranked[0].score}
	}
	return nil
}
