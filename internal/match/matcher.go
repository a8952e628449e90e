package match

import (
	"context"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/models"
	"golang.org/x/sync/errgroup"
)

// Searcher is the target-catalog search capability the matchers depend on.
// Implementations are expected to return an empty slice (not an error) when
// a query simply finds nothing.
type Searcher interface {
	SearchTracks(ctx context.Context, title, artist string) ([]models.Track, error)
	SearchTrackByCode(ctx context.Context, code, titleHint, artistHint string) (*models.Track, error)
	SearchAlbums(ctx context.Context, title, artist string) ([]models.Album, error)
	SearchAlbumByCode(ctx context.Context, code string) (*models.Album, error)
}

// MaxSuggestions caps the ranked near-miss list on an unmatched outcome.
const MaxSuggestions = 5

// TrackMatcher resolves one source track to its best counterpart in the
// target catalog: exact code match first, then a primary metadata search,
// then a fan-out of fallback strategies, and finally ranked suggestions.
type TrackMatcher struct {
	search              Searcher
	suggestionThreshold float64
	logger              *log.Logger
}

func NewTrackMatcher(search Searcher, suggestionThreshold float64, logger *log.Logger) *TrackMatcher {
	return &TrackMatcher{
		search:              search,
		suggestionThreshold: suggestionThreshold,
		logger:              logger,
	}
}

// scoredCandidate pairs a candidate with its scores for suggestion ranking.
type scoredCandidate struct {
	track  models.Track
	scores TrackScores
}

// Match resolves source against the target catalog. codeIndex is an optional
// pre-built ISRC→target-id map from a bulk favorites listing; hits there
// resolve without a network call.
//
// Errors from the code lookup and the primary metadata search propagate to
// the caller, since they indicate an auth or availability problem. Failures
// inside individual fallback strategies are swallowed and treated as zero
// candidates from that strategy.
func (m *TrackMatcher) Match(ctx context.Context, source models.Track, codeIndex map[string]string) (models.MatchOutcome, error) {
	if source.ISRC != "" {
		if targetID, ok := codeIndex[source.ISRC]; ok {
			return exactOutcome(models.Track{
				ID:     targetID,
				Title:  source.Title,
				Artist: source.Artist,
				ISRC:   source.ISRC,
			}), nil
		}

		found, err := m.search.SearchTrackByCode(ctx, source.ISRC, source.Title, source.Artist)
		if err != nil {
			return models.MatchOutcome{}, err
		}
		if found != nil {
			return exactOutcome(*found), nil
		}
	}

	seen := make(map[string]scoredCandidate)

	candidates, err := m.search.SearchTracks(ctx, source.Title, source.Artist)
	if err != nil {
		return models.MatchOutcome{}, err
	}

	// The code-search endpoint does not surface every record that carries
	// the code, so every fuzzy candidate is cross-checked against it.
	if hit := findCodeMatch(source, candidates); hit != nil {
		return exactOutcome(*hit), nil
	}

	best, ok := m.bestPrimary(source, candidates, seen)
	if ok {
		return models.MatchOutcome{Matched: &models.Matched{
			Track: best.track,
			Type:  models.MatchFuzzy,
			Score: best.scores.Combined,
		}}, nil
	}

	if matched := m.tryAlternatives(ctx, source, seen); matched != nil {
		return models.MatchOutcome{Matched: matched}, nil
	}

	return models.MatchOutcome{Suggestions: m.rankSuggestions(source, seen)}, nil
}

func exactOutcome(t models.Track) models.MatchOutcome {
	return models.MatchOutcome{Matched: &models.Matched{
		Track: t,
		Type:  models.MatchExact,
		Score: 100,
	}}
}

func findCodeMatch(source models.Track, candidates []models.Track) *models.Track {
	if source.ISRC == "" {
		return nil
	}
	for i := range candidates {
		if candidates[i].ISRC == source.ISRC {
			return &candidates[i]
		}
	}
	return nil
}

// bestPrimary scores every candidate from the primary metadata search and
// accepts the top one when it clears the primary threshold within the
// duration tolerance for the source track's length.
func (m *TrackMatcher) bestPrimary(source models.Track, candidates []models.Track, seen map[string]scoredCandidate) (scoredCandidate, bool) {
	ranked := scoreAll(source, candidates, seen)
	if len(ranked) == 0 {
		return scoredCandidate{}, false
	}

	top := ranked[0]
	if top.scores.Combined >= ScorePrimaryAccept && withinTolerance(source, top.track) {
		return top, true
	}
	return scoredCandidate{}, false
}

func scoreAll(source models.Track, candidates []models.Track, seen map[string]scoredCandidate) []scoredCandidate {
	ranked := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		sc := scoredCandidate{track: c, scores: ScoreTrack(source, c)}
		ranked = append(ranked, sc)
		if prev, ok := seen[c.ID]; !ok || sc.scores.Combined > prev.scores.Combined {
			seen[c.ID] = sc
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].scores.Combined > ranked[j].scores.Combined
	})
	return ranked
}

func withinTolerance(source, candidate models.Track) bool {
	return durationDiff(source, candidate) <= DurationToleranceMS(source.DurationMS)
}

// strategy is one fallback search with its own acceptance rule.
type strategy struct {
	matchType models.MatchType
	run       func(ctx context.Context) ([]models.Track, error)
	accept    func(source models.Track, sc scoredCandidate) bool
}

// tryAlternatives fans the fallback strategies out concurrently, waits for
// all of them, then evaluates results in fixed priority order so the
// strongest strategy wins regardless of which search returned first.
func (m *TrackMatcher) tryAlternatives(ctx context.Context, source models.Track, seen map[string]scoredCandidate) *models.Matched {
	strategies := m.buildStrategies(source)

	results := make([][]models.Track, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		g.Go(func() error {
			tracks, err := s.run(gctx)
			if err != nil {
				m.logger.Debug("fallback search failed", "strategy", s.matchType, "error", err)
				return nil
			}
			results[i] = tracks
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range strategies {
		ranked := scoreAll(source, results[i], seen)
		if hit := findCodeMatch(source, results[i]); hit != nil {
			return &models.Matched{Track: *hit, Type: models.MatchExact, Score: 100}
		}
		for _, sc := range ranked {
			if s.accept(source, sc) {
				return &models.Matched{
					Track: sc.track,
					Type:  s.matchType,
					Score: sc.scores.Combined,
				}
			}
		}
	}
	return nil
}

func (m *TrackMatcher) buildStrategies(source models.Track) []strategy {
	standard := func(src models.Track, sc scoredCandidate) bool {
		return sc.scores.Combined >= ScoreAlternativeAccept && withinTolerance(src, sc.track)
	}

	strategies := []strategy{
		{
			matchType: models.MatchFuzzyAlbum,
			run: func(ctx context.Context) ([]models.Track, error) {
				if source.Album == "" {
					return nil, nil
				}
				return m.search.SearchTracks(ctx, source.Title+" "+source.Album, source.Artist)
			},
			accept: standard,
		},
		{
			matchType: models.MatchFuzzyClean,
			run: func(ctx context.Context) ([]models.Track, error) {
				cleaned := NormalizeAggressive(source.Title)
				if cleaned == "" || cleaned == Normalize(source.Title) {
					return nil, nil
				}
				return m.search.SearchTracks(ctx, cleaned, source.Artist)
			},
			accept: standard,
		},
		{
			matchType: models.MatchFuzzyPrimary,
			run: func(ctx context.Context) ([]models.Track, error) {
				primary, featured := ExtractFeaturedArtists(source.Artist)
				if len(featured) == 0 {
					return nil, nil
				}
				return m.search.SearchTracks(ctx, source.Title, primary)
			},
			accept: standard,
		},
		{
			matchType: models.MatchFuzzyArtist,
			run: func(ctx context.Context) ([]models.Track, error) {
				words := strings.Fields(source.Title)
				if len(words) > 2 {
					words = words[:2]
				}
				return m.search.SearchTracks(ctx, strings.Join(words, " "), source.Artist)
			},
			accept: func(_ models.Track, sc scoredCandidate) bool {
				return sc.scores.Artist >= ScoreArtistFocusedArtist &&
					sc.scores.Title >= ScoreArtistFocusedTitle
			},
		},
		{
			matchType: models.MatchFuzzyTitle,
			run: func(ctx context.Context) ([]models.Track, error) {
				return m.search.SearchTracks(ctx, source.Title, "")
			},
			accept: func(src models.Track, sc scoredCandidate) bool {
				return sc.scores.Title >= ScoreTitleOnlyTitle &&
					sc.scores.Artist >= ScoreTitleOnlyArtist &&
					durationDiff(src, sc.track) <= 3000
			},
		},
	}
	return strategies
}

// rankSuggestions filters and orders the candidates seen across all
// searches into a reviewer-facing near-miss list.
func (m *TrackMatcher) rankSuggestions(source models.Track, seen map[string]scoredCandidate) []models.Suggestion {
	candidates := make([]scoredCandidate, 0, len(seen))
	for _, sc := range seen {
		if sc.scores.Combined < m.suggestionThreshold {
			continue
		}
		if sc.scores.Artist < SuggestionMinArtist {
			continue
		}
		// Below the strong-artist relaxation, require a shared artist token
		// so a same-named song by an unrelated artist is never suggested.
		if sc.scores.Artist < SuggestionStrongArtist && !sharesArtistToken(source, sc.track) {
			continue
		}
		candidates = append(candidates, sc)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].scores.Combined > candidates[j].scores.Combined
	})
	if len(candidates) > MaxSuggestions {
		candidates = candidates[:MaxSuggestions]
	}

	suggestions := make([]models.Suggestion, 0, len(candidates))
	for _, sc := range candidates {
		suggestions = append(suggestions, models.Suggestion{
			Track:          sc.track,
			Score:          sc.scores.Combined,
			TitleScore:     sc.scores.Title,
			ArtistScore:    sc.scores.Artist,
			DurationDiffMS: durationDiff(source, sc.track),
		})
	}
	return suggestions
}

// sharesArtistToken reports whether any whitespace token from the source's
// artist credits also appears in the candidate's artist credit. Every
// collaborating artist is checked, not just the primary.
func sharesArtistToken(source, candidate models.Track) bool {
	candTokens := tokenSet(Normalize(candidate.Artist))
	if len(candTokens) == 0 {
		return false
	}

	sourceArtists := append([]string{source.Artist}, source.AllArtists...)
	for _, a := range sourceArtists {
		for t := range tokenSet(Normalize(a)) {
			if candTokens[t] {
				return true
			}
		}
	}
	return false
}
