package match

import (
	"testing"

	"github.com/desertthunder/qsync/internal/models"
)

func TestBestFuzzyScoreIdentity(t *testing.T) {
	tt := []string{
		"blinding lights",
		"the dark side of the moon",
		"a",
		"song with (parens) and, punctuation!",
	}

	for _, s := range tt {
		if got := BestFuzzyScore(s, s); got != 100 {
			t.Errorf("BestFuzzyScore(%q, %q) = %v, want 100", s, s, got)
		}
	}
}

func TestBestFuzzyScoreSymmetryAndBounds(t *testing.T) {
	pairs := [][2]string{
		{"blinding lights", "blinding lights remix"},
		{"lights blinding", "blinding lights"},
		{"yesterday", "tomorrow never knows"},
		{"", "something"},
		{"abc", ""},
		{"", ""},
	}

	for _, p := range pairs {
		ab := BestFuzzyScore(p[0], p[1])
		ba := BestFuzzyScore(p[1], p[0])
		if ab != ba {
			t.Errorf("BestFuzzyScore(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 100 {
			t.Errorf("BestFuzzyScore(%q, %q) = %v, out of [0,100]", p[0], p[1], ab)
		}
	}
}

func TestBestFuzzyScoreEmptyCases(t *testing.T) {
	if got := BestFuzzyScore("", ""); got != 100 {
		t.Errorf("empty vs empty = %v, want 100", got)
	}
	if got := BestFuzzyScore("something", ""); got != 0 {
		t.Errorf("nonempty vs empty = %v, want 0", got)
	}
}

func TestBestFuzzyScoreTokenHandling(t *testing.T) {
	tt := []struct {
		name string
		a, b string
		min  float64
	}{
		{name: "token order ignored", a: "lights blinding", b: "blinding lights", min: 100},
		{name: "subset containment", a: "blinding lights", b: "blinding lights feat someone", min: 95},
		{name: "substring containment", a: "lights", b: "blinding lights extended", min: 95},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := BestFuzzyScore(tc.a, tc.b); got < tc.min {
				t.Errorf("BestFuzzyScore(%q, %q) = %v, want >= %v", tc.a, tc.b, got, tc.min)
			}
		})
	}
}

func TestScoreTrack(t *testing.T) {
	tt := []struct {
		name        string
		source      models.Track
		candidate   models.Track
		minCombined float64
		maxCombined float64
	}{
		{
			name:        "identical metadata",
			source:      models.Track{Title: "Blinding Lights", Artist: "The Weeknd"},
			candidate:   models.Track{Title: "Blinding Lights", Artist: "The Weeknd"},
			minCombined: 100,
			maxCombined: 100,
		},
		{
			name:        "different feat formatting",
			source:      models.Track{Title: "Lucid Dreams", Artist: "Juice WRLD (feat. Marshmello)"},
			candidate:   models.Track{Title: "Lucid Dreams", Artist: "Juice WRLD, Marshmello"},
			minCombined: 90,
			maxCombined: 100,
		},
		{
			name:        "collaborating artist credited alone",
			source:      models.Track{Title: "Telephone", Artist: "Lady Gaga", AllArtists: []string{"Lady Gaga", "Beyonce"}},
			candidate:   models.Track{Title: "Telephone", Artist: "Beyonce"},
			minCombined: 95,
			maxCombined: 100,
		},
		{
			name:        "unrelated track scores low",
			source:      models.Track{Title: "Yesterday", Artist: "The Beatles"},
			candidate:   models.Track{Title: "Bohemian Rhapsody", Artist: "Queen"},
			minCombined: 0,
			maxCombined: 40,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreTrack(tc.source, tc.candidate)
			if got.Combined < tc.minCombined || got.Combined > tc.maxCombined {
				t.Errorf("combined = %v, want in [%v, %v]", got.Combined, tc.minCombined, tc.maxCombined)
			}
		})
	}
}

func TestScoreTrackAlbumAdjustment(t *testing.T) {
	source := models.Track{Title: "Creep", Artist: "Radiohead", Album: "Pablo Honey"}
	onAlbum := models.Track{Title: "Creep", Artist: "Radiohead", Album: "Pablo Honey"}
	onCompilation := models.Track{Title: "Creep", Artist: "Radiohead", Album: "Greatest Hits"}

	withAlbum := ScoreTrack(source, onAlbum)
	withComp := ScoreTrack(source, onCompilation)

	if withAlbum.Combined <= withComp.Combined {
		t.Errorf("album agreement %v should beat compilation %v", withAlbum.Combined, withComp.Combined)
	}
	if withAlbum.Combined != 100 {
		t.Errorf("perfect match with album bonus should clamp to 100, got %v", withAlbum.Combined)
	}
}

func TestScoreAlbum(t *testing.T) {
	tt := []struct {
		name        string
		source      models.Album
		candidate   models.Album
		minCombined float64
		maxCombined float64
	}{
		{
			name:        "identical with year and track count",
			source:      models.Album{Title: "Abbey Road", Artist: "The Beatles", ReleaseYear: 1969, TrackCount: 17},
			candidate:   models.Album{Title: "Abbey Road", Artist: "The Beatles", ReleaseYear: 1969, TrackCount: 17},
			minCombined: 100,
			maxCombined: 100,
		},
		{
			name:        "near track count still boosted",
			source:      models.Album{Title: "Abbey Road", Artist: "The Beatles", TrackCount: 17},
			candidate:   models.Album{Title: "Abbey Road", Artist: "The Beatles", TrackCount: 19},
			minCombined: 100,
			maxCombined: 100,
		},
		{
			name:        "unrelated album scores below acceptance",
			source:      models.Album{Title: "Abbey Road", Artist: "The Beatles"},
			candidate:   models.Album{Title: "Nevermind", Artist: "Nirvana"},
			minCombined: 0,
			maxCombined: 50,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreAlbum(tc.source, tc.candidate)
			if got.Combined < tc.minCombined || got.Combined > tc.maxCombined {
				t.Errorf("combined = %v, want in [%v, %v]", got.Combined, tc.minCombined, tc.maxCombined)
			}
		})
	}
}

func TestDurationToleranceMS(t *testing.T) {
	tt := []struct {
		name       string
		durationMS int
		want       int
	}{
		{name: "short track", durationMS: 90 * 1000, want: 3000},
		{name: "typical track", durationMS: 200 * 1000, want: 5000},
		{name: "long track", durationMS: 6 * 60 * 1000, want: 10000},
		{name: "epic track", durationMS: 20 * 60 * 1000, want: 30000},
		{name: "boundary below two minutes", durationMS: 2*60*1000 - 1, want: 3000},
		{name: "boundary at two minutes", durationMS: 2 * 60 * 1000, want: 5000},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := DurationToleranceMS(tc.durationMS); got != tc.want {
				t.Errorf("DurationToleranceMS(%d) = %d, want %d", tc.durationMS, got, tc.want)
			}
		})
	}
}
