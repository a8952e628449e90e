// package formatter renders sync reports and the unmatched review queue to
// various formats (text, CSV, Markdown, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

// ReportToText renders a sync report as a plain text summary.
func ReportToText(report *models.SyncReport) []byte {
	var buf bytes.Buffer

	label := string(report.SyncType)
	if report.DryRun {
		label += " (dry run)"
	}
	buf.WriteString(fmt.Sprintf("Sync: %s\n", label))
	buf.WriteString(fmt.Sprintf("Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("Completed: %s\n\n", report.CompletedAt.Format("2006-01-02 15:04:05")))

	stats := report.Stats
	buf.WriteString(fmt.Sprintf("Items: %d\n", report.TotalItems))
	buf.WriteString(fmt.Sprintf("Matched: %d (%d exact, %d fuzzy)\n", stats.Matched, stats.ExactMatches, stats.FuzzyMatches))
	buf.WriteString(fmt.Sprintf("Unmatched: %d\n", stats.Unmatched))
	if report.SyncType == models.SyncPlaylists {
		buf.WriteString(fmt.Sprintf("Playlists skipped (unchanged): %d\n", stats.PlaylistsSkipped))
	}

	if len(report.Errors) > 0 {
		buf.WriteString("\nErrors:\n")
		for _, msg := range report.Errors {
			buf.WriteString(fmt.Sprintf("  - %s\n", msg))
		}
	}

	return buf.Bytes()
}

// ReportToMarkdown renders a sync report as a Markdown document.
func ReportToMarkdown(report *models.SyncReport) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Sync Report: %s\n\n", report.SyncType))
	if report.DryRun {
		buf.WriteString("**Dry run** — no changes were written.\n\n")
	}
	buf.WriteString(fmt.Sprintf("**Started**: %s\n", report.StartedAt.Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("**Completed**: %s\n\n", report.CompletedAt.Format("2006-01-02 15:04:05")))

	stats := report.Stats
	buf.WriteString("| Metric | Count |\n|---|---|\n")
	buf.WriteString(fmt.Sprintf("| Total items | %d |\n", report.TotalItems))
	buf.WriteString(fmt.Sprintf("| Matched | %d |\n", stats.Matched))
	buf.WriteString(fmt.Sprintf("| Exact matches | %d |\n", stats.ExactMatches))
	buf.WriteString(fmt.Sprintf("| Fuzzy matches | %d |\n", stats.FuzzyMatches))
	buf.WriteString(fmt.Sprintf("| Unmatched | %d |\n", stats.Unmatched))
	if report.SyncType == models.SyncPlaylists {
		buf.WriteString(fmt.Sprintf("| Playlists skipped | %d |\n", stats.PlaylistsSkipped))
	}

	if len(report.Errors) > 0 {
		buf.WriteString("\n## Errors\n\n")
		for _, msg := range report.Errors {
			buf.WriteString(fmt.Sprintf("- %s\n", msg))
		}
	}

	return buf.Bytes()
}

// ReportToJSON renders a sync report as indented JSON.
func ReportToJSON(report *models.SyncReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// UnmatchedToText renders the review queue for terminal display, including
// each track's top suggestion when one exists.
func UnmatchedToText(tracks []*models.UnmatchedTrack) []byte {
	var buf bytes.Buffer

	if len(tracks) == 0 {
		buf.WriteString("No unmatched tracks.\n")
		return buf.Bytes()
	}

	for _, track := range tracks {
		buf.WriteString(fmt.Sprintf("#%d [%s] %s - %s", track.Sequence(), track.Status(), track.Artist(), track.Title()))
		if track.Album() != "" {
			buf.WriteString(fmt.Sprintf(" (%s)", track.Album()))
		}
		buf.WriteString(fmt.Sprintf("\n    id: %s  source: %s  sync: %s\n", track.ID(), track.SourceID(), track.SyncType()))

		suggestions := track.Suggestions()
		if len(suggestions) > 0 {
			best := suggestions[0]
			buf.WriteString(fmt.Sprintf("    closest: %s - %s (score %.0f, drift %s)\n",
				best.Track.Artist, best.Track.Title, best.Score,
				shared.FormatDuration(abs(best.DurationDiffMS))))
		}
	}

	return buf.Bytes()
}

// UnmatchedToCSV renders the review queue as CSV with one row per track and
// the top suggestion inlined.
func UnmatchedToCSV(tracks []*models.UnmatchedTrack) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "SourceID", "Title", "Artist", "Album", "SyncType", "Status", "BestSuggestion", "BestScore"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		bestTitle, bestScore := "", ""
		if suggestions := track.Suggestions(); len(suggestions) > 0 {
			bestTitle = suggestions[0].Track.Artist + " - " + suggestions[0].Track.Title
			bestScore = strconv.FormatFloat(suggestions[0].Score, 'f', 1, 64)
		}

		record := []string{
			strconv.Itoa(track.Sequence()),
			track.SourceID(),
			track.Title(),
			track.Artist(),
			track.Album(),
			string(track.SyncType()),
			string(track.Status()),
			bestTitle,
			bestScore,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteUnmatchedExport writes the review queue to a CSV file.
//
// Defaults to unmatched_{syncType}.csv when no path is given.
func WriteUnmatchedExport(tracks []*models.UnmatchedTrack, syncType models.SyncType, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("unmatched_%s.csv", syncType)
	}

	data, err := UnmatchedToCSV(tracks)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return filepath, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
