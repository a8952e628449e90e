package tasks

import (
	"fmt"
	"testing"

	"github.com/desertthunder/qsync/internal/models"
)

func TestTrackerEmitsSnapshots(t *testing.T) {
	var emitted []models.ProgressSnapshot
	tracker := NewTracker(func(s models.ProgressSnapshot) {
		emitted = append(emitted, s)
	})

	tracker.SetTotals(10, 1)
	tracker.SetPosition(5)
	tracker.SetStats(models.CumulativeStats{Matched: 4, Unmatched: 1})

	if len(emitted) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(emitted))
	}
	last := emitted[2]
	if last.PercentComplete != 50 {
		t.Errorf("percent = %v, want 50", last.PercentComplete)
	}
	if last.Stats.Matched != 4 || last.Stats.Unmatched != 1 {
		t.Errorf("stats = %+v", last.Stats)
	}
}

func TestTrackerNilSink(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.SetTotals(4, 1)
	tracker.SetPosition(2)

	snap := tracker.Snapshot()
	if snap.PercentComplete != 50 {
		t.Errorf("percent = %v, want 50", snap.PercentComplete)
	}
}

func TestTrackerMissingRing(t *testing.T) {
	tracker := NewTracker(nil)

	for i := 0; i < MissingRingSize+5; i++ {
		tracker.AddMissingItem(models.MissingItem{SourceID: fmt.Sprintf("sp%d", i)})
	}

	snap := tracker.Snapshot()
	if len(snap.RecentMissing) != MissingRingSize {
		t.Fatalf("ring holds %d items, want %d", len(snap.RecentMissing), MissingRingSize)
	}
	if snap.RecentMissing[0].SourceID != "sp5" {
		t.Errorf("oldest surviving entry = %s, want sp5 (oldest evicted first)", snap.RecentMissing[0].SourceID)
	}
	if snap.RecentMissing[MissingRingSize-1].SourceID != fmt.Sprintf("sp%d", MissingRingSize+4) {
		t.Errorf("newest entry = %s", snap.RecentMissing[MissingRingSize-1].SourceID)
	}
}

func TestTrackerPercentComplete(t *testing.T) {
	tt := []struct {
		name           string
		totalItems     int
		totalPlaylists int
		playlistIndex  int
		itemIndex      int
		want           float64
	}{
		{name: "no totals", want: 0},
		{name: "single collection halfway", totalItems: 100, totalPlaylists: 1, itemIndex: 50, want: 50},
		{name: "single collection done", totalItems: 100, totalPlaylists: 1, itemIndex: 100, want: 100},
		{name: "single collection clamped", totalItems: 100, totalPlaylists: 1, itemIndex: 120, want: 100},
		{name: "multi playlist blend", totalItems: 10, totalPlaylists: 4, playlistIndex: 2, itemIndex: 5, want: 62.5},
		{name: "multi playlist start", totalItems: 0, totalPlaylists: 4, playlistIndex: 0, itemIndex: 0, want: 0},
		{name: "multi playlist clamped", totalItems: 10, totalPlaylists: 2, playlistIndex: 2, itemIndex: 10, want: 100},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			tracker := NewTracker(nil)
			tracker.SetTotals(tc.totalItems, tc.totalPlaylists)
			tracker.current.CurrentPlaylistIndex = tc.playlistIndex
			tracker.current.CurrentItemIndex = tc.itemIndex

			if got := tracker.Snapshot().PercentComplete; got != tc.want {
				t.Errorf("percent = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTrackerSnapshotIsolation(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.AddMissingItem(models.MissingItem{SourceID: "sp1"})

	snap := tracker.Snapshot()
	snap.RecentMissing[0].SourceID = "mutated"

	if got := tracker.Snapshot().RecentMissing[0].SourceID; got != "sp1" {
		t.Errorf("tracker state mutated through snapshot: %s", got)
	}
}
