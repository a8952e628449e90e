package tasks

import "github.com/desertthunder/qsync/internal/models"

// MissingRingSize caps the most-recent-unmatched ring on progress snapshots.
const MissingRingSize = 20

// Sink receives an immutable progress snapshot after every tracker mutation.
// Emission is synchronous with no buffering; callers needing throttled
// persistence must throttle themselves.
type Sink func(models.ProgressSnapshot)

// Tracker accumulates sync counters and position state and emits snapshots
// to an optional sink. It is not safe for concurrent use: one tracker
// belongs to one chunk invocation.
type Tracker struct {
	sink    Sink
	current models.ProgressSnapshot
	missing []models.MissingItem
}

func NewTracker(sink Sink) *Tracker {
	return &Tracker{sink: sink}
}

// SetTotals records collection sizes for percent computation.
func (t *Tracker) SetTotals(totalItems, totalPlaylists int) {
	t.current.TotalItems = totalItems
	t.current.TotalPlaylists = totalPlaylists
	t.emit()
}

// SetPosition records the current item index within the active collection.
func (t *Tracker) SetPosition(itemIndex int) {
	t.current.CurrentItemIndex = itemIndex
	t.emit()
}

// SetPlaylist records which playlist a multi-playlist sync is working on.
func (t *Tracker) SetPlaylist(name string, index int) {
	t.current.CurrentPlaylist = name
	t.current.CurrentPlaylistIndex = index
	t.current.CurrentItemIndex = 0
	t.current.TotalItems = 0
	t.emit()
}

// SetStats replaces the cumulative counters.
func (t *Tracker) SetStats(stats models.CumulativeStats) {
	t.current.Stats = stats
	t.emit()
}

// AddMissingItem pushes onto the recent-unmatched ring, evicting the oldest
// entry on overflow.
func (t *Tracker) AddMissingItem(item models.MissingItem) {
	t.missing = append(t.missing, item)
	if len(t.missing) > MissingRingSize {
		t.missing = t.missing[len(t.missing)-MissingRingSize:]
	}
	t.emit()
}

// Snapshot returns the current state as an immutable copy.
func (t *Tracker) Snapshot() models.ProgressSnapshot {
	snap := t.current
	snap.PercentComplete = t.percentComplete()
	snap.RecentMissing = append([]models.MissingItem(nil), t.missing...)
	return snap
}

func (t *Tracker) emit() {
	if t.sink == nil {
		return
	}
	t.sink(t.Snapshot())
}

// percentComplete is computed, never stored. A single logical collection
// reports item progress directly; a multi-playlist sync blends the
// completed-playlist fraction with the in-flight playlist's fraction.
func (t *Tracker) percentComplete() float64 {
	if t.current.TotalPlaylists > 1 {
		itemFraction := 0.0
		if t.current.TotalItems > 0 {
			itemFraction = float64(t.current.CurrentItemIndex) / float64(t.current.TotalItems)
		}
		pct := (float64(t.current.CurrentPlaylistIndex) + itemFraction) /
			float64(t.current.TotalPlaylists) * 100
		return clampPercent(pct)
	}

	if t.current.TotalItems == 0 {
		return 0
	}
	return clampPercent(float64(t.current.CurrentItemIndex) / float64(t.current.TotalItems) * 100)
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
