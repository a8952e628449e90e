package models

import (
	"fmt"
	"time"
)

// TaskStatus is the finite state of a sync task.
//
// Transitions: starting → running → (chunk_complete → running)* →
// completed | failed | cancelled. The three terminal states accept no
// further writes.
type TaskStatus string

const (
	StatusStarting      TaskStatus = "starting"
	StatusRunning       TaskStatus = "running"
	StatusChunkComplete TaskStatus = "chunk_complete"
	StatusCompleted     TaskStatus = "completed"
	StatusFailed        TaskStatus = "failed"
	StatusCancelled     TaskStatus = "cancelled"
)

// Terminal reports whether the status accepts no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Resumable reports whether a task in this status can run another chunk.
func (s TaskStatus) Resumable() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusChunkComplete
}

// ParseTaskStatus validates a stored status string.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case StatusStarting, StatusRunning, StatusChunkComplete, StatusCompleted, StatusFailed, StatusCancelled:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status: %q", s)
}

// SyncType identifies the logical collection a task syncs.
type SyncType string

const (
	SyncFavorites SyncType = "favorites"
	SyncAlbums    SyncType = "albums"
	SyncPlaylists SyncType = "playlists"
)

// CumulativeStats holds running totals aggregated across all chunks of one
// task. Totals are monotonically non-decreasing; each chunk boundary stores
// previous + this-chunk delta rather than recounting from scratch.
type CumulativeStats struct {
	Matched          int `json:"matched"`
	Unmatched        int `json:"unmatched"`
	ExactMatches     int `json:"exact_matches"`
	FuzzyMatches     int `json:"fuzzy_matches"`
	PlaylistsSkipped int `json:"playlists_skipped"`
}

// Add returns the sum of s and delta.
func (s CumulativeStats) Add(delta CumulativeStats) CumulativeStats {
	return CumulativeStats{
		Matched:          s.Matched + delta.Matched,
		Unmatched:        s.Unmatched + delta.Unmatched,
		ExactMatches:     s.ExactMatches + delta.ExactMatches,
		FuzzyMatches:     s.FuzzyMatches + delta.FuzzyMatches,
		PlaylistsSkipped: s.PlaylistsSkipped + delta.PlaylistsSkipped,
	}
}

// ChunkState describes where one chunk stopped and whether more work remains.
// It is computed fresh each chunk and persisted so the next invocation can
// resume at NextOffset.
type ChunkState struct {
	NextOffset     int  `json:"next_offset"`
	TotalItems     int  `json:"total_items"`
	ItemsProcessed int  `json:"items_processed"`
	HasMore        bool `json:"has_more"`
}

// SyncReport is the terminal cumulative summary of a completed task.
// Counters are final cumulative totals, not the last chunk's delta.
type SyncReport struct {
	SyncType    SyncType        `json:"sync_type"`
	DryRun      bool            `json:"dry_run"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Stats       CumulativeStats `json:"stats"`
	TotalItems  int             `json:"total_items"`
	Errors      []string        `json:"errors,omitempty"`
}

// MissingItem is one entry of the progress tracker's recent-unmatched ring.
type MissingItem struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
}

// ProgressSnapshot is an immutable view of sync progress. Only the progress
// tracker mutates the underlying state; consumers treat snapshots as
// read-only.
type ProgressSnapshot struct {
	CurrentPlaylist      string          `json:"current_playlist,omitempty"`
	CurrentPlaylistIndex int             `json:"current_playlist_index"`
	TotalPlaylists       int             `json:"total_playlists"`
	CurrentItemIndex     int             `json:"current_item_index"`
	TotalItems           int             `json:"total_items"`
	Stats                CumulativeStats `json:"stats"`
	PercentComplete      float64         `json:"percent_complete"`
	RecentMissing        []MissingItem   `json:"recent_missing,omitempty"`
}
