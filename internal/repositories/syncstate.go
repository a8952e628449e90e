package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/qsync/internal/models"
)

// SyncStateRepository persists the applied-item ledger and playlist
// snapshot revisions. The ledger is what makes chunk retries idempotent:
// an item is recorded only after the target write succeeded, so anything
// absent from the set is safe to process again.
type SyncStateRepository struct {
	db *sql.DB
}

func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// SyncedItems returns the set of source ids already applied for one sync
// type. Playlist entries use composite "playlistID:trackID" keys.
func (r *SyncStateRepository) SyncedItems(syncType models.SyncType) (map[string]bool, error) {
	rows, err := r.db.Query(
		"SELECT source_id FROM synced_items WHERE sync_type = ?",
		string(syncType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load synced items: %w", err)
	}
	defer rows.Close()

	synced := make(map[string]bool)
	for rows.Next() {
		var sourceID string
		if err := rows.Scan(&sourceID); err != nil {
			return nil, fmt.Errorf("failed to scan synced item: %w", err)
		}
		synced[sourceID] = true
	}
	return synced, rows.Err()
}

// MarkSynced records a batch of applied source→target pairs. Re-recording
// an existing pair overwrites it, so replays after a crash are harmless.
func (r *SyncStateRepository) MarkSynced(syncType models.SyncType, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO synced_items (source_id, sync_type, target_id, synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id, sync_type) DO UPDATE SET
			target_id = excluded.target_id,
			synced_at = excluded.synced_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare synced insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for sourceID, targetID := range pairs {
		if _, err := stmt.Exec(sourceID, string(syncType), targetID, now); err != nil {
			return fmt.Errorf("failed to record synced item %s: %w", sourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit synced items: %w", err)
	}
	return nil
}

// PlaylistSnapshot returns the last synced revision and target playlist id
// for a source playlist. Both are empty when no snapshot exists.
func (r *SyncStateRepository) PlaylistSnapshot(playlistID string) (revision, targetID string, err error) {
	err = r.db.QueryRow(
		"SELECT revision, target_playlist_id FROM playlist_snapshots WHERE playlist_id = ?",
		playlistID,
	).Scan(&revision, &targetID)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to load playlist snapshot: %w", err)
	}
	return revision, targetID, nil
}

// SavePlaylistSnapshot upserts the revision a playlist was last fully
// synced at, enabling the unchanged-playlist skip on later runs.
func (r *SyncStateRepository) SavePlaylistSnapshot(playlistID, revision, targetID string) error {
	_, err := r.db.Exec(`
		INSERT INTO playlist_snapshots (playlist_id, revision, target_playlist_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(playlist_id) DO UPDATE SET
			revision = excluded.revision,
			target_playlist_id = excluded.target_playlist_id,
			updated_at = excluded.updated_at
	`, playlistID, revision, targetID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save playlist snapshot: %w", err)
	}
	return nil
}
