package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

// UnmatchedRepository manages the review queue of tracks no strategy could
// match. Rows are keyed by (source_id, sync_type) so a track that fails to
// match on a later run refreshes its suggestions instead of duplicating.
type UnmatchedRepository struct {
	db *sql.DB
}

func NewUnmatchedRepository(db *sql.DB) *UnmatchedRepository {
	return &UnmatchedRepository{db: db}
}

// Upsert records an unmatched track. A fresh row gets the next sequence
// number and pending status; an existing row keeps its sequence and review
// status but refreshes the suggestion list.
func (r *UnmatchedRepository) Upsert(track models.Track, syncType models.SyncType, suggestions []models.Suggestion) error {
	suggestionsJSON, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("failed to encode suggestions: %w", err)
	}

	var existingID string
	err = r.db.QueryRow(
		"SELECT id FROM unmatched_tracks WHERE source_id = ? AND sync_type = ? AND deleted_at IS NULL",
		track.ID, syncType,
	).Scan(&existingID)
	switch {
	case err == nil:
		_, err = r.db.Exec(`
			UPDATE unmatched_tracks
			SET title = ?, artist = ?, album = ?, suggestions_json = ?, updated_at = ?
			WHERE id = ?
		`,
			track.Title,
			track.Artist,
			nullableString(track.Album),
			string(suggestionsJSON),
			time.Now(),
			existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to refresh unmatched track: %w", err)
		}
		return nil
	case err != sql.ErrNoRows:
		return fmt.Errorf("failed to look up unmatched track: %w", err)
	}

	sequence, err := NextSequence(r.db, "unmatched_tracks")
	if err != nil {
		return err
	}

	entity := models.NewUnmatchedTrack(sequence, track, syncType, suggestions)
	entity.SetID(shared.GenerateID())
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO unmatched_tracks (
			id, sequence, source_id, title, artist, album,
			sync_type, suggestions_json, status, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entity.ID(),
		entity.Sequence(),
		entity.SourceID(),
		entity.Title(),
		entity.Artist(),
		nullableString(entity.Album()),
		entity.SyncType(),
		string(suggestionsJSON),
		entity.Status(),
		entity.CreatedAt(),
		entity.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert unmatched track: %w", err)
	}
	return nil
}

// Get retrieves one unmatched track by id.
func (r *UnmatchedRepository) Get(id string) (*models.UnmatchedTrack, error) {
	query := unmatchedSelect + " WHERE id = ? AND deleted_at IS NULL"
	return r.scanOne(r.db.QueryRow(query, id))
}

// List returns unmatched tracks in discovery order, optionally filtered by
// review status. An empty status returns every live row.
func (r *UnmatchedRepository) List(status models.UnmatchedStatus) ([]*models.UnmatchedTrack, error) {
	query := unmatchedSelect + " WHERE deleted_at IS NULL"
	args := []any{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.UnmatchedTrack
	for rows.Next() {
		track, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// Update persists a review decision (resolved or dismissed).
func (r *UnmatchedRepository) Update(track *models.UnmatchedTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := r.db.Exec(`
		UPDATE unmatched_tracks
		SET status = ?, resolved_target_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`,
		track.Status(),
		nullableString(track.ResolvedTargetID()),
		time.Now(),
		track.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update unmatched track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: unmatched %s", shared.ErrTrackNotFound, track.ID())
	}
	return nil
}

// Delete soft-deletes an unmatched track.
func (r *UnmatchedRepository) Delete(id string) error {
	result, err := r.db.Exec(
		"UPDATE unmatched_tracks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete unmatched track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: unmatched %s", shared.ErrTrackNotFound, id)
	}
	return nil
}

const unmatchedSelect = `
	SELECT
		id, sequence, source_id, title, artist, album,
		sync_type, suggestions_json, status, resolved_target_id,
		created_at, updated_at
	FROM unmatched_tracks
`

func (r *UnmatchedRepository) scanOne(row scanner) (*models.UnmatchedTrack, error) {
	var (
		id, sourceID, title, artist, syncType, status string
		album, suggestionsJSON, resolvedTargetID      sql.NullString
		sequence                                      int
		createdAt, updatedAt                          time.Time
	)

	err := row.Scan(
		&id, &sequence, &sourceID, &title, &artist, &album,
		&syncType, &suggestionsJSON, &status, &resolvedTargetID,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: unmatched", shared.ErrTrackNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan unmatched track: %w", err)
	}

	var suggestions []models.Suggestion
	if suggestionsJSON.Valid && suggestionsJSON.String != "" {
		if err := json.Unmarshal([]byte(suggestionsJSON.String), &suggestions); err != nil {
			return nil, fmt.Errorf("failed to decode suggestions: %w", err)
		}
	}

	track := models.NewUnmatchedTrack(sequence, models.Track{
		ID:     sourceID,
		Title:  title,
		Artist: artist,
		Album:  album.String,
	}, models.SyncType(syncType), suggestions)
	track.SetID(id)
	track.Restore(models.UnmatchedStatus(status), resolvedTargetID.String)
	track.SetCreatedAt(createdAt)
	track.SetUpdatedAt(updatedAt)

	return track, nil
}
