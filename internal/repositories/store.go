package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/qsync/internal/models"
)

// Store bundles the individual repositories behind the orchestrator's
// persistence interface. Context parameters are accepted for interface
// symmetry with the remote services; SQLite calls complete synchronously.
type Store struct {
	Tasks      *SyncTaskRepository
	Migrations *MigrationRepository
	SyncState  *SyncStateRepository
	Unmatched  *UnmatchedRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Tasks:      NewSyncTaskRepository(db),
		Migrations: NewMigrationRepository(db),
		SyncState:  NewSyncStateRepository(db),
		Unmatched:  NewUnmatchedRepository(db),
	}
}

func (s *Store) Task(_ context.Context, taskID string) (*models.SyncTask, error) {
	return s.Tasks.Get(taskID)
}

func (s *Store) SaveTask(_ context.Context, task *models.SyncTask) error {
	return s.Tasks.Update(task)
}

func (s *Store) SyncedItems(_ context.Context, syncType models.SyncType) (map[string]bool, error) {
	return s.SyncState.SyncedItems(syncType)
}

func (s *Store) MarkSynced(_ context.Context, syncType models.SyncType, pairs map[string]string) error {
	return s.SyncState.MarkSynced(syncType, pairs)
}

func (s *Store) CancelRequested(_ context.Context, taskID string) (bool, error) {
	return s.Tasks.CancelRequested(taskID)
}

func (s *Store) SaveUnmatched(_ context.Context, syncType models.SyncType, track models.Track, suggestions []models.Suggestion) error {
	return s.Unmatched.Upsert(track, syncType, suggestions)
}

func (s *Store) FailMigration(_ context.Context, migrationID, message string) error {
	migration, err := s.Migrations.Get(migrationID)
	if err != nil {
		return err
	}

	migration.SetStatus("failed")
	migration.SetErrorMessage(message)
	now := time.Now()
	migration.SetCompletedAt(&now)

	return s.Migrations.Update(migration)
}

func (s *Store) CompleteMigration(_ context.Context, migrationID string, report *models.SyncReport) error {
	migration, err := s.Migrations.Get(migrationID)
	if err != nil {
		return err
	}

	migration.SetStatus("completed")
	if report != nil {
		encoded, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to encode migration report: %w", err)
		}
		migration.SetReportJSON(string(encoded))
		migration.SetStats(report.Stats)
	}
	now := time.Now()
	migration.SetCompletedAt(&now)

	return s.Migrations.Update(migration)
}

func (s *Store) PlaylistSnapshot(_ context.Context, playlistID string) (revision, targetID string, err error) {
	return s.SyncState.PlaylistSnapshot(playlistID)
}

func (s *Store) SavePlaylistSnapshot(_ context.Context, playlistID, revision, targetID string) error {
	return s.SyncState.SavePlaylistSnapshot(playlistID, revision, targetID)
}

// StartMigration creates the migration record and its owning sync task in
// one step, returning the task ready for its first chunk.
func (s *Store) StartMigration(syncType models.SyncType, dryRun bool) (*models.SyncTask, *models.MigrationRecord, error) {
	migration := models.NewMigrationRecord(0, syncType, dryRun)
	if err := s.Migrations.Create(migration); err != nil {
		return nil, nil, err
	}

	task := models.NewSyncTask(migration.ID(), syncType)
	if err := s.Tasks.Create(task); err != nil {
		return nil, nil, errors.Join(err, s.Migrations.Delete(migration.ID()))
	}

	return task, migration, nil
}
