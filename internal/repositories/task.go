package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

// StaleTaskWindow is how long a non-terminal task may sit without advancing
// before the sweep marks it failed. Prevents tasks whose process died from
// appearing perpetually running.
const StaleTaskWindow = time.Hour

// SyncTaskRepository handles sync task persistence, including the
// cooperative cancellation flag and the stale-task sweep.
type SyncTaskRepository struct {
	db *sql.DB
}

func NewSyncTaskRepository(db *sql.DB) *SyncTaskRepository {
	return &SyncTaskRepository{db: db}
}

// Create inserts a new task with a generated id.
func (r *SyncTaskRepository) Create(task *models.SyncTask) error {
	task.SetID(shared.GenerateID())

	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sync_tasks (
			id, migration_id, sync_type, status, cancel_requested,
			items_matched, items_unmatched, exact_matches, fuzzy_matches,
			playlists_skipped, next_offset, total_items,
			report_json, error_message, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	reportJSON, err := marshalReport(task.Report())
	if err != nil {
		return err
	}

	stats := task.Stats()
	_, err = r.db.Exec(query,
		task.ID(),
		nullableString(task.MigrationID()),
		task.SyncType(),
		task.Status(),
		stats.Matched,
		stats.Unmatched,
		stats.ExactMatches,
		stats.FuzzyMatches,
		stats.PlaylistsSkipped,
		task.NextOffset(),
		task.TotalItems(),
		reportJSON,
		nullableString(task.ErrorMessage()),
		task.CreatedAt(),
		task.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync task: %w", err)
	}

	return nil
}

// Get retrieves a task by id.
func (r *SyncTaskRepository) Get(id string) (*models.SyncTask, error) {
	query := `
		SELECT
			id, migration_id, sync_type, status,
			items_matched, items_unmatched, exact_matches, fuzzy_matches,
			playlists_skipped, next_offset, total_items,
			report_json, error_message, created_at, updated_at
		FROM sync_tasks
		WHERE id = ?
	`
	return r.scanOne(r.db.QueryRow(query, id))
}

// Update persists the task's status, stats, cursor, and report.
func (r *SyncTaskRepository) Update(task *models.SyncTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE sync_tasks
		SET status = ?, items_matched = ?, items_unmatched = ?,
			exact_matches = ?, fuzzy_matches = ?, playlists_skipped = ?,
			next_offset = ?, total_items = ?, report_json = ?,
			error_message = ?, updated_at = ?
		WHERE id = ?
	`

	reportJSON, err := marshalReport(task.Report())
	if err != nil {
		return err
	}

	stats := task.Stats()
	result, err := r.db.Exec(query,
		task.Status(),
		stats.Matched,
		stats.Unmatched,
		stats.ExactMatches,
		stats.FuzzyMatches,
		stats.PlaylistsSkipped,
		task.NextOffset(),
		task.TotalItems(),
		reportJSON,
		nullableString(task.ErrorMessage()),
		time.Now(),
		task.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, task.ID())
	}

	return nil
}

// ListResumable returns non-terminal tasks oldest first.
func (r *SyncTaskRepository) ListResumable() ([]*models.SyncTask, error) {
	query := `
		SELECT
			id, migration_id, sync_type, status,
			items_matched, items_unmatched, exact_matches, fuzzy_matches,
			playlists_skipped, next_offset, total_items,
			report_json, error_message, created_at, updated_at
		FROM sync_tasks
		WHERE status IN (?, ?, ?)
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query, models.StatusStarting, models.StatusRunning, models.StatusChunkComplete)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.SyncTask
	for rows.Next() {
		task, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// RequestCancel sets the cooperative cancellation flag. The running chunk
// observes it on its next poll.
func (r *SyncTaskRepository) RequestCancel(id string) error {
	result, err := r.db.Exec(
		"UPDATE sync_tasks SET cancel_requested = 1, updated_at = ? WHERE id = ?",
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to request cancellation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cancel result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	return nil
}

// CancelRequested reads the cancellation flag.
func (r *SyncTaskRepository) CancelRequested(id string) (bool, error) {
	var cancelled bool
	err := r.db.QueryRow("SELECT cancel_requested FROM sync_tasks WHERE id = ?", id).Scan(&cancelled)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return cancelled, nil
}

// SweepStaleTasks marks non-terminal tasks that stopped advancing more than
// StaleTaskWindow ago as failed. Returns the number of tasks swept.
func (r *SyncTaskRepository) SweepStaleTasks() (int, error) {
	cutoff := time.Now().Add(-StaleTaskWindow)
	result, err := r.db.Exec(`
		UPDATE sync_tasks
		SET status = ?, error_message = ?, updated_at = ?
		WHERE status IN (?, ?, ?) AND updated_at < ?
	`,
		models.StatusFailed,
		"task stopped advancing and was marked stale",
		time.Now(),
		models.StatusStarting,
		models.StatusRunning,
		models.StatusChunkComplete,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale tasks: %w", err)
	}

	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept tasks: %w", err)
	}
	return int(swept), nil
}

func (r *SyncTaskRepository) scanOne(row scanner) (*models.SyncTask, error) {
	var (
		id, syncType, status                string
		migrationID, reportJSON, errMessage sql.NullString
		matched, unmatched, exact, fuzzy    int
		skipped, nextOffset, totalItems     int
		createdAt, updatedAt                time.Time
	)

	err := row.Scan(
		&id, &migrationID, &syncType, &status,
		&matched, &unmatched, &exact, &fuzzy,
		&skipped, &nextOffset, &totalItems,
		&reportJSON, &errMessage, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w", shared.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync task: %w", err)
	}

	parsedStatus, err := models.ParseTaskStatus(status)
	if err != nil {
		return nil, err
	}

	var report *models.SyncReport
	if reportJSON.Valid && reportJSON.String != "" {
		report = &models.SyncReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), report); err != nil {
			return nil, fmt.Errorf("failed to decode task report: %w", err)
		}
	}

	task := models.NewSyncTask(migrationID.String, models.SyncType(syncType))
	task.SetID(id)
	task.Restore(parsedStatus, models.CumulativeStats{
		Matched:          matched,
		Unmatched:        unmatched,
		ExactMatches:     exact,
		FuzzyMatches:     fuzzy,
		PlaylistsSkipped: skipped,
	}, nextOffset, totalItems, errMessage.String, report)
	task.SetCreatedAt(createdAt)
	task.SetUpdatedAt(updatedAt)

	return task, nil
}

func marshalReport(report *models.SyncReport) (any, error) {
	if report == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task report: %w", err)
	}
	return string(encoded), nil
}
