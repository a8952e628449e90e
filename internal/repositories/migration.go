package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

// MigrationRepository handles migration record CRUD with soft delete support.
type MigrationRepository struct {
	db *sql.DB
}

func NewMigrationRepository(db *sql.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// Create inserts a new migration record with a generated id and sequence.
func (r *MigrationRepository) Create(migration *models.MigrationRecord) error {
	sequence, err := NextSequence(r.db, "migrations")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	migration.SetID(shared.GenerateID())
	migration.SetSequence(sequence)

	if err := migration.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO migrations (
			id, sequence, sync_type, dry_run, status,
			items_matched, items_unmatched, exact_matches, fuzzy_matches,
			error_message, report_json, started_at, completed_at,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stats := migration.Stats()
	_, err = r.db.Exec(query,
		migration.ID(),
		sequence,
		migration.SyncType(),
		migration.DryRun(),
		migration.Status(),
		stats.Matched,
		stats.Unmatched,
		stats.ExactMatches,
		stats.FuzzyMatches,
		nullableString(migration.ErrorMessage()),
		nullableString(migration.ReportJSON()),
		migration.StartedAt(),
		migration.CompletedAt(),
		migration.CreatedAt(),
		migration.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert migration: %w", err)
	}

	return nil
}

// Get retrieves a migration record by id, excluding soft-deleted rows.
func (r *MigrationRepository) Get(id string) (*models.MigrationRecord, error) {
	query := `
		SELECT
			id, sequence, sync_type, dry_run, status,
			items_matched, items_unmatched, exact_matches, fuzzy_matches,
			error_message, report_json, started_at, completed_at,
			created_at, updated_at
		FROM migrations
		WHERE id = ? AND deleted_at IS NULL
	`
	return r.scanOne(r.db.QueryRow(query, id))
}

// Update persists the record's mutable columns.
func (r *MigrationRepository) Update(migration *models.MigrationRecord) error {
	if err := migration.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	migration.SetUpdatedAt(time.Now())

	query := `
		UPDATE migrations
		SET status = ?, items_matched = ?, items_unmatched = ?,
			exact_matches = ?, fuzzy_matches = ?, error_message = ?,
			report_json = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	stats := migration.Stats()
	result, err := r.db.Exec(query,
		migration.Status(),
		stats.Matched,
		stats.Unmatched,
		stats.ExactMatches,
		stats.FuzzyMatches,
		nullableString(migration.ErrorMessage()),
		nullableString(migration.ReportJSON()),
		migration.CompletedAt(),
		migration.UpdatedAt(),
		migration.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update migration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("migration not found: %s", migration.ID())
	}

	return nil
}

// List returns migration records newest first.
func (r *MigrationRepository) List(limit int) ([]*models.MigrationRecord, error) {
	query := `
		SELECT
			id, sequence, sync_type, dry_run, status,
			items_matched, items_unmatched, exact_matches, fuzzy_matches,
			error_message, report_json, started_at, completed_at,
			created_at, updated_at
		FROM migrations
		WHERE deleted_at IS NULL
		ORDER BY sequence DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	var records []*models.MigrationRecord
	for rows.Next() {
		record, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Delete soft-deletes a migration record.
func (r *MigrationRepository) Delete(id string) error {
	result, err := r.db.Exec(
		"UPDATE migrations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete migration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("migration not found: %s", id)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func (r *MigrationRepository) scanOne(row scanner) (*models.MigrationRecord, error) {
	var (
		id, syncType, status               string
		sequence                           int
		dryRun                             bool
		matched, unmatched, exact, fuzzy   int
		errorMessage, reportJSON           sql.NullString
		startedAt, completedAt             sql.NullTime
		createdAt, updatedAt               time.Time
	)

	err := row.Scan(
		&id, &sequence, &syncType, &dryRun, &status,
		&matched, &unmatched, &exact, &fuzzy,
		&errorMessage, &reportJSON, &startedAt, &completedAt,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("migration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan migration: %w", err)
	}

	record := models.NewMigrationRecord(sequence, models.SyncType(syncType), dryRun)
	record.SetID(id)
	record.SetStatus(status)
	record.SetStats(models.CumulativeStats{
		Matched:      matched,
		Unmatched:    unmatched,
		ExactMatches: exact,
		FuzzyMatches: fuzzy,
	})
	record.SetErrorMessage(errorMessage.String)
	record.SetReportJSON(reportJSON.String)
	if startedAt.Valid {
		t := startedAt.Time
		record.SetStartedAt(&t)
	} else {
		record.SetStartedAt(nil)
	}
	if completedAt.Valid {
		t := completedAt.Time
		record.SetCompletedAt(&t)
	}
	record.SetCreatedAt(createdAt)
	record.SetUpdatedAt(updatedAt)

	return record, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
