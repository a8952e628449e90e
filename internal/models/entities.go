package models

import (
	"fmt"
	"time"
)

// SyncTask is the persistent record of one logical sync run. Each chunk
// invocation loads it, advances it, and writes it back; once the status is
// terminal no further writes are accepted.
type SyncTask struct {
	id          string
	migrationID string
	syncType    SyncType
	status      TaskStatus
	stats       CumulativeStats
	nextOffset  int
	totalItems  int
	errMessage  string
	report      *SyncReport
	createdAt   time.Time
	updatedAt   time.Time
}

// NewSyncTask creates a task in the starting state with zeroed stats.
func NewSyncTask(migrationID string, syncType SyncType) *SyncTask {
	now := time.Now()
	return &SyncTask{
		migrationID: migrationID,
		syncType:    syncType,
		status:      StatusStarting,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (t *SyncTask) ID() string                  { return t.id }
func (t *SyncTask) CreatedAt() time.Time        { return t.createdAt }
func (t *SyncTask) UpdatedAt() time.Time        { return t.updatedAt }
func (t *SyncTask) MigrationID() string         { return t.migrationID }
func (t *SyncTask) SyncType() SyncType          { return t.syncType }
func (t *SyncTask) Status() TaskStatus          { return t.status }
func (t *SyncTask) Stats() CumulativeStats      { return t.stats }
func (t *SyncTask) NextOffset() int             { return t.nextOffset }
func (t *SyncTask) TotalItems() int             { return t.totalItems }
func (t *SyncTask) ErrorMessage() string        { return t.errMessage }
func (t *SyncTask) Report() *SyncReport         { return t.report }

func (t *SyncTask) SetID(id string)             { t.id = id }
func (t *SyncTask) SetCreatedAt(ts time.Time)   { t.createdAt = ts }
func (t *SyncTask) SetUpdatedAt(ts time.Time)   { t.updatedAt = ts }

// Validate checks required fields and status consistency.
func (t *SyncTask) Validate() error {
	if t.syncType == "" {
		return fmt.Errorf("sync type is required")
	}
	if _, err := ParseTaskStatus(string(t.status)); err != nil {
		return err
	}
	if t.status == StatusCompleted && t.report == nil {
		return fmt.Errorf("completed task requires a report")
	}
	if t.status == StatusFailed && t.errMessage == "" {
		return fmt.Errorf("failed task requires an error message")
	}
	return nil
}

// transition moves the task to a new status, rejecting writes once terminal.
func (t *SyncTask) transition(next TaskStatus) error {
	if t.status.Terminal() {
		return fmt.Errorf("cannot transition %s task to %s", t.status, next)
	}
	t.status = next
	t.updatedAt = time.Now()
	return nil
}

// MarkRunning transitions the task into the running state for a chunk.
func (t *SyncTask) MarkRunning() error { return t.transition(StatusRunning) }

// MarkChunkComplete records chunk accounting and parks the task until the
// next invocation.
func (t *SyncTask) MarkChunkComplete(stats CumulativeStats, state ChunkState) error {
	if err := t.transition(StatusChunkComplete); err != nil {
		return err
	}
	t.stats = stats
	t.nextOffset = state.NextOffset
	t.totalItems = state.TotalItems
	return nil
}

// Complete ends the task with its final cumulative report.
func (t *SyncTask) Complete(report *SyncReport) error {
	if err := t.transition(StatusCompleted); err != nil {
		return err
	}
	t.stats = report.Stats
	t.report = report
	return nil
}

// Fail ends the task with an error message.
func (t *SyncTask) Fail(message string) error {
	if err := t.transition(StatusFailed); err != nil {
		return err
	}
	t.errMessage = message
	return nil
}

// Cancel ends the task after a cooperative cancellation was observed.
// Cancellation is informational, not an error.
func (t *SyncTask) Cancel(stats CumulativeStats) error {
	if err := t.transition(StatusCancelled); err != nil {
		return err
	}
	t.stats = stats
	t.errMessage = "cancelled by user"
	return nil
}

// Restore rebuilds a task from persisted columns without transition checks.
// Intended for repository scan methods only.
func (t *SyncTask) Restore(status TaskStatus, stats CumulativeStats, nextOffset, totalItems int, errMessage string, report *SyncReport) {
	t.status = status
	t.stats = stats
	t.nextOffset = nextOffset
	t.totalItems = totalItems
	t.errMessage = errMessage
	t.report = report
}

// MigrationRecord is the migrations-table row owning one or more sync tasks.
type MigrationRecord struct {
	id          string
	sequence    int
	syncType    SyncType
	dryRun      bool
	status      string
	stats       CumulativeStats
	errMessage  string
	reportJSON  string
	startedAt   *time.Time
	completedAt *time.Time
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

// NewMigrationRecord creates a running migration record.
func NewMigrationRecord(sequence int, syncType SyncType, dryRun bool) *MigrationRecord {
	now := time.Now()
	return &MigrationRecord{
		sequence:  sequence,
		syncType:  syncType,
		dryRun:    dryRun,
		status:    "running",
		startedAt: &now,
		createdAt: now,
		updatedAt: now,
	}
}

func (m *MigrationRecord) ID() string              { return m.id }
func (m *MigrationRecord) CreatedAt() time.Time    { return m.createdAt }
func (m *MigrationRecord) UpdatedAt() time.Time    { return m.updatedAt }
func (m *MigrationRecord) Sequence() int           { return m.sequence }
func (m *MigrationRecord) SyncType() SyncType      { return m.syncType }
func (m *MigrationRecord) DryRun() bool            { return m.dryRun }
func (m *MigrationRecord) Status() string          { return m.status }
func (m *MigrationRecord) Stats() CumulativeStats  { return m.stats }
func (m *MigrationRecord) ErrorMessage() string    { return m.errMessage }
func (m *MigrationRecord) ReportJSON() string      { return m.reportJSON }
func (m *MigrationRecord) StartedAt() *time.Time   { return m.startedAt }
func (m *MigrationRecord) CompletedAt() *time.Time { return m.completedAt }
func (m *MigrationRecord) DeletedAt() *time.Time   { return m.deletedAt }

func (m *MigrationRecord) SetID(id string)                { m.id = id }
func (m *MigrationRecord) SetSequence(sequence int)       { m.sequence = sequence }
func (m *MigrationRecord) SetCreatedAt(ts time.Time)      { m.createdAt = ts }
func (m *MigrationRecord) SetUpdatedAt(ts time.Time)      { m.updatedAt = ts }
func (m *MigrationRecord) SetStatus(status string)        { m.status = status }
func (m *MigrationRecord) SetStats(s CumulativeStats)     { m.stats = s }
func (m *MigrationRecord) SetErrorMessage(msg string)     { m.errMessage = msg }
func (m *MigrationRecord) SetReportJSON(s string)         { m.reportJSON = s }
func (m *MigrationRecord) SetStartedAt(ts *time.Time)     { m.startedAt = ts }
func (m *MigrationRecord) SetCompletedAt(ts *time.Time)   { m.completedAt = ts }
func (m *MigrationRecord) SetDeletedAt(ts *time.Time)     { m.deletedAt = ts }

// Validate checks required fields.
func (m *MigrationRecord) Validate() error {
	if m.syncType == "" {
		return fmt.Errorf("sync type is required")
	}
	switch m.status {
	case "running", "completed", "failed", "cancelled":
	default:
		return fmt.Errorf("unknown migration status: %q", m.status)
	}
	return nil
}

// UnmatchedStatus is the review state of an unmatched track.
type UnmatchedStatus string

const (
	UnmatchedPending   UnmatchedStatus = "pending"
	UnmatchedResolved  UnmatchedStatus = "resolved"
	UnmatchedDismissed UnmatchedStatus = "dismissed"
)

// UnmatchedTrack is a source track that no strategy matched, kept with its
// ranked suggestions for human review.
type UnmatchedTrack struct {
	id               string
	sequence         int
	sourceID         string
	title            string
	artist           string
	album            string
	syncType         SyncType
	suggestions      []Suggestion
	status           UnmatchedStatus
	resolvedTargetID string
	createdAt        time.Time
	updatedAt        time.Time
	deletedAt        *time.Time
}

// NewUnmatchedTrack creates a pending unmatched record for review.
func NewUnmatchedTrack(sequence int, track Track, syncType SyncType, suggestions []Suggestion) *UnmatchedTrack {
	now := time.Now()
	return &UnmatchedTrack{
		sequence:    sequence,
		sourceID:    track.ID,
		title:       track.Title,
		artist:      track.Artist,
		album:       track.Album,
		syncType:    syncType,
		suggestions: suggestions,
		status:      UnmatchedPending,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (u *UnmatchedTrack) ID() string                { return u.id }
func (u *UnmatchedTrack) CreatedAt() time.Time      { return u.createdAt }
func (u *UnmatchedTrack) UpdatedAt() time.Time      { return u.updatedAt }
func (u *UnmatchedTrack) Sequence() int             { return u.sequence }
func (u *UnmatchedTrack) SourceID() string          { return u.sourceID }
func (u *UnmatchedTrack) Title() string             { return u.title }
func (u *UnmatchedTrack) Artist() string            { return u.artist }
func (u *UnmatchedTrack) Album() string             { return u.album }
func (u *UnmatchedTrack) SyncType() SyncType        { return u.syncType }
func (u *UnmatchedTrack) Suggestions() []Suggestion { return u.suggestions }
func (u *UnmatchedTrack) Status() UnmatchedStatus   { return u.status }
func (u *UnmatchedTrack) ResolvedTargetID() string  { return u.resolvedTargetID }
func (u *UnmatchedTrack) DeletedAt() *time.Time     { return u.deletedAt }

func (u *UnmatchedTrack) SetID(id string)           { u.id = id }
func (u *UnmatchedTrack) SetCreatedAt(ts time.Time) { u.createdAt = ts }
func (u *UnmatchedTrack) SetUpdatedAt(ts time.Time) { u.updatedAt = ts }
func (u *UnmatchedTrack) SetDeletedAt(ts *time.Time) {
	u.deletedAt = ts
}

// Resolve records the reviewer's chosen target id.
func (u *UnmatchedTrack) Resolve(targetID string) {
	u.status = UnmatchedResolved
	u.resolvedTargetID = targetID
	u.updatedAt = time.Now()
}

// Dismiss marks the track as skipped by the reviewer.
func (u *UnmatchedTrack) Dismiss() {
	u.status = UnmatchedDismissed
	u.updatedAt = time.Now()
}

// Restore rebuilds review state from persisted columns.
// Intended for repository scan methods only.
func (u *UnmatchedTrack) Restore(status UnmatchedStatus, resolvedTargetID string) {
	u.status = status
	u.resolvedTargetID = resolvedTargetID
}

// Validate checks required fields.
func (u *UnmatchedTrack) Validate() error {
	if u.sourceID == "" {
		return fmt.Errorf("source id is required")
	}
	if u.title == "" {
		return fmt.Errorf("title is required")
	}
	if u.syncType == "" {
		return fmt.Errorf("sync type is required")
	}
	return nil
}
