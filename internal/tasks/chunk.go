// package tasks implements the chunked sync orchestrator that drives
// matching over a paginated source collection.
//
// Each chunk invocation is stateless: it reconstructs working state from the
// persisted task (cumulative stats, synced-id set, offset), processes a
// bounded slice of the collection, and persists enough state to resume. That
// keeps the orchestrator safe under execution environments that recycle or
// distribute invocations.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/match"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
)

const (
	// DefaultChunkSize bounds matcher invocations per chunk for favorites
	// and album syncs.
	DefaultChunkSize = 50
	// DefaultPlaylistChunkSize bounds playlists per chunk; each playlist
	// fans out into many track matches.
	DefaultPlaylistChunkSize = 10
	// applyBatchSize groups confirmed matches per bulk write to the target.
	applyBatchSize = 25
	// cancelPollInterval throttles cancellation-flag reads.
	cancelPollInterval = 2 * time.Second
)

// Store is the persistence collaborator for task and sync state. All calls
// are synchronously consistent from the orchestrator's perspective.
type Store interface {
	// Task loads one sync task by id.
	Task(ctx context.Context, taskID string) (*models.SyncTask, error)

	// SaveTask persists the task's current status, stats, and chunk cursor.
	SaveTask(ctx context.Context, task *models.SyncTask) error

	// SyncedItems returns the set of source ids already applied for a sync
	// type, shared across runs.
	SyncedItems(ctx context.Context, syncType models.SyncType) (map[string]bool, error)

	// MarkSynced records source→target id pairs as applied.
	MarkSynced(ctx context.Context, syncType models.SyncType, pairs map[string]string) error

	// CancelRequested reads the task's cooperative cancellation flag.
	CancelRequested(ctx context.Context, taskID string) (bool, error)

	// SaveUnmatched upserts a reviewable unmatched record with suggestions.
	SaveUnmatched(ctx context.Context, syncType models.SyncType, track models.Track, suggestions []models.Suggestion) error

	// FailMigration marks the owning migration record failed.
	FailMigration(ctx context.Context, migrationID, message string) error

	// CompleteMigration marks the owning migration record completed with
	// its final report.
	CompleteMigration(ctx context.Context, migrationID string, report *models.SyncReport) error

	// PlaylistSnapshot returns the recorded (revision, target playlist id)
	// for a source playlist; empty strings when none is recorded.
	PlaylistSnapshot(ctx context.Context, playlistID string) (revision, targetID string, err error)

	// SavePlaylistSnapshot upserts a playlist's revision token and target
	// playlist id.
	SavePlaylistSnapshot(ctx context.Context, playlistID, revision, targetID string) error
}

// Options configures one orchestrator.
type Options struct {
	ChunkSize         int
	PlaylistChunkSize int
	DryRun            bool
	SkipUnchanged     bool
	Progress          Sink
}

// Orchestrator runs bounded sync chunks against the source and target
// catalogs. A single orchestrator serves one task at a time; distinct tasks
// may run concurrently on distinct orchestrators.
type Orchestrator struct {
	source  services.SourceLibrary
	target  services.TargetLibrary
	store   Store
	tracks  *match.TrackMatcher
	albums  *match.AlbumMatcher
	opts    Options
	logger  *log.Logger
}

func NewOrchestrator(source services.SourceLibrary, target services.TargetLibrary, store Store, tracks *match.TrackMatcher, albums *match.AlbumMatcher, opts Options, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		source: source,
		target: target,
		store:  store,
		tracks: tracks,
		albums: albums,
		opts:   opts,
		logger: logger,
	}
}

func (o *Orchestrator) chunkSize() int {
	if o.opts.ChunkSize > 0 {
		return o.opts.ChunkSize
	}
	return DefaultChunkSize
}

func (o *Orchestrator) playlistChunkSize() int {
	if o.opts.PlaylistChunkSize > 0 {
		return o.opts.PlaylistChunkSize
	}
	return DefaultPlaylistChunkSize
}

// RunChunk executes one bounded chunk of the task and returns the resulting
// chunk state. Any error or panic inside the chunk marks the task and its
// owning migration failed before returning.
func (o *Orchestrator) RunChunk(ctx context.Context, taskID string) (state *models.ChunkState, err error) {
	task, err := o.store.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status().Terminal() {
		return nil, fmt.Errorf("%w: task %s is %s", shared.ErrTaskTerminal, taskID, task.Status())
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunk panicked: %v", r)
		}
		if err != nil {
			o.failTask(ctx, task, err)
		}
	}()

	if err = task.MarkRunning(); err != nil {
		return nil, err
	}
	if err = o.store.SaveTask(ctx, task); err != nil {
		return nil, err
	}

	switch task.SyncType() {
	case models.SyncFavorites:
		return o.runFavoritesChunk(ctx, task)
	case models.SyncAlbums:
		return o.runAlbumsChunk(ctx, task)
	case models.SyncPlaylists:
		return o.runPlaylistsChunk(ctx, task)
	default:
		return nil, fmt.Errorf("%w: unknown sync type %q", shared.ErrInvalidInput, task.SyncType())
	}
}

// failTask persists the failed terminal state. Best effort: persistence
// errors here are logged, since the original failure already propagates.
func (o *Orchestrator) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if ferr := task.Fail(cause.Error()); ferr != nil {
		o.logger.Warn("task already terminal, not recording failure", "task", task.ID(), "error", ferr)
		return
	}
	if serr := o.store.SaveTask(ctx, task); serr != nil {
		o.logger.Error("failed to persist failed task", "task", task.ID(), "error", serr)
	}
	if merr := o.store.FailMigration(ctx, task.MigrationID(), cause.Error()); merr != nil {
		o.logger.Error("failed to mark migration failed", "migration", task.MigrationID(), "error", merr)
	}
}

// cancelPoller throttles cancellation-flag reads to bound query volume.
type cancelPoller struct {
	store     Store
	taskID    string
	last      time.Time
	cancelled bool
}

func (p *cancelPoller) check(ctx context.Context) (bool, error) {
	if p.cancelled {
		return true, nil
	}
	now := time.Now()
	if !p.last.IsZero() && now.Sub(p.last) < cancelPollInterval {
		return false, nil
	}
	p.last = now

	cancelled, err := p.store.CancelRequested(ctx, p.taskID)
	if err != nil {
		return false, err
	}
	p.cancelled = cancelled
	return cancelled, nil
}

// pendingTrack is one confirmed match awaiting batch apply.
type pendingTrack struct {
	sourceID  string
	targetID  string
	matchType models.MatchType
}

func (o *Orchestrator) runFavoritesChunk(ctx context.Context, task *models.SyncTask) (*models.ChunkState, error) {
	prev := task.Stats()
	tracker := NewTracker(o.opts.Progress)
	tracker.SetStats(prev)

	synced, err := o.store.SyncedItems(ctx, task.SyncType())
	if err != nil {
		return nil, err
	}

	// One bulk fetch per chunk builds the code fast path and the already
	// present set, instead of one round trip per item.
	codes, err := o.target.FavoriteTracksWithCodes(ctx)
	if err != nil {
		return nil, err
	}

	page, err := o.source.SavedTracks(ctx, task.NextOffset(), o.chunkSize())
	if err != nil {
		return nil, err
	}
	tracker.SetTotals(page.Total, 1)

	delta := models.CumulativeStats{}
	var pending []pendingTrack
	var applyErrors []string
	poller := &cancelPoller{store: o.store, taskID: task.ID()}

	cancelled := false
	processed := 0
	for i, item := range page.Items {
		stop, perr := poller.check(ctx)
		if perr != nil {
			return nil, perr
		}
		if stop {
			cancelled = true
			break
		}

		processed = i + 1
		tracker.SetPosition(task.NextOffset() + processed)

		if synced[item.ID] {
			continue
		}

		if item.ISRC != "" {
			if targetID, ok := codes[item.ISRC]; ok {
				if serr := o.markApplied(ctx, task.SyncType(), map[string]string{item.ID: targetID}); serr != nil {
					return nil, serr
				}
				delta.Matched++
				delta.ExactMatches++
				tracker.SetStats(prev.Add(delta))
				continue
			}
		}

		outcome, merr := o.tracks.Match(ctx, item, codes)
		if merr != nil {
			return nil, merr
		}

		if outcome.IsMatch() {
			pending = append(pending, pendingTrack{
				sourceID:  item.ID,
				targetID:  outcome.Matched.Track.ID,
				matchType: outcome.Matched.Type,
			})
			if len(pending) >= applyBatchSize {
				if ferr := o.flushTracks(ctx, task.SyncType(), pending, &delta, &applyErrors); ferr != nil {
					return nil, ferr
				}
				tracker.SetStats(prev.Add(delta))
				pending = pending[:0]
			}
			continue
		}

		delta.Unmatched++
		if serr := o.store.SaveUnmatched(ctx, task.SyncType(), item, outcome.Suggestions); serr != nil {
			return nil, serr
		}
		tracker.AddMissingItem(models.MissingItem{
			SourceID: item.ID,
			Title:    item.Title,
			Artist:   item.Artist,
			Album:    item.Album,
		})
		tracker.SetStats(prev.Add(delta))
	}

	if len(pending) > 0 {
		if ferr := o.flushTracks(ctx, task.SyncType(), pending, &delta, &applyErrors); ferr != nil {
			return nil, ferr
		}
		tracker.SetStats(prev.Add(delta))
	}

	return o.finishChunk(ctx, task, prev.Add(delta), page.Total, processed, cancelled, applyErrors)
}

// flushTracks applies one batch of confirmed matches. A target-side batch
// failure is recorded as an error string and its items are not marked
// synced, so a later run retries them; stats count only applied items.
func (o *Orchestrator) flushTracks(ctx context.Context, syncType models.SyncType, batch []pendingTrack, delta *models.CumulativeStats, applyErrors *[]string) error {
	if len(batch) == 0 {
		return nil
	}

	if !o.opts.DryRun {
		ids := make([]string, 0, len(batch))
		pairs := make(map[string]string, len(batch))
		for _, p := range batch {
			ids = append(ids, p.targetID)
			pairs[p.sourceID] = p.targetID
		}

		if err := o.applyBatch(ctx, syncType, ids); err != nil {
			o.logger.Warn("batch apply failed", "sync_type", syncType, "items", len(batch), "error", err)
			*applyErrors = append(*applyErrors, fmt.Sprintf("failed to apply batch of %d: %v", len(batch), err))
			return nil
		}
		if err := o.markApplied(ctx, syncType, pairs); err != nil {
			return err
		}
	}

	for _, p := range batch {
		delta.Matched++
		if p.matchType.IsExact() {
			delta.ExactMatches++
		} else {
			delta.FuzzyMatches++
		}
	}
	return nil
}

func (o *Orchestrator) applyBatch(ctx context.Context, syncType models.SyncType, ids []string) error {
	if syncType == models.SyncAlbums {
		return o.target.AddAlbumFavorites(ctx, ids)
	}
	return o.target.AddTrackFavorites(ctx, ids)
}

func (o *Orchestrator) markApplied(ctx context.Context, syncType models.SyncType, pairs map[string]string) error {
	if o.opts.DryRun {
		return nil
	}
	return o.store.MarkSynced(ctx, syncType, pairs)
}

// finishChunk persists the chunk boundary: cumulative stats, cursor, and the
// task's next status. A completed task carries the final cumulative report,
// not just the last chunk's delta.
func (o *Orchestrator) finishChunk(ctx context.Context, task *models.SyncTask, cumulative models.CumulativeStats, total, processed int, cancelled bool, applyErrors []string) (*models.ChunkState, error) {
	nextOffset := task.NextOffset() + processed
	state := models.ChunkState{
		NextOffset:     nextOffset,
		TotalItems:     total,
		ItemsProcessed: processed,
		HasMore:        nextOffset < total,
	}

	if cancelled {
		// The task goes terminal here; no further chunk may run, so the
		// remaining items do not count as pending work.
		state.HasMore = false
		if err := task.Cancel(cumulative); err != nil {
			return nil, err
		}
		if err := o.store.SaveTask(ctx, task); err != nil {
			return nil, err
		}
		o.logger.Info("sync cancelled by user", "task", task.ID(), "offset", nextOffset)
		return &state, nil
	}

	if state.HasMore {
		if err := task.MarkChunkComplete(cumulative, state); err != nil {
			return nil, err
		}
		if err := o.store.SaveTask(ctx, task); err != nil {
			return nil, err
		}
		return &state, nil
	}

	report := &models.SyncReport{
		SyncType:    task.SyncType(),
		DryRun:      o.opts.DryRun,
		StartedAt:   task.CreatedAt(),
		CompletedAt: time.Now(),
		Stats:       cumulative,
		TotalItems:  total,
		Errors:      applyErrors,
	}
	if err := task.Complete(report); err != nil {
		return nil, err
	}
	if err := o.store.SaveTask(ctx, task); err != nil {
		return nil, err
	}
	if err := o.store.CompleteMigration(ctx, task.MigrationID(), report); err != nil {
		return nil, err
	}
	return &state, nil
}

func (o *Orchestrator) runAlbumsChunk(ctx context.Context, task *models.SyncTask) (*models.ChunkState, error) {
	prev := task.Stats()
	tracker := NewTracker(o.opts.Progress)
	tracker.SetStats(prev)

	synced, err := o.store.SyncedItems(ctx, task.SyncType())
	if err != nil {
		return nil, err
	}

	codes, err := o.target.FavoriteAlbumsWithCodes(ctx)
	if err != nil {
		return nil, err
	}

	page, err := o.source.SavedAlbums(ctx, task.NextOffset(), o.chunkSize())
	if err != nil {
		return nil, err
	}
	tracker.SetTotals(page.Total, 1)

	delta := models.CumulativeStats{}
	var pending []pendingTrack
	var applyErrors []string
	poller := &cancelPoller{store: o.store, taskID: task.ID()}

	cancelled := false
	processed := 0
	for i, album := range page.Items {
		stop, perr := poller.check(ctx)
		if perr != nil {
			return nil, perr
		}
		if stop {
			cancelled = true
			break
		}

		processed = i + 1
		tracker.SetPosition(task.NextOffset() + processed)

		if synced[album.ID] {
			continue
		}

		if album.UPC != "" {
			if targetID, ok := codes[album.UPC]; ok {
				if serr := o.markApplied(ctx, task.SyncType(), map[string]string{album.ID: targetID}); serr != nil {
					return nil, serr
				}
				delta.Matched++
				delta.ExactMatches++
				tracker.SetStats(prev.Add(delta))
				continue
			}
		}

		found, merr := o.albums.Match(ctx, album, codes)
		if merr != nil {
			return nil, merr
		}

		if found != nil {
			pending = append(pending, pendingTrack{
				sourceID:  album.ID,
				targetID:  found.Album.ID,
				matchType: found.Type,
			})
			if len(pending) >= applyBatchSize {
				if ferr := o.flushTracks(ctx, task.SyncType(), pending, &delta, &applyErrors); ferr != nil {
					return nil, ferr
				}
				tracker.SetStats(prev.Add(delta))
				pending = pending[:0]
			}
			continue
		}

		delta.Unmatched++
		unmatched := models.Track{ID: album.ID, Title: album.Title, Artist: album.Artist}
		if serr := o.store.SaveUnmatched(ctx, task.SyncType(), unmatched, nil); serr != nil {
			return nil, serr
		}
		tracker.AddMissingItem(models.MissingItem{
			SourceID: album.ID,
			Title:    album.Title,
			Artist:   album.Artist,
		})
		tracker.SetStats(prev.Add(delta))
	}

	if len(pending) > 0 {
		if ferr := o.flushTracks(ctx, task.SyncType(), pending, &delta, &applyErrors); ferr != nil {
			return nil, ferr
		}
		tracker.SetStats(prev.Add(delta))
	}

	return o.finishChunk(ctx, task, prev.Add(delta), page.Total, processed, cancelled, applyErrors)
}
