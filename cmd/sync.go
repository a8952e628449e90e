package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/qsync/internal/formatter"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/repositories"
	"github.com/desertthunder/qsync/internal/shared"
	"github.com/desertthunder/qsync/internal/tasks"
)

// SyncFavorites syncs liked tracks to Qobuz favorites.
func (r *Runner) SyncFavorites(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, models.SyncFavorites)
}

// SyncAlbums syncs saved albums to Qobuz favorites.
func (r *Runner) SyncAlbums(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, models.SyncAlbums)
}

// SyncPlaylists recreates Spotify playlists on Qobuz.
func (r *Runner) SyncPlaylists(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, models.SyncPlaylists)
}

func (r *Runner) runSync(ctx context.Context, cmd *cli.Command, syncType models.SyncType) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if swept, err := store.Tasks.SweepStaleTasks(); err != nil {
		r.logger.Warn("stale task sweep failed", "error", err)
	} else if swept > 0 {
		r.logger.Info("marked stale tasks failed", "count", swept)
	}

	dryRun := cmd.Bool("dry-run")
	task, migration, err := store.StartMigration(syncType, dryRun)
	if err != nil {
		return fmt.Errorf("failed to start migration: %w", err)
	}

	r.logger.Info("sync started", "type", syncType, "task", task.ID(), "migration", migration.ID(), "dry_run", dryRun)
	return r.driveTask(ctx, cmd, store, task.ID(), syncType)
}

// SyncResume picks up a non-terminal task where its last chunk stopped.
func (r *Runner) SyncResume(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	taskID := cmd.StringArg("task")
	if taskID == "" {
		// No id given: resume the oldest resumable task.
		resumable, err := store.Tasks.ListResumable()
		if err != nil {
			return err
		}
		if len(resumable) == 0 {
			return r.writePlain("Nothing to resume.\n")
		}
		taskID = resumable[0].ID()
	}

	task, err := store.Tasks.Get(taskID)
	if err != nil {
		return err
	}
	if task.Status().Terminal() {
		return fmt.Errorf("%w: task %s is %s", shared.ErrTaskTerminal, taskID, task.Status())
	}

	r.logger.Info("resuming sync", "task", task.ID(), "type", task.SyncType(), "offset", task.NextOffset())
	return r.driveTask(ctx, cmd, store, task.ID(), task.SyncType())
}

// SyncCancel sets the cooperative cancellation flag; the running chunk
// observes it within its poll interval.
func (r *Runner) SyncCancel(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	taskID := cmd.StringArg("task")
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	if err := store.Tasks.RequestCancel(taskID); err != nil {
		return err
	}
	return r.writePlain("Cancellation requested for task %s.\n", taskID)
}

// driveTask runs chunks until the task reaches a terminal state, rendering
// progress between chunk boundaries.
func (r *Runner) driveTask(ctx context.Context, cmd *cli.Command, store *repositories.Store, taskID string, syncType models.SyncType) error {
	source, target, err := r.buildLibraries(ctx)
	if err != nil {
		return err
	}

	opts := tasks.Options{
		ChunkSize:         r.config.Sync.ChunkSize,
		PlaylistChunkSize: r.config.Sync.PlaylistChunkSize,
		DryRun:            cmd.Bool("dry-run"),
		SkipUnchanged:     r.config.Sync.SkipUnchanged && !cmd.Bool("force"),
		Progress:          r.progressSink(),
	}
	if size := cmd.Int("chunk-size"); size > 0 {
		if syncType == models.SyncPlaylists {
			opts.PlaylistChunkSize = int(size)
		} else {
			opts.ChunkSize = int(size)
		}
	}

	orchestrator := r.buildOrchestrator(source, target, store, opts)

	for {
		state, err := orchestrator.RunChunk(ctx, taskID)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		if state.HasMore {
			r.logger.Info("chunk complete", "processed", state.ItemsProcessed, "next_offset", state.NextOffset, "total", state.TotalItems)
			continue
		}
		break
	}

	task, err := store.Tasks.Get(taskID)
	if err != nil {
		return err
	}

	switch task.Status() {
	case models.StatusCancelled:
		r.writePlain("\n")
		return r.writePlain("Sync cancelled after %d of %d items. Already-synced items will be skipped on the next run.\n", task.NextOffset(), task.TotalItems())
	case models.StatusCompleted:
		r.writePlain("\n")
		if report := task.Report(); report != nil {
			return r.writePlain("%s", formatter.ReportToText(report))
		}
		return r.writePlain("Sync complete.\n")
	default:
		return fmt.Errorf("task finished in unexpected state %s", task.Status())
	}
}

// progressSink renders one status line per processed item.
func (r *Runner) progressSink() tasks.Sink {
	return func(snapshot models.ProgressSnapshot) {
		if snapshot.CurrentPlaylist != "" {
			r.writePlain("\r[%3.0f%%] %s (%d/%d) item %d/%d  matched %d  unmatched %d   ",
				snapshot.PercentComplete,
				snapshot.CurrentPlaylist,
				snapshot.CurrentPlaylistIndex+1,
				snapshot.TotalPlaylists,
				snapshot.CurrentItemIndex,
				snapshot.TotalItems,
				snapshot.Stats.Matched,
				snapshot.Stats.Unmatched,
			)
			return
		}
		r.writePlain("\r[%3.0f%%] item %d/%d  matched %d  unmatched %d   ",
			snapshot.PercentComplete,
			snapshot.CurrentItemIndex,
			snapshot.TotalItems,
			snapshot.Stats.Matched,
			snapshot.Stats.Unmatched,
		)
	}
}
