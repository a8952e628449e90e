package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/qsync/internal/formatter"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

// UnmatchedList prints the review queue with closest candidates.
func (r *Runner) UnmatchedList(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	status := models.UnmatchedStatus(cmd.String("status"))
	if cmd.Bool("all") {
		status = ""
	}

	tracks, err := store.Unmatched.List(status)
	if err != nil {
		return err
	}
	return r.writePlain("%s", formatter.UnmatchedToText(tracks))
}

// UnmatchedResolve records a manual match and favorites the chosen target
// track so the resolution takes effect immediately.
func (r *Runner) UnmatchedResolve(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	id := cmd.StringArg("id")
	targetID := cmd.StringArg("target")
	if id == "" || targetID == "" {
		return fmt.Errorf("%w: usage: qsync unmatched resolve <id> <target-track-id>", shared.ErrMissingArgument)
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	track, err := store.Unmatched.Get(id)
	if err != nil {
		return err
	}

	track.Resolve(targetID)
	if err := store.Unmatched.Update(track); err != nil {
		return err
	}

	_, target, err := r.buildLibraries(ctx)
	if err != nil {
		return err
	}
	if err := target.AddTrackFavorites(ctx, []string{targetID}); err != nil {
		return fmt.Errorf("resolution saved, but favoriting failed: %w", err)
	}
	if err := store.SyncState.MarkSynced(track.SyncType(), map[string]string{track.SourceID(): targetID}); err != nil {
		return err
	}

	return r.writePlain("Resolved %s - %s to target track %s.\n", track.Artist(), track.Title(), targetID)
}

// UnmatchedDismiss marks a track as not worth syncing.
func (r *Runner) UnmatchedDismiss(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: unmatched track id", shared.ErrMissingArgument)
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	track, err := store.Unmatched.Get(id)
	if err != nil {
		return err
	}

	track.Dismiss()
	if err := store.Unmatched.Update(track); err != nil {
		return err
	}
	return r.writePlain("Dismissed %s - %s.\n", track.Artist(), track.Title())
}

// UnmatchedExport writes the review queue to a CSV file.
func (r *Runner) UnmatchedExport(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	syncType := models.SyncType(cmd.String("sync-type"))
	tracks, err := store.Unmatched.List("")
	if err != nil {
		return err
	}

	filtered := tracks[:0]
	for _, track := range tracks {
		if track.SyncType() == syncType {
			filtered = append(filtered, track)
		}
	}

	path, err := formatter.WriteUnmatchedExport(filtered, syncType, cmd.String("output"))
	if err != nil {
		return err
	}
	return r.writePlain("Exported %d unmatched tracks to %s.\n", len(filtered), path)
}
