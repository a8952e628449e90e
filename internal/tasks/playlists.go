package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/qsync/internal/models"
)

// playlistNameSuffix marks playlists this tool created in the target catalog.
const playlistNameSuffix = " (from Spotify)"

// playlistPageSize bounds per-playlist track listing reads.
const playlistPageSize = 50

// runPlaylistsChunk processes up to playlistChunkSize source playlists. A
// playlist is the unit of chunking here; each one is synced to completion
// before the next, so the persisted offset always sits on a playlist
// boundary.
func (o *Orchestrator) runPlaylistsChunk(ctx context.Context, task *models.SyncTask) (*models.ChunkState, error) {
	prev := task.Stats()
	tracker := NewTracker(o.opts.Progress)
	tracker.SetStats(prev)

	synced, err := o.store.SyncedItems(ctx, task.SyncType())
	if err != nil {
		return nil, err
	}

	// The favorites code map still serves the matcher's exact fast path
	// even though playlist membership is tracked separately.
	codes, err := o.target.FavoriteTracksWithCodes(ctx)
	if err != nil {
		return nil, err
	}

	page, err := o.source.Playlists(ctx, task.NextOffset(), o.playlistChunkSize())
	if err != nil {
		return nil, err
	}
	tracker.SetTotals(0, page.Total)

	delta := models.CumulativeStats{}
	var applyErrors []string
	poller := &cancelPoller{store: o.store, taskID: task.ID()}

	cancelled := false
	processed := 0
	for i, pl := range page.Items {
		stop, perr := poller.check(ctx)
		if perr != nil {
			return nil, perr
		}
		if stop {
			cancelled = true
			break
		}

		if o.opts.SkipUnchanged && pl.Revision != "" {
			revision, targetID, serr := o.store.PlaylistSnapshot(ctx, pl.ID)
			if serr != nil {
				return nil, serr
			}
			if revision == pl.Revision && targetID != "" {
				processed = i + 1
				delta.PlaylistsSkipped++
				tracker.SetStats(prev.Add(delta))
				o.logger.Debug("playlist unchanged, skipping", "playlist", pl.Name, "revision", revision)
				continue
			}
		}

		tracker.SetPlaylist(pl.Name, task.NextOffset()+i)
		targetID, plCancelled, serr := o.syncPlaylist(ctx, task, pl, codes, synced, tracker, prev, &delta, &applyErrors, poller)
		if serr != nil {
			return nil, serr
		}
		if plCancelled {
			cancelled = true
			break
		}

		processed = i + 1
		if !o.opts.DryRun && targetID != "" && pl.Revision != "" {
			if serr := o.store.SavePlaylistSnapshot(ctx, pl.ID, pl.Revision, targetID); serr != nil {
				return nil, serr
			}
		}
	}

	return o.finishChunk(ctx, task, prev.Add(delta), page.Total, processed, cancelled, applyErrors)
}

// syncPlaylist matches and applies every track of one source playlist. The
// returned target id identifies the playlist written to, empty on a dry run
// that would have created one.
func (o *Orchestrator) syncPlaylist(ctx context.Context, task *models.SyncTask, pl models.Playlist, codes map[string]string, synced map[string]bool, tracker *Tracker, prev models.CumulativeStats, delta *models.CumulativeStats, applyErrors *[]string, poller *cancelPoller) (string, bool, error) {
	name := pl.Name + playlistNameSuffix
	target, err := o.target.FindPlaylistByName(ctx, name)
	if err != nil {
		return "", false, err
	}
	if target == nil && !o.opts.DryRun {
		target, err = o.target.CreatePlaylist(ctx, name)
		if err != nil {
			return "", false, err
		}
	}

	present := map[string]bool{}
	targetID := ""
	if target != nil {
		targetID = target.ID
		present, err = o.target.PlaylistTrackIDs(ctx, targetID)
		if err != nil {
			return "", false, err
		}
	}

	var pending []pendingTrack
	offset := 0
	for {
		tp, err := o.source.PlaylistTracks(ctx, pl.ID, offset, playlistPageSize)
		if err != nil {
			return "", false, err
		}
		tracker.SetTotals(tp.Total, tracker.Snapshot().TotalPlaylists)

		for j, track := range tp.Items {
			stop, perr := poller.check(ctx)
			if perr != nil {
				return "", false, perr
			}
			if stop {
				if ferr := o.flushPlaylistTracks(ctx, task.SyncType(), targetID, pending, delta, applyErrors); ferr != nil {
					return "", false, ferr
				}
				tracker.SetStats(prev.Add(*delta))
				return targetID, true, nil
			}

			tracker.SetPosition(offset + j + 1)

			itemKey := pl.ID + ":" + track.ID
			if synced[itemKey] {
				continue
			}

			outcome, merr := o.tracks.Match(ctx, track, codes)
			if merr != nil {
				return "", false, merr
			}

			if !outcome.IsMatch() {
				delta.Unmatched++
				if serr := o.store.SaveUnmatched(ctx, task.SyncType(), track, outcome.Suggestions); serr != nil {
					return "", false, serr
				}
				tracker.AddMissingItem(models.MissingItem{
					SourceID: track.ID,
					Title:    track.Title,
					Artist:   track.Artist,
					Album:    track.Album,
				})
				tracker.SetStats(prev.Add(*delta))
				continue
			}

			matched := outcome.Matched
			if present[matched.Track.ID] {
				if serr := o.markApplied(ctx, task.SyncType(), map[string]string{itemKey: matched.Track.ID}); serr != nil {
					return "", false, serr
				}
				delta.Matched++
				if matched.Type.IsExact() {
					delta.ExactMatches++
				} else {
					delta.FuzzyMatches++
				}
				tracker.SetStats(prev.Add(*delta))
				continue
			}

			pending = append(pending, pendingTrack{
				sourceID:  itemKey,
				targetID:  matched.Track.ID,
				matchType: matched.Type,
			})
			if len(pending) >= applyBatchSize {
				if ferr := o.flushPlaylistTracks(ctx, task.SyncType(), targetID, pending, delta, applyErrors); ferr != nil {
					return "", false, ferr
				}
				tracker.SetStats(prev.Add(*delta))
				pending = pending[:0]
			}
		}

		offset += len(tp.Items)
		if offset >= tp.Total || len(tp.Items) == 0 {
			break
		}
	}

	if ferr := o.flushPlaylistTracks(ctx, task.SyncType(), targetID, pending, delta, applyErrors); ferr != nil {
		return "", false, ferr
	}
	tracker.SetStats(prev.Add(*delta))
	return targetID, false, nil
}

// flushPlaylistTracks appends one batch of matched tracks to the target
// playlist, with the same retry-on-next-run semantics as favorites batches.
func (o *Orchestrator) flushPlaylistTracks(ctx context.Context, syncType models.SyncType, playlistID string, batch []pendingTrack, delta *models.CumulativeStats, applyErrors *[]string) error {
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

		if err := o.target.AddPlaylistTracks(ctx, playlistID, ids); err != nil {
			o.logger.Warn("playlist batch apply failed", "playlist", playlistID, "items", len(batch), "error", err)
			*applyErrors = append(*applyErrors, fmt.Sprintf("failed to add batch of %d tracks to playlist: %v", len(batch), err))
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
