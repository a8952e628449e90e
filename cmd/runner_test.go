package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/repositories"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
)

// fakeSource serves a fixed library.
type fakeSource struct {
	tracks []models.Track
}

func (s *fakeSource) SavedTracks(_ context.Context, offset, limit int) (*services.TrackPage, error) {
	end := offset + limit
	if end > len(s.tracks) {
		end = len(s.tracks)
	}
	if offset > len(s.tracks) {
		offset = len(s.tracks)
	}
	return &services.TrackPage{Items: s.tracks[offset:end], Total: len(s.tracks)}, nil
}

func (s *fakeSource) SavedAlbums(_ context.Context, offset, limit int) (*services.AlbumPage, error) {
	return &services.AlbumPage{}, nil
}

func (s *fakeSource) Playlists(_ context.Context, offset, limit int) (*services.PlaylistPage, error) {
	return &services.PlaylistPage{}, nil
}

func (s *fakeSource) PlaylistTracks(_ context.Context, playlistID string, offset, limit int) (*services.TrackPage, error) {
	return &services.TrackPage{}, nil
}

// fakeTarget matches tracks by exact title and records applied favorites.
type fakeTarget struct {
	mu      sync.Mutex
	codes   map[string]string
	byTitle map[string]models.Track
	applied []string
}

func (t *fakeTarget) SearchTracks(_ context.Context, title, artist string) ([]models.Track, error) {
	if track, ok := t.byTitle[title]; ok {
		return []models.Track{track}, nil
	}
	return nil, nil
}

func (t *fakeTarget) SearchTrackByCode(_ context.Context, code, titleHint, artistHint string) (*models.Track, error) {
	return nil, nil
}

func (t *fakeTarget) SearchAlbums(_ context.Context, title, artist string) ([]models.Album, error) {
	return nil, nil
}

func (t *fakeTarget) SearchAlbumByCode(_ context.Context, code string) (*models.Album, error) {
	return nil, nil
}

func (t *fakeTarget) FavoriteTracksWithCodes(_ context.Context) (map[string]string, error) {
	return t.codes, nil
}

func (t *fakeTarget) FavoriteAlbumsWithCodes(_ context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (t *fakeTarget) AddTrackFavorites(_ context.Context, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = append(t.applied, ids...)
	return nil
}

func (t *fakeTarget) AddAlbumFavorites(_ context.Context, ids []string) error { return nil }

func (t *fakeTarget) FindPlaylistByName(_ context.Context, name string) (*models.Playlist, error) {
	return nil, nil
}

func (t *fakeTarget) CreatePlaylist(_ context.Context, name string) (*models.Playlist, error) {
	return &models.Playlist{ID: "tpl-1", Name: name}, nil
}

func (t *fakeTarget) AddPlaylistTracks(_ context.Context, playlistID string, trackIDs []string) error {
	return nil
}

func (t *fakeTarget) PlaylistTrackIDs(_ context.Context, playlistID string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func newTestEnv(t *testing.T) (*Runner, *bytes.Buffer, string, *fakeTarget) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "qsync.db")
	configPath := filepath.Join(dir, "config.toml")

	configBody := fmt.Sprintf("[database]\npath = %q\n\n[sync]\nchunk_size = 50\n", dbPath)
	if err := os.WriteFile(configPath, []byte(configBody), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	db, err := shared.NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	db.Close()

	source := &fakeSource{tracks: []models.Track{
		{ID: "sp1", Title: "Already There", Artist: "Band A", DurationMS: 200000, ISRC: "AAAAA0000001"},
		{ID: "sp2", Title: "Findable Song", Artist: "Band B", DurationMS: 210000},
		{ID: "sp3", Title: "No Hit", Artist: "Band C", DurationMS: 180000},
	}}
	target := &fakeTarget{
		codes: map[string]string{"AAAAA0000001": "qz1"},
		byTitle: map[string]models.Track{
			"Findable Song": {ID: "qz2", Title: "Findable Song", Artist: "Band B", DurationMS: 210500},
		},
	}

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Logger: log.New(io.Discard),
		Output: output,
		Source: source,
		Target: target,
	})
	return runner, output, configPath, target
}

func runCLI(t *testing.T, runner *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "qsync", Commands: runner.register()}
	return app.Run(context.Background(), append([]string{"qsync"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner with nil options uses defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		if runner.config == nil {
			t.Error("expected default config to be set")
		}
		if runner.logger == nil {
			t.Error("expected default logger to be set")
		}
		if runner.output == nil {
			t.Error("expected default output to be set")
		}
	})

	t.Run("register wires all top-level commands", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for _, command := range commands {
			names[command.Name] = true
		}
		for _, want := range []string{"setup", "auth", "sync", "status", "unmatched"} {
			if !names[want] {
				t.Errorf("missing command %q", want)
			}
		}
	})

	t.Run("loadConfig keeps defaults when the file is absent", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard)})
		before := runner.config
		if err := runner.loadConfig("does-not-exist.toml"); err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if runner.config != before {
			t.Error("expected config to be unchanged")
		}
	})
}

func TestSyncFavoritesCommand(t *testing.T) {
	runner, output, configPath, target := newTestEnv(t)

	if err := runCLI(t, runner, "sync", "favorites", "-c", configPath); err != nil {
		t.Fatalf("sync favorites failed: %v", err)
	}

	report := output.String()
	if !strings.Contains(report, "Matched: 2") {
		t.Errorf("report missing match count, got:\n%s", report)
	}
	if !strings.Contains(report, "Unmatched: 1") {
		t.Errorf("report missing unmatched count, got:\n%s", report)
	}
	if len(target.applied) != 1 || target.applied[0] != "qz2" {
		t.Errorf("applied = %v, want [qz2] (exact-code track already favorited)", target.applied)
	}

	t.Run("status shows the completed migration", func(t *testing.T) {
		output.Reset()
		if err := runCLI(t, runner, "status", "-c", configPath); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "completed") {
			t.Errorf("status output missing completed migration:\n%s", output.String())
		}
	})

	t.Run("unmatched list shows the miss", func(t *testing.T) {
		output.Reset()
		if err := runCLI(t, runner, "unmatched", "list", "-c", configPath); err != nil {
			t.Fatalf("unmatched list failed: %v", err)
		}
		if !strings.Contains(output.String(), "Band C - No Hit") {
			t.Errorf("listing missing unmatched track:\n%s", output.String())
		}
	})
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	runner, output, configPath, target := newTestEnv(t)

	if err := runCLI(t, runner, "sync", "favorites", "-c", configPath, "--dry-run"); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	if len(target.applied) != 0 {
		t.Errorf("applied = %v, want none on dry run", target.applied)
	}
	if !strings.Contains(output.String(), "(dry run)") {
		t.Errorf("report missing dry run label:\n%s", output.String())
	}
}

func TestSyncCancelRequiresTaskID(t *testing.T) {
	runner, _, configPath, _ := newTestEnv(t)

	err := runCLI(t, runner, "sync", "cancel", "-c", configPath)
	if err == nil {
		t.Fatal("expected error without a task id")
	}
}

func TestSyncResumeCancelledMidRun(t *testing.T) {
	runner, output, configPath, target := newTestEnv(t)

	dbPath := filepath.Join(filepath.Dir(configPath), "qsync.db")
	db, err := shared.NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store := repositories.NewStore(db)
	task, _, err := store.StartMigration(models.SyncFavorites, false)
	if err != nil {
		t.Fatalf("failed to start migration: %v", err)
	}
	if err := store.Tasks.RequestCancel(task.ID()); err != nil {
		t.Fatalf("failed to request cancellation: %v", err)
	}
	db.Close()

	if err := runCLI(t, runner, "sync", "resume", task.ID(), "-c", configPath); err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if !strings.Contains(output.String(), "Sync cancelled") {
		t.Errorf("output missing cancellation notice:\n%s", output.String())
	}
	if len(target.applied) != 0 {
		t.Errorf("applied = %v, want none after cancellation", target.applied)
	}

	db, err = shared.NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()
	got, err := repositories.NewStore(db).Tasks.Get(task.ID())
	if err != nil {
		t.Fatalf("failed to load task: %v", err)
	}
	if got.Status() != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status())
	}
}
