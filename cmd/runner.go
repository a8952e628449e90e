package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/qsync/internal/match"
	"github.com/desertthunder/qsync/internal/repositories"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
	"github.com/desertthunder/qsync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer

	// Overridable in tests; nil means build real clients from config.
	source services.SourceLibrary
	target services.TargetLibrary
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
	Source services.SourceLibrary
	Target services.TargetLibrary
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
		source: opts.Source,
		target: opts.Target,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, statusCommand, unmatchedCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig swaps the runner's config for the one at path when it exists.
func (r *Runner) loadConfig(path string) error {
	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	r.config = config
	return nil
}

// openStore opens the configured database and wraps it in the composite
// store. The caller closes the returned handle.
func (r *Runner) openStore() (*sql.DB, *repositories.Store, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, repositories.NewStore(db), nil
}

// buildLibraries returns the source and target clients, honoring any test
// overrides set on the runner.
func (r *Runner) buildLibraries(ctx context.Context) (services.SourceLibrary, services.TargetLibrary, error) {
	source, target := r.source, r.target

	if source == nil {
		token, err := services.LoadSpotifyToken(r.tokenPath())
		if err != nil {
			return nil, nil, fmt.Errorf("%w (run `qsync auth spotify` first)", err)
		}
		source = services.NewSpotifyClient(ctx, r.config.Credentials.Spotify, token, r.logger)
	}
	if target == nil {
		target = services.NewQobuzClient(r.config.Credentials.Qobuz, r.logger)
	}
	return source, target, nil
}

// buildOrchestrator wires the matchers and orchestrator over the given
// collaborators.
func (r *Runner) buildOrchestrator(source services.SourceLibrary, target services.TargetLibrary, store *repositories.Store, opts tasks.Options) *tasks.Orchestrator {
	threshold := r.config.Sync.SuggestionThreshold
	if threshold <= 0 {
		threshold = match.SuggestionMinScore
	}

	trackMatcher := match.NewTrackMatcher(target, threshold, r.logger)
	albumMatcher := match.NewAlbumMatcher(target, r.logger)
	return tasks.NewOrchestrator(source, target, store, trackMatcher, albumMatcher, opts, r.logger)
}

// tokenPath is where the Spotify OAuth token lives.
func (r *Runner) tokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qsync/spotify_token.json"
	}
	return filepath.Join(home, ".qsync", "spotify_token.json")
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
