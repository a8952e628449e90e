package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Status lists resumable tasks and recent migrations.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return err
	}

	db, store, err := r.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	resumable, err := store.Tasks.ListResumable()
	if err != nil {
		return err
	}

	if len(resumable) > 0 {
		r.writePlain("In-progress tasks:\n")
		for _, task := range resumable {
			r.writePlain("  %s  %s  %s  offset %d/%d\n",
				task.ID(), task.SyncType(), task.Status(), task.NextOffset(), task.TotalItems())
		}
		r.writePlain("\n")
	}

	migrations, err := store.Migrations.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(migrations) == 0 && len(resumable) == 0 {
		return r.writePlain("No syncs recorded yet.\n")
	}

	if cmd.Bool("json") {
		for _, migration := range migrations {
			if migration.ReportJSON() != "" {
				return r.writePlain("%s\n", migration.ReportJSON())
			}
		}
		return r.writePlain("No completed sync report available.\n")
	}

	r.writePlain("Recent migrations:\n")
	for _, migration := range migrations {
		line := migration.Status()
		if migration.DryRun() {
			line += " (dry run)"
		}
		stats := migration.Stats()
		r.writePlain("  #%d  %s  %s  matched %d  unmatched %d",
			migration.Sequence(), migration.SyncType(), line, stats.Matched, stats.Unmatched)
		if migration.ErrorMessage() != "" {
			r.writePlain("  error: %s", migration.ErrorMessage())
		}
		r.writePlain("\n")
	}

	return nil
}
