// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// syncCommand runs chunked library syncs from Spotify to Qobuz
func syncCommand(r *Runner) *cli.Command {
	syncFlags := []cli.Flag{
		configFlag(),
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Match everything but write nothing to Qobuz",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Items (or playlists) processed per chunk",
		},
	}

	return &cli.Command{
		Name:  "sync",
		Usage: "Sync Spotify collections to Qobuz",
		Commands: []*cli.Command{
			{
				Name:   "favorites",
				Usage:  "Sync liked tracks to Qobuz favorites",
				Flags:  syncFlags,
				Action: r.SyncFavorites,
			},
			{
				Name:   "albums",
				Usage:  "Sync saved albums to Qobuz favorites",
				Flags:  syncFlags,
				Action: r.SyncAlbums,
			},
			{
				Name:  "playlists",
				Usage: "Recreate Spotify playlists on Qobuz",
				Flags: append(syncFlags,
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-sync playlists even when their revision is unchanged",
					},
				),
				Action: r.SyncPlaylists,
			},
			{
				Name:  "resume",
				Usage: "Resume an interrupted sync task",
				Flags: []cli.Flag{configFlag()},
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "task"},
				},
				Action: r.SyncResume,
			},
			{
				Name:  "cancel",
				Usage: "Request cancellation of a running sync task",
				Flags: []cli.Flag{configFlag()},
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "task"},
				},
				Action: r.SyncCancel,
			},
		},
	}
}

// statusCommand inspects sync tasks and migration history
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show sync tasks and migration history",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of migrations to list",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the latest report as JSON",
			},
		},
		Action: r.Status,
	}
}

// unmatchedCommand manages the review queue of tracks no strategy matched
func unmatchedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "unmatched",
		Usage: "Review tracks that could not be matched",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List unmatched tracks with their closest candidates",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by review status (pending, resolved, dismissed)",
						Value: "pending",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include every review status",
					},
				},
				Action: r.UnmatchedList,
			},
			{
				Name:  "resolve",
				Usage: "Record a manual match for an unmatched track",
				Flags: []cli.Flag{configFlag()},
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "target"},
				},
				Action: r.UnmatchedResolve,
			},
			{
				Name:  "dismiss",
				Usage: "Mark an unmatched track as not worth syncing",
				Flags: []cli.Flag{configFlag()},
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.UnmatchedDismiss,
			},
			{
				Name:  "export",
				Usage: "Export the review queue to CSV",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
					&cli.StringFlag{
						Name:  "sync-type",
						Usage: "Sync type to export (favorites, albums, playlists)",
						Value: "favorites",
					},
				},
				Action: r.UnmatchedExport,
			},
		},
	}
}

// authCommand handles credentials for both catalogs
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Spotify and Qobuz",
		Commands: []*cli.Command{
			{
				Name:  "spotify",
				Usage: "Authenticate with Spotify using OAuth2",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Local address for the OAuth callback",
						Value: "127.0.0.1:8888",
					},
				},
				Action: r.AuthSpotify,
			},
			{
				Name:  "qobuz",
				Usage: "Extract Qobuz session credentials from a copied cURL request",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "File containing a cURL command copied from the Qobuz web player",
					},
				},
				Action: r.AuthQobuz,
			},
		},
	}
}
