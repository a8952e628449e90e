// Package services implements the external catalog clients: Spotify as the
// source library and Qobuz as the target library.
package services

import (
	"context"

	"github.com/desertthunder/qsync/internal/match"
	"github.com/desertthunder/qsync/internal/models"
)

// TrackPage is one offset-addressed page of a track collection.
type TrackPage struct {
	Items []models.Track
	Total int
}

// AlbumPage is one offset-addressed page of an album collection.
type AlbumPage struct {
	Items []models.Album
	Total int
}

// PlaylistPage is one offset-addressed page of a playlist collection.
type PlaylistPage struct {
	Items []models.Playlist
	Total int
}

// SourceLibrary enumerates the user's collections in the source catalog.
// All listings are offset-addressable so that a chunked sync can persist and
// resume by numeric offset.
type SourceLibrary interface {
	// SavedTracks returns the user's liked tracks starting at offset.
	SavedTracks(ctx context.Context, offset, limit int) (*TrackPage, error)

	// SavedAlbums returns the user's saved albums starting at offset.
	SavedAlbums(ctx context.Context, offset, limit int) (*AlbumPage, error)

	// Playlists returns the user's playlists starting at offset.
	Playlists(ctx context.Context, offset, limit int) (*PlaylistPage, error)

	// PlaylistTracks returns one playlist's tracks starting at offset.
	PlaylistTracks(ctx context.Context, playlistID string, offset, limit int) (*TrackPage, error)
}

// TargetLibrary is the search-and-apply surface of the target catalog. It
// extends the matcher's search capability with the bulk reads and batched
// writes the sync orchestrator needs.
type TargetLibrary interface {
	match.Searcher

	// FavoriteTracksWithCodes returns the full ISRC→id map of the user's
	// favorited tracks, fetched in one bulk listing.
	FavoriteTracksWithCodes(ctx context.Context) (map[string]string, error)

	// FavoriteAlbumsWithCodes returns the full UPC→id map of the user's
	// favorited albums.
	FavoriteAlbumsWithCodes(ctx context.Context) (map[string]string, error)

	// AddTrackFavorites favorites the given track ids. Idempotent: ids
	// already favorited do not fail the batch.
	AddTrackFavorites(ctx context.Context, ids []string) error

	// AddAlbumFavorites favorites the given album ids. Idempotent.
	AddAlbumFavorites(ctx context.Context, ids []string) error

	// FindPlaylistByName returns the user's playlist with the given name,
	// or nil when none exists.
	FindPlaylistByName(ctx context.Context, name string) (*models.Playlist, error)

	// CreatePlaylist creates an empty playlist and returns it.
	CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error)

	// AddPlaylistTracks appends tracks to a playlist. Idempotent for tracks
	// already present.
	AddPlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// PlaylistTrackIDs returns the set of track ids already on a playlist.
	PlaylistTrackIDs(ctx context.Context, playlistID string) (map[string]bool, error)
}
