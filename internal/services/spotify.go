package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

const spotifyAPIBase = "https://api.spotify.com/v1"

// spotifyScopes covers library reads only; nothing is ever written back to
// the source account.
var spotifyScopes = []string{
	"user-library-read",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// SpotifyOAuthConfig builds the authorization-code flow configuration from
// app credentials.
func SpotifyOAuthConfig(conf shared.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		RedirectURL:  conf.RedirectURI,
		Scopes:       spotifyScopes,
		Endpoint:     spotify.Endpoint,
	}
}

// LoadSpotifyToken reads a persisted OAuth token.
func LoadSpotifyToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: no stored token at %s", shared.ErrNotAuthenticated, path)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse stored token: %w", err)
	}
	return &token, nil
}

// SaveSpotifyToken persists an OAuth token with owner-only permissions.
func SaveSpotifyToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// SpotifyClient reads the user's Spotify library. It implements
// SourceLibrary over the Web API's offset-paginated listing endpoints.
type SpotifyClient struct {
	http    *http.Client
	baseURL string
	logger  *log.Logger
}

// NewSpotifyClient builds a client whose underlying transport refreshes the
// access token automatically.
func NewSpotifyClient(ctx context.Context, conf shared.SpotifyConfig, token *oauth2.Token, logger *log.Logger) *SpotifyClient {
	return &SpotifyClient{
		http:    SpotifyOAuthConfig(conf).Client(ctx, token),
		baseURL: spotifyAPIBase,
		logger:  logger,
	}
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	DurationMS  int             `json:"duration_ms"`
	IsLocal     bool            `json:"is_local"`
	Artists     []spotifyArtist `json:"artists"`
	Album       struct {
		Name string `json:"name"`
	} `json:"album"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
}

type spotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	TotalTracks int             `json:"total_tracks"`
	ReleaseDate string          `json:"release_date"`
	ExternalIDs struct {
		UPC string `json:"upc"`
	} `json:"external_ids"`
}

type spotifyPlaylist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SnapshotID string `json:"snapshot_id"`
	Tracks     struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

func (c *SpotifyClient) SavedTracks(ctx context.Context, offset, limit int) (*TrackPage, error) {
	var payload struct {
		Total int `json:"total"`
		Items []struct {
			Track spotifyTrack `json:"track"`
		} `json:"items"`
	}
	if err := c.get(ctx, "/me/tracks", offset, limit, nil, &payload); err != nil {
		return nil, err
	}

	page := &TrackPage{Total: payload.Total}
	for _, item := range payload.Items {
		if item.Track.ID == "" {
			continue
		}
		page.Items = append(page.Items, mapSpotifyTrack(item.Track))
	}
	return page, nil
}

func (c *SpotifyClient) SavedAlbums(ctx context.Context, offset, limit int) (*AlbumPage, error) {
	var payload struct {
		Total int `json:"total"`
		Items []struct {
			Album spotifyAlbum `json:"album"`
		} `json:"items"`
	}
	if err := c.get(ctx, "/me/albums", offset, limit, nil, &payload); err != nil {
		return nil, err
	}

	page := &AlbumPage{Total: payload.Total}
	for _, item := range payload.Items {
		if item.Album.ID == "" {
			continue
		}
		page.Items = append(page.Items, mapSpotifyAlbum(item.Album))
	}
	return page, nil
}

func (c *SpotifyClient) Playlists(ctx context.Context, offset, limit int) (*PlaylistPage, error) {
	var payload struct {
		Total int               `json:"total"`
		Items []spotifyPlaylist `json:"items"`
	}
	if err := c.get(ctx, "/me/playlists", offset, limit, nil, &payload); err != nil {
		return nil, err
	}

	page := &PlaylistPage{Total: payload.Total}
	for _, item := range payload.Items {
		page.Items = append(page.Items, models.Playlist{
			ID:         item.ID,
			Name:       item.Name,
			TrackCount: item.Tracks.Total,
			Revision:   item.SnapshotID,
		})
	}
	return page, nil
}

func (c *SpotifyClient) PlaylistTracks(ctx context.Context, playlistID string, offset, limit int) (*TrackPage, error) {
	var payload struct {
		Total int `json:"total"`
		Items []struct {
			Track spotifyTrack `json:"track"`
		} `json:"items"`
	}
	extra := url.Values{"fields": {"total,items(track(id,name,duration_ms,is_local,artists(name),album(name),external_ids))"}}
	path := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	if err := c.get(ctx, path, offset, limit, extra, &payload); err != nil {
		return nil, err
	}

	page := &TrackPage{Total: payload.Total}
	for _, item := range payload.Items {
		// Local files and deleted episodes come back without ids; they
		// cannot be matched and are not counted.
		if item.Track.ID == "" || item.Track.IsLocal {
			page.Total--
			continue
		}
		page.Items = append(page.Items, mapSpotifyTrack(item.Track))
	}
	return page, nil
}

func (c *SpotifyClient) get(ctx context.Context, path string, offset, limit int, extra url.Values, out any) error {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	for key, values := range extra {
		for _, value := range values {
			query.Add(key, value)
		}
	}

	endpoint := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: spotify rejected the access token", shared.ErrTokenExpired)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: spotify rate limit hit", shared.ErrServiceUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: spotify returned %d for %s", shared.ErrAPIRequest, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode spotify response: %w", err)
	}

	c.logger.Debug("spotify page fetched", "path", path, "offset", offset, "limit", limit)
	return nil
}

func mapSpotifyTrack(t spotifyTrack) models.Track {
	track := models.Track{
		ID:         t.ID,
		Title:      t.Name,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
		ISRC:       strings.ToUpper(t.ExternalIDs.ISRC),
	}
	for i, artist := range t.Artists {
		if i == 0 {
			track.Artist = artist.Name
		}
		track.AllArtists = append(track.AllArtists, artist.Name)
	}
	return track
}

func mapSpotifyAlbum(a spotifyAlbum) models.Album {
	album := models.Album{
		ID:         a.ID,
		Title:      a.Name,
		TrackCount: a.TotalTracks,
		UPC:        a.ExternalIDs.UPC,
	}
	if len(a.Artists) > 0 {
		album.Artist = a.Artists[0].Name
	}
	// Release dates arrive as "2019", "2019-08", or "2019-08-30".
	if len(a.ReleaseDate) >= 4 {
		if year, err := strconv.Atoi(a.ReleaseDate[:4]); err == nil {
			album.ReleaseYear = year
		}
	}
	return album
}
