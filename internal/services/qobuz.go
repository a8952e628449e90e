package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

const (
	qobuzAPIBase = "https://www.qobuz.com/api.json/0.2"

	// qobuzSearchLimit caps candidates per search; the matcher scores them
	// all, so a deep page only adds noise.
	qobuzSearchLimit = 15

	// qobuzFavoritesPageSize is the bulk listing page size for the
	// favorites code index.
	qobuzFavoritesPageSize = 500
)

// qobuzRequestRate throttles outbound calls. The web API tolerates bursts
// poorly and starts returning 429s well below its documented ceiling.
var qobuzRequestRate = rate.Limit(8)

// QobuzClient talks to the Qobuz web API with session credentials. It
// implements TargetLibrary: the matcher's search surface plus the bulk
// favorite and playlist writes.
type QobuzClient struct {
	http    *http.Client
	baseURL string
	appID   string
	token   string
	limiter *rate.Limiter
	logger  *log.Logger
}

func NewQobuzClient(conf shared.QobuzConfig, logger *log.Logger) *QobuzClient {
	return &QobuzClient{
		http:    &http.Client{},
		baseURL: qobuzAPIBase,
		appID:   conf.AppID,
		token:   conf.UserAuthToken,
		limiter: rate.NewLimiter(qobuzRequestRate, 1),
		logger:  logger,
	}
}

type qobuzTrack struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Version   string `json:"version"`
	Duration  int    `json:"duration"`
	ISRC      string `json:"isrc"`
	Performer struct {
		Name string `json:"name"`
	} `json:"performer"`
	Performers string `json:"performers"`
	Album      struct {
		Title string `json:"title"`
	} `json:"album"`
}

type qobuzAlbum struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	UPC         string `json:"upc"`
	TracksCount int    `json:"tracks_count"`
	ReleaseDate string `json:"release_date_original"`
	Artist      struct {
		Name string `json:"name"`
	} `json:"artist"`
}

type qobuzPlaylist struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	TracksCount int    `json:"tracks_count"`
}

func (c *QobuzClient) SearchTracks(ctx context.Context, title, artist string) ([]models.Track, error) {
	query := strings.TrimSpace(title + " " + artist)
	var payload struct {
		Tracks struct {
			Items []qobuzTrack `json:"items"`
		} `json:"tracks"`
	}
	err := c.call(ctx, "track/search", url.Values{
		"query": {query},
		"limit": {strconv.Itoa(qobuzSearchLimit)},
	}, &payload)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(payload.Tracks.Items))
	for _, item := range payload.Tracks.Items {
		tracks = append(tracks, mapQobuzTrack(item))
	}
	return tracks, nil
}

// SearchTrackByCode searches with the title and artist hints and returns
// the candidate whose recording code matches exactly. The API has no direct
// code lookup, so a hint search filtered on the code is the closest
// equivalent.
func (c *QobuzClient) SearchTrackByCode(ctx context.Context, code, titleHint, artistHint string) (*models.Track, error) {
	candidates, err := c.SearchTracks(ctx, titleHint, artistHint)
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		if candidate.ISRC != "" && strings.EqualFold(candidate.ISRC, code) {
			return &candidate, nil
		}
	}
	return nil, nil
}

func (c *QobuzClient) SearchAlbums(ctx context.Context, title, artist string) ([]models.Album, error) {
	query := strings.TrimSpace(title + " " + artist)
	var payload struct {
		Albums struct {
			Items []qobuzAlbum `json:"items"`
		} `json:"albums"`
	}
	err := c.call(ctx, "album/search", url.Values{
		"query": {query},
		"limit": {strconv.Itoa(qobuzSearchLimit)},
	}, &payload)
	if err != nil {
		return nil, err
	}

	albums := make([]models.Album, 0, len(payload.Albums.Items))
	for _, item := range payload.Albums.Items {
		albums = append(albums, mapQobuzAlbum(item))
	}
	return albums, nil
}

func (c *QobuzClient) SearchAlbumByCode(ctx context.Context, code string) (*models.Album, error) {
	var payload struct {
		Albums struct {
			Items []qobuzAlbum `json:"items"`
		} `json:"albums"`
	}
	err := c.call(ctx, "album/search", url.Values{
		"query": {code},
		"limit": {strconv.Itoa(qobuzSearchLimit)},
	}, &payload)
	if err != nil {
		return nil, err
	}

	for _, item := range payload.Albums.Items {
		if item.UPC != "" && item.UPC == code {
			album := mapQobuzAlbum(item)
			return &album, nil
		}
	}
	return nil, nil
}

func (c *QobuzClient) FavoriteTracksWithCodes(ctx context.Context) (map[string]string, error) {
	codes := make(map[string]string)
	for offset := 0; ; offset += qobuzFavoritesPageSize {
		var payload struct {
			Tracks struct {
				Total int          `json:"total"`
				Items []qobuzTrack `json:"items"`
			} `json:"tracks"`
		}
		err := c.call(ctx, "favorite/getUserFavorites", url.Values{
			"type":   {"tracks"},
			"limit":  {strconv.Itoa(qobuzFavoritesPageSize)},
			"offset": {strconv.Itoa(offset)},
		}, &payload)
		if err != nil {
			return nil, err
		}

		for _, item := range payload.Tracks.Items {
			if item.ISRC != "" {
				codes[strings.ToUpper(item.ISRC)] = strconv.FormatInt(item.ID, 10)
			}
		}
		if offset+qobuzFavoritesPageSize >= payload.Tracks.Total {
			return codes, nil
		}
	}
}

func (c *QobuzClient) FavoriteAlbumsWithCodes(ctx context.Context) (map[string]string, error) {
	codes := make(map[string]string)
	for offset := 0; ; offset += qobuzFavoritesPageSize {
		var payload struct {
			Albums struct {
				Total int          `json:"total"`
				Items []qobuzAlbum `json:"items"`
			} `json:"albums"`
		}
		err := c.call(ctx, "favorite/getUserFavorites", url.Values{
			"type":   {"albums"},
			"limit":  {strconv.Itoa(qobuzFavoritesPageSize)},
			"offset": {strconv.Itoa(offset)},
		}, &payload)
		if err != nil {
			return nil, err
		}

		for _, item := range payload.Albums.Items {
			if item.UPC != "" {
				codes[item.UPC] = item.ID
			}
		}
		if offset+qobuzFavoritesPageSize >= payload.Albums.Total {
			return codes, nil
		}
	}
}

func (c *QobuzClient) AddTrackFavorites(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var payload struct {
		Status string `json:"status"`
	}
	err := c.call(ctx, "favorite/create", url.Values{
		"track_ids": {strings.Join(ids, ",")},
	}, &payload)
	if err != nil {
		return err
	}
	c.logger.Debug("favorited tracks", "count", len(ids))
	return nil
}

func (c *QobuzClient) AddAlbumFavorites(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var payload struct {
		Status string `json:"status"`
	}
	err := c.call(ctx, "favorite/create", url.Values{
		"album_ids": {strings.Join(ids, ",")},
	}, &payload)
	if err != nil {
		return err
	}
	c.logger.Debug("favorited albums", "count", len(ids))
	return nil
}

func (c *QobuzClient) FindPlaylistByName(ctx context.Context, name string) (*models.Playlist, error) {
	for offset := 0; ; offset += qobuzFavoritesPageSize {
		var payload struct {
			Playlists struct {
				Total int             `json:"total"`
				Items []qobuzPlaylist `json:"items"`
			} `json:"playlists"`
		}
		err := c.call(ctx, "playlist/getUserPlaylists", url.Values{
			"limit":  {strconv.Itoa(qobuzFavoritesPageSize)},
			"offset": {strconv.Itoa(offset)},
		}, &payload)
		if err != nil {
			return nil, err
		}

		for _, item := range payload.Playlists.Items {
			if item.Name == name {
				return &models.Playlist{
					ID:         strconv.FormatInt(item.ID, 10),
					Name:       item.Name,
					TrackCount: item.TracksCount,
				}, nil
			}
		}
		if offset+qobuzFavoritesPageSize >= payload.Playlists.Total {
			return nil, nil
		}
	}
}

func (c *QobuzClient) CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error) {
	var payload qobuzPlaylist
	err := c.call(ctx, "playlist/create", url.Values{
		"name":      {name},
		"is_public": {"false"},
	}, &payload)
	if err != nil {
		return nil, err
	}
	return &models.Playlist{
		ID:   strconv.FormatInt(payload.ID, 10),
		Name: payload.Name,
	}, nil
}

func (c *QobuzClient) AddPlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	var payload qobuzPlaylist
	err := c.call(ctx, "playlist/addTracks", url.Values{
		"playlist_id":  {playlistID},
		"track_ids":    {strings.Join(trackIDs, ",")},
		"no_duplicate": {"true"},
	}, &payload)
	if err != nil {
		return err
	}
	c.logger.Debug("added playlist tracks", "playlist", playlistID, "count", len(trackIDs))
	return nil
}

func (c *QobuzClient) PlaylistTrackIDs(ctx context.Context, playlistID string) (map[string]bool, error) {
	present := make(map[string]bool)
	for offset := 0; ; offset += qobuzFavoritesPageSize {
		var payload struct {
			Tracks struct {
				Total int          `json:"total"`
				Items []qobuzTrack `json:"items"`
			} `json:"tracks"`
		}
		err := c.call(ctx, "playlist/get", url.Values{
			"playlist_id": {playlistID},
			"extra":       {"tracks"},
			"limit":       {strconv.Itoa(qobuzFavoritesPageSize)},
			"offset":      {strconv.Itoa(offset)},
		}, &payload)
		if err != nil {
			return nil, err
		}

		for _, item := range payload.Tracks.Items {
			present[strconv.FormatInt(item.ID, 10)] = true
		}
		if offset+qobuzFavoritesPageSize >= payload.Tracks.Total {
			return present, nil
		}
	}
}

func (c *QobuzClient) call(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.token == "" || c.appID == "" {
		return fmt.Errorf("%w: qobuz session credentials not configured", shared.ErrMissingCredentials)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-App-Id", c.appID)
	req.Header.Set("X-User-Auth-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: qobuz rejected the session token", shared.ErrInvalidCredentials)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: qobuz rate limit hit", shared.ErrServiceUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: qobuz returned %d for %s", shared.ErrAPIRequest, resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode qobuz response: %w", err)
	}
	return nil
}

func mapQobuzTrack(t qobuzTrack) models.Track {
	title := t.Title
	if t.Version != "" {
		title = title + " (" + t.Version + ")"
	}

	track := models.Track{
		ID:         strconv.FormatInt(t.ID, 10),
		Title:      title,
		Artist:     t.Performer.Name,
		Album:      t.Album.Title,
		DurationMS: t.Duration * 1000,
		ISRC:       strings.ToUpper(t.ISRC),
	}
	if track.Artist != "" {
		track.AllArtists = []string{track.Artist}
	}
	return track
}

func mapQobuzAlbum(a qobuzAlbum) models.Album {
	album := models.Album{
		ID:         a.ID,
		Title:      a.Title,
		Artist:     a.Artist.Name,
		TrackCount: a.TracksCount,
		UPC:        a.UPC,
	}
	if len(a.ReleaseDate) >= 4 {
		if year, err := strconv.Atoi(a.ReleaseDate[:4]); err == nil {
			album.ReleaseYear = year
		}
	}
	return album
}
