package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/match"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
)

type fakeSource struct {
	tracks         []models.Track
	albums         []models.Album
	playlists      []models.Playlist
	playlistTracks map[string][]models.Track
	err            error
}

func (s *fakeSource) SavedTracks(_ context.Context, offset, limit int) (*services.TrackPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	items, total := pageSlice(len(s.tracks), offset, limit)
	return &services.TrackPage{Items: s.tracks[items[0]:items[1]], Total: total}, nil
}

func (s *fakeSource) SavedAlbums(_ context.Context, offset, limit int) (*services.AlbumPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	items, total := pageSlice(len(s.albums), offset, limit)
	return &services.AlbumPage{Items: s.albums[items[0]:items[1]], Total: total}, nil
}

func (s *fakeSource) Playlists(_ context.Context, offset, limit int) (*services.PlaylistPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	items, total := pageSlice(len(s.playlists), offset, limit)
	return &services.PlaylistPage{Items: s.playlists[items[0]:items[1]], Total: total}, nil
}

func (s *fakeSource) PlaylistTracks(_ context.Context, playlistID string, offset, limit int) (*services.TrackPage, error) {
	all := s.playlistTracks[playlistID]
	items, total := pageSlice(len(all), offset, limit)
	return &services.TrackPage{Items: all[items[0]:items[1]], Total: total}, nil
}

func pageSlice(n, offset, limit int) ([2]int, int) {
	if offset > n {
		offset = n
	}
	end := offset + limit
	if end > n {
		end = n
	}
	return [2]int{offset, end}, n
}

type fakeTarget struct {
	mu sync.Mutex

	codes      map[string]string
	albumCodes map[string]string

	tracksByTitle map[string][]models.Track
	albumsByTitle map[string][]models.Album

	applied        []string
	appliedAlbums  []string
	failTrackBatch bool

	playlists      map[string]*models.Playlist
	playlistTracks map[string][]string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		codes:          map[string]string{},
		albumCodes:     map[string]string{},
		tracksByTitle:  map[string][]models.Track{},
		albumsByTitle:  map[string][]models.Album{},
		playlists:      map[string]*models.Playlist{},
		playlistTracks: map[string][]string{},
	}
}

func (t *fakeTarget) SearchTracks(_ context.Context, title, _ string) ([]models.Track, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracksByTitle[title], nil
}

func (t *fakeTarget) SearchTrackByCode(_ context.Context, code, _, _ string) (*models.Track, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tracks := range t.tracksByTitle {
		for _, tr := range tracks {
			if tr.ISRC == code {
				return &tr, nil
			}
		}
	}
	return nil, nil
}

func (t *fakeTarget) SearchAlbums(_ context.Context, title, _ string) ([]models.Album, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.albumsByTitle[title], nil
}

func (t *fakeTarget) SearchAlbumByCode(_ context.Context, code string) (*models.Album, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, albums := range t.albumsByTitle {
		for _, a := range albums {
			if a.UPC == code {
				return &a, nil
			}
		}
	}
	return nil, nil
}

func (t *fakeTarget) FavoriteTracksWithCodes(context.Context) (map[string]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.codes))
	for k, v := range t.codes {
		out[k] = v
	}
	return out, nil
}

func (t *fakeTarget) FavoriteAlbumsWithCodes(context.Context) (map[string]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.albumCodes))
	for k, v := range t.albumCodes {
		out[k] = v
	}
	return out, nil
}

func (t *fakeTarget) AddTrackFavorites(_ context.Context, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failTrackBatch {
		return errors.New("favorites endpoint returned 500")
	}
	t.applied = append(t.applied, ids...)
	return nil
}

func (t *fakeTarget) AddAlbumFavorites(_ context.Context, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appliedAlbums = append(t.appliedAlbums, ids...)
	return nil
}

func (t *fakeTarget) FindPlaylistByName(_ context.Context, name string) (*models.Playlist, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playlists[name], nil
}

func (t *fakeTarget) CreatePlaylist(_ context.Context, name string) (*models.Playlist, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pl := &models.Playlist{ID: "tpl-" + name, Name: name}
	t.playlists[name] = pl
	return pl, nil
}

func (t *fakeTarget) AddPlaylistTracks(_ context.Context, playlistID string, trackIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playlistTracks[playlistID] = append(t.playlistTracks[playlistID], trackIDs...)
	return nil
}

func (t *fakeTarget) PlaylistTrackIDs(_ context.Context, playlistID string) (map[string]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := map[string]bool{}
	for _, id := range t.playlistTracks[playlistID] {
		out[id] = true
	}
	return out, nil
}

func (t *fakeTarget) appliedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string(nil), t.applied...)
	sort.Strings(out)
	return out
}

type savedUnmatched struct {
	syncType    models.SyncType
	track       models.Track
	suggestions []models.Suggestion
}

type memStore struct {
	tasks      map[string]*models.SyncTask
	synced     map[models.SyncType]map[string]string
	cancel     map[string]bool
	unmatched  []savedUnmatched
	migFailed  map[string]string
	migReports map[string]*models.SyncReport
	snaps      map[string][2]string

	syncedErr error
	nextID    int
}

func newMemStore() *memStore {
	return &memStore{
		tasks:      map[string]*models.SyncTask{},
		synced:     map[models.SyncType]map[string]string{},
		cancel:     map[string]bool{},
		migFailed:  map[string]string{},
		migReports: map[string]*models.SyncReport{},
		snaps:      map[string][2]string{},
	}
}

func (s *memStore) createTask(syncType models.SyncType) string {
	s.nextID++
	task := models.NewSyncTask("mig1", syncType)
	task.SetID(fmt.Sprintf("task-%d", s.nextID))
	s.tasks[task.ID()] = task
	return task.ID()
}

func (s *memStore) Task(_ context.Context, taskID string) (*models.SyncTask, error) {
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	}
	return task, nil
}

func (s *memStore) SaveTask(_ context.Context, task *models.SyncTask) error {
	s.tasks[task.ID()] = task
	return nil
}

func (s *memStore) SyncedItems(_ context.Context, syncType models.SyncType) (map[string]bool, error) {
	if s.syncedErr != nil {
		return nil, s.syncedErr
	}
	out := map[string]bool{}
	for id := range s.synced[syncType] {
		out[id] = true
	}
	return out, nil
}

func (s *memStore) MarkSynced(_ context.Context, syncType models.SyncType, pairs map[string]string) error {
	if s.synced[syncType] == nil {
		s.synced[syncType] = map[string]string{}
	}
	for src, dst := range pairs {
		s.synced[syncType][src] = dst
	}
	return nil
}

func (s *memStore) CancelRequested(_ context.Context, taskID string) (bool, error) {
	return s.cancel[taskID], nil
}

func (s *memStore) SaveUnmatched(_ context.Context, syncType models.SyncType, track models.Track, suggestions []models.Suggestion) error {
	s.unmatched = append(s.unmatched, savedUnmatched{syncType: syncType, track: track, suggestions: suggestions})
	return nil
}

func (s *memStore) FailMigration(_ context.Context, migrationID, message string) error {
	s.migFailed[migrationID] = message
	return nil
}

func (s *memStore) CompleteMigration(_ context.Context, migrationID string, report *models.SyncReport) error {
	s.migReports[migrationID] = report
	return nil
}

func (s *memStore) PlaylistSnapshot(_ context.Context, playlistID string) (string, string, error) {
	snap := s.snaps[playlistID]
	return snap[0], snap[1], nil
}

func (s *memStore) SavePlaylistSnapshot(_ context.Context, playlistID, revision, targetID string) error {
	s.snaps[playlistID] = [2]string{revision, targetID}
	return nil
}

// favoritesEnv builds a favorites collection where item kinds repeat in a
// fixed cycle: already-favorited (exact fast path), fuzzy-matchable, and
// unmatchable.
type favoritesEnv struct {
	source *fakeSource
	target *fakeTarget
	store  *memStore
}

func newFavoritesEnv(n int) *favoritesEnv {
	source := &fakeSource{}
	target := newFakeTarget()

	for i := 0; i < n; i++ {
		title := fmt.Sprintf("Song %d", i)
		track := models.Track{
			ID:         fmt.Sprintf("sp-%d", i),
			Title:      title,
			Artist:     fmt.Sprintf("Artist %d", i),
			DurationMS: 200000,
		}
		switch i % 3 {
		case 0: // already favorited, reachable via the bulk code map
			track.ISRC = fmt.Sprintf("ISRC-%d", i)
			target.codes[track.ISRC] = fmt.Sprintf("qz-%d", i)
		case 1: // resolvable through the metadata search
			target.tracksByTitle[title] = []models.Track{
				{ID: fmt.Sprintf("qz-%d", i), Title: title, Artist: track.Artist, DurationMS: 200000},
			}
		case 2: // absent from the target catalog
		}
		source.tracks = append(source.tracks, track)
	}

	return &favoritesEnv{source: source, target: target, store: newMemStore()}
}

func (e *favoritesEnv) orchestrator(opts Options) *Orchestrator {
	logger := log.New(io.Discard)
	return NewOrchestrator(
		e.source,
		e.target,
		e.store,
		match.NewTrackMatcher(e.target, match.SuggestionMinScore, logger),
		match.NewAlbumMatcher(e.target, logger),
		opts,
		logger,
	)
}

// runToCompletion drives chunks until no work remains, returning the final
// chunk states in order.
func runToCompletion(t *testing.T, o *Orchestrator, taskID string) []models.ChunkState {
	t.Helper()
	var states []models.ChunkState
	for i := 0; i < 100; i++ {
		state, err := o.RunChunk(context.Background(), taskID)
		if err != nil {
			t.Fatalf("chunk %d failed: %v", i, err)
		}
		states = append(states, *state)
		if !state.HasMore {
			return states
		}
	}
	t.Fatal("sync never completed")
	return nil
}

func TestRunChunkOffsetProgression(t *testing.T) {
	env := newFavoritesEnv(120)
	o := env.orchestrator(Options{ChunkSize: 50})
	taskID := env.store.createTask(models.SyncFavorites)

	states := runToCompletion(t, o, taskID)
	if len(states) != 3 {
		t.Fatalf("got %d chunks, want 3", len(states))
	}

	want := []models.ChunkState{
		{NextOffset: 50, TotalItems: 120, ItemsProcessed: 50, HasMore: true},
		{NextOffset: 100, TotalItems: 120, ItemsProcessed: 50, HasMore: true},
		{NextOffset: 120, TotalItems: 120, ItemsProcessed: 20, HasMore: false},
	}
	for i, st := range states {
		if st != want[i] {
			t.Errorf("chunk %d state = %+v, want %+v", i, st, want[i])
		}
	}

	task := env.store.tasks[taskID]
	if task.Status() != models.StatusCompleted {
		t.Fatalf("final status = %s, want completed", task.Status())
	}

	// 120 items cycle through 3 kinds: 40 exact, 40 fuzzy, 40 unmatched.
	report := task.Report()
	if report == nil {
		t.Fatal("completed task has no report")
	}
	if report.Stats.Matched != 80 || report.Stats.ExactMatches != 40 || report.Stats.FuzzyMatches != 40 {
		t.Errorf("report stats = %+v, want 80 matched (40 exact, 40 fuzzy)", report.Stats)
	}
	if report.Stats.Unmatched != 40 {
		t.Errorf("unmatched = %d, want 40", report.Stats.Unmatched)
	}
	if report.TotalItems != 120 {
		t.Errorf("report total = %d, want 120", report.TotalItems)
	}
	if env.store.migReports["mig1"] == nil {
		t.Error("migration record not completed")
	}
	if len(env.store.unmatched) != 40 {
		t.Errorf("persisted %d unmatched records, want 40", len(env.store.unmatched))
	}
}

func TestRunChunkIntermediateStatus(t *testing.T) {
	env := newFavoritesEnv(60)
	o := env.orchestrator(Options{ChunkSize: 50})
	taskID := env.store.createTask(models.SyncFavorites)

	state, err := o.RunChunk(context.Background(), taskID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.HasMore {
		t.Fatal("expected more work after first chunk")
	}
	if got := env.store.tasks[taskID].Status(); got != models.StatusChunkComplete {
		t.Errorf("status = %s, want chunk_complete", got)
	}
	if got := env.store.tasks[taskID].NextOffset(); got != 50 {
		t.Errorf("persisted offset = %d, want 50", got)
	}
}

func TestRunChunkIdempotence(t *testing.T) {
	env := newFavoritesEnv(30)
	o := env.orchestrator(Options{ChunkSize: 50})

	first := env.store.createTask(models.SyncFavorites)
	runToCompletion(t, o, first)
	appliedOnce := env.target.appliedIDs()
	statsOnce := env.store.tasks[first].Stats()

	second := env.store.createTask(models.SyncFavorites)
	runToCompletion(t, o, second)

	if got := env.target.appliedIDs(); len(got) != len(appliedOnce) {
		t.Errorf("second run applied %d extra items", len(got)-len(appliedOnce))
	}
	if env.store.tasks[first].Stats() != statsOnce {
		t.Error("first task's cumulative stats changed after a second run")
	}
}

func TestRunChunkResumability(t *testing.T) {
	small := newFavoritesEnv(23)
	big := newFavoritesEnv(23)

	chunked := small.orchestrator(Options{ChunkSize: 5})
	whole := big.orchestrator(Options{ChunkSize: 50})

	chunkedTask := small.store.createTask(models.SyncFavorites)
	wholeTask := big.store.createTask(models.SyncFavorites)

	states := runToCompletion(t, chunked, chunkedTask)
	if len(states) != 5 {
		t.Fatalf("got %d chunks for 23 items at size 5, want 5", len(states))
	}
	runToCompletion(t, whole, wholeTask)

	if small.store.tasks[chunkedTask].Stats() != big.store.tasks[wholeTask].Stats() {
		t.Errorf("chunked stats %+v differ from single-chunk stats %+v",
			small.store.tasks[chunkedTask].Stats(), big.store.tasks[wholeTask].Stats())
	}
	if got, want := small.target.appliedIDs(), big.target.appliedIDs(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("chunked applied set %v differs from single-chunk set %v", got, want)
	}
}

func TestRunChunkMonotonicStats(t *testing.T) {
	env := newFavoritesEnv(40)
	o := env.orchestrator(Options{ChunkSize: 10})
	taskID := env.store.createTask(models.SyncFavorites)

	prev := models.CumulativeStats{}
	for {
		state, err := o.RunChunk(context.Background(), taskID)
		if err != nil {
			t.Fatalf("chunk failed: %v", err)
		}

		stats := env.store.tasks[taskID].Stats()
		if stats.Matched < prev.Matched || stats.Unmatched < prev.Unmatched ||
			stats.ExactMatches < prev.ExactMatches || stats.FuzzyMatches < prev.FuzzyMatches {
			t.Fatalf("stats decreased: %+v after %+v", stats, prev)
		}
		prev = stats

		if !state.HasMore {
			break
		}
	}
}

func TestRunChunkBatchFailureRetries(t *testing.T) {
	env := newFavoritesEnv(0)
	// 25 fuzzy-matchable items make exactly one full apply batch.
	for i := 0; i < 25; i++ {
		title := fmt.Sprintf("Song %d", i)
		track := models.Track{
			ID:         fmt.Sprintf("sp-%d", i),
			Title:      title,
			Artist:     fmt.Sprintf("Artist %d", i),
			DurationMS: 200000,
		}
		env.source.tracks = append(env.source.tracks, track)
		env.target.tracksByTitle[title] = []models.Track{
			{ID: fmt.Sprintf("qz-%d", i), Title: title, Artist: track.Artist, DurationMS: 200000},
		}
	}
	env.target.failTrackBatch = true

	o := env.orchestrator(Options{ChunkSize: 50})
	first := env.store.createTask(models.SyncFavorites)
	runToCompletion(t, o, first)

	task := env.store.tasks[first]
	if task.Status() != models.StatusCompleted {
		t.Fatalf("status = %s, want completed (batch failure is not chunk-fatal)", task.Status())
	}
	if got := len(task.Report().Errors); got != 1 {
		t.Fatalf("report has %d errors, want 1", got)
	}
	if got := task.Stats().Matched; got != 0 {
		t.Errorf("failed batch counted %d matched items", got)
	}
	if got := len(env.store.synced[models.SyncFavorites]); got != 0 {
		t.Fatalf("%d items marked synced despite batch failure", got)
	}

	// A later run retries the same items once the target recovers.
	env.target.failTrackBatch = false
	second := env.store.createTask(models.SyncFavorites)
	runToCompletion(t, o, second)

	if got := len(env.target.appliedIDs()); got != 25 {
		t.Errorf("retry applied %d items, want 25", got)
	}
	if got := env.store.tasks[second].Stats().Matched; got != 25 {
		t.Errorf("retry matched %d, want 25", got)
	}
}

func TestRunChunkCancellation(t *testing.T) {
	env := newFavoritesEnv(40)
	o := env.orchestrator(Options{ChunkSize: 50})
	taskID := env.store.createTask(models.SyncFavorites)
	env.store.cancel[taskID] = true

	state, err := o.RunChunk(context.Background(), taskID)
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if state.ItemsProcessed != 0 {
		t.Errorf("processed %d items after cancellation", state.ItemsProcessed)
	}
	if state.HasMore {
		t.Error("hasMore = true, want false for a terminal task")
	}

	task := env.store.tasks[taskID]
	if task.Status() != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled", task.Status())
	}
	if task.ErrorMessage() != "cancelled by user" {
		t.Errorf("message = %q", task.ErrorMessage())
	}
}

func TestRunChunkTerminalTaskRejected(t *testing.T) {
	env := newFavoritesEnv(5)
	o := env.orchestrator(Options{})
	taskID := env.store.createTask(models.SyncFavorites)
	runToCompletion(t, o, taskID)

	_, err := o.RunChunk(context.Background(), taskID)
	if !errors.Is(err, shared.ErrTaskTerminal) {
		t.Fatalf("got err %v, want ErrTaskTerminal", err)
	}
	if env.store.migFailed["mig1"] != "" {
		t.Error("terminal-task rejection must not fail the migration")
	}
}

func TestRunChunkFatalFailure(t *testing.T) {
	env := newFavoritesEnv(5)
	env.store.syncedErr = errors.New("database is locked")
	o := env.orchestrator(Options{})
	taskID := env.store.createTask(models.SyncFavorites)

	_, err := o.RunChunk(context.Background(), taskID)
	if err == nil {
		t.Fatal("expected a chunk-fatal error")
	}

	task := env.store.tasks[taskID]
	if task.Status() != models.StatusFailed {
		t.Errorf("status = %s, want failed", task.Status())
	}
	if task.ErrorMessage() == "" {
		t.Error("failed task has no error message")
	}
	if env.store.migFailed["mig1"] == "" {
		t.Error("owning migration not marked failed")
	}
}

func TestRunChunkDryRun(t *testing.T) {
	env := newFavoritesEnv(30)
	o := env.orchestrator(Options{ChunkSize: 50, DryRun: true})
	taskID := env.store.createTask(models.SyncFavorites)
	runToCompletion(t, o, taskID)

	if got := len(env.target.appliedIDs()); got != 0 {
		t.Errorf("dry run applied %d items", got)
	}
	if got := len(env.store.synced[models.SyncFavorites]); got != 0 {
		t.Errorf("dry run marked %d items synced", got)
	}

	task := env.store.tasks[taskID]
	if !task.Report().DryRun {
		t.Error("report does not carry the dry-run flag")
	}
	if task.Stats().Matched != 20 {
		t.Errorf("dry run counted %d matched, want 20", task.Stats().Matched)
	}
}

func TestRunChunkAlbums(t *testing.T) {
	env := newFavoritesEnv(0)
	for i := 0; i < 6; i++ {
		album := models.Album{
			ID:         fmt.Sprintf("spa-%d", i),
			Title:      fmt.Sprintf("Album %d", i),
			Artist:     fmt.Sprintf("Artist %d", i),
			TrackCount: 10,
		}
		switch i % 3 {
		case 0:
			album.UPC = fmt.Sprintf("UPC-%d", i)
			env.target.albumCodes[album.UPC] = fmt.Sprintf("qa-%d", i)
		case 1:
			env.target.albumsByTitle[album.Title] = []models.Album{
				{ID: fmt.Sprintf("qa-%d", i), Title: album.Title, Artist: album.Artist, TrackCount: 10},
			}
		}
		env.source.albums = append(env.source.albums, album)
	}

	o := env.orchestrator(Options{ChunkSize: 50})
	taskID := env.store.createTask(models.SyncAlbums)
	runToCompletion(t, o, taskID)

	task := env.store.tasks[taskID]
	stats := task.Stats()
	if stats.Matched != 4 || stats.ExactMatches != 2 || stats.FuzzyMatches != 2 || stats.Unmatched != 2 {
		t.Errorf("stats = %+v, want 4 matched (2 exact, 2 fuzzy), 2 unmatched", stats)
	}
	if got := len(env.target.appliedAlbums); got != 2 {
		t.Errorf("applied %d album favorites, want 2 (exact fast path needs no apply)", got)
	}
}

func TestRunChunkPlaylists(t *testing.T) {
	env := newFavoritesEnv(0)
	env.source.playlists = []models.Playlist{
		{ID: "pl-1", Name: "Road Trip", TrackCount: 2, Revision: "rev-a"},
	}
	env.source.playlistTracks = map[string][]models.Track{
		"pl-1": {
			{ID: "sp-10", Title: "Song A", Artist: "Artist A", DurationMS: 200000},
			{ID: "sp-11", Title: "Song B", Artist: "Artist B", DurationMS: 200000},
		},
	}
	env.target.tracksByTitle["Song A"] = []models.Track{
		{ID: "qz-10", Title: "Song A", Artist: "Artist A", DurationMS: 200000},
	}
	env.target.tracksByTitle["Song B"] = []models.Track{
		{ID: "qz-11", Title: "Song B", Artist: "Artist B", DurationMS: 200000},
	}

	o := env.orchestrator(Options{SkipUnchanged: true})
	taskID := env.store.createTask(models.SyncPlaylists)
	runToCompletion(t, o, taskID)

	created := env.target.playlists["Road Trip"+playlistNameSuffix]
	if created == nil {
		t.Fatal("target playlist was not created")
	}
	if got := env.target.playlistTracks[created.ID]; len(got) != 2 {
		t.Fatalf("playlist has %d tracks, want 2", len(got))
	}
	if rev := env.store.snaps["pl-1"]; rev[0] != "rev-a" || rev[1] != created.ID {
		t.Errorf("snapshot = %v, want rev-a / %s", rev, created.ID)
	}

	// Unchanged revision: the whole playlist is skipped without reads.
	second := env.store.createTask(models.SyncPlaylists)
	runToCompletion(t, o, second)

	if got := env.target.playlistTracks[created.ID]; len(got) != 2 {
		t.Errorf("second run re-added tracks: %d", len(got))
	}
	if got := env.store.tasks[second].Stats().PlaylistsSkipped; got != 1 {
		t.Errorf("playlists skipped = %d, want 1", got)
	}
}

func TestRunChunkPlaylistResume(t *testing.T) {
	env := newFavoritesEnv(0)
	env.source.playlists = []models.Playlist{
		{ID: "pl-1", Name: "First", Revision: "r1"},
		{ID: "pl-2", Name: "Second", Revision: "r2"},
	}
	env.source.playlistTracks = map[string][]models.Track{
		"pl-1": {{ID: "sp-20", Title: "Song C", Artist: "Artist C", DurationMS: 200000}},
		"pl-2": {{ID: "sp-21", Title: "Song D", Artist: "Artist D", DurationMS: 200000}},
	}
	env.target.tracksByTitle["Song C"] = []models.Track{
		{ID: "qz-20", Title: "Song C", Artist: "Artist C", DurationMS: 200000},
	}
	env.target.tracksByTitle["Song D"] = []models.Track{
		{ID: "qz-21", Title: "Song D", Artist: "Artist D", DurationMS: 200000},
	}

	o := env.orchestrator(Options{PlaylistChunkSize: 1})
	taskID := env.store.createTask(models.SyncPlaylists)

	states := runToCompletion(t, o, taskID)
	if len(states) != 2 {
		t.Fatalf("got %d chunks for 2 playlists at size 1, want 2", len(states))
	}
	if !states[0].HasMore || states[1].HasMore {
		t.Errorf("chunk states = %+v", states)
	}

	stats := env.store.tasks[taskID].Stats()
	if stats.Matched != 2 || stats.FuzzyMatches != 2 {
		t.Errorf("stats = %+v, want 2 fuzzy matched", stats)
	}
}
