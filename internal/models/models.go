// package models defines the data model for the library sync service
package models

import (
	"time"
)

// Model defines the base interface for all persistent models in the sync service.
// Implementations include MigrationRecord, SyncTask, UnmatchedTrack.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Track represents a track record from either catalog.
//
// Source tracks carry the source catalog's id; candidate tracks carry the
// target catalog's id. Records are never mutated after construction.
type Track struct {
	ID         string
	Title      string
	Artist     string   // Primary artist
	AllArtists []string // Every credited artist, primary first
	Album      string
	DurationMS int
	ISRC       string // International Standard Recording Code, empty when unknown
}

// Album represents an album record from either catalog.
type Album struct {
	ID          string
	Title       string
	Artist      string
	TrackCount  int
	ReleaseYear int
	UPC         string // Universal Product Code, empty when unknown
}

// Playlist represents playlist metadata from the source catalog.
//
// Revision changes whenever the playlist's contents change, which lets the
// orchestrator skip playlists that have not moved since the last sync.
type Playlist struct {
	ID         string
	Name       string
	TrackCount int
	Revision   string
}
