package persistence

import "dca-grid-backtest-go/internal/models"

// RunRepository defines the interface for persisting completed run results.
// It abstracts the underlying storage mechanism (BadgerDB, in-memory) from
// the rest of the application.
type RunRepository interface {
	// SaveResult stores a completed run and returns its assigned ID.
	SaveResult(result *models.RunResult) (string, error)

	// LoadResult loads a run by ID. If the ID is unknown it returns
	// (nil, nil).
	LoadResult(id string) (*models.RunResult, error)

	// ListIDs returns the stored run IDs, oldest first.
	ListIDs() ([]string, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
