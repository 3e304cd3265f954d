package persistence

import "grid-box-finder-go/internal/models"

// StateRepository defines the interface for state persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type StateRepository interface {
	// SaveState atomically saves the retuner state of one symbol.
	SaveState(state *models.RetunerState) error

	// LoadState loads the state saved for symbol.
	// If no state is found, it should return (nil, nil).
	LoadState(symbol string) (*models.RetunerState, error)

	// Close gracefully closes the connection to the database.
	Close() error
}

// ScanRepository keeps the results of market scans.
type ScanRepository interface {
	// SaveScan stores a scan under its run ID and marks it as the latest.
	SaveScan(record *models.ScanRecord) error

	// LatestScan returns the most recently saved scan, or (nil, nil).
	LatestScan() (*models.ScanRecord, error)

	// LoadScan returns the scan with the given run ID, or (nil, nil).
	LoadScan(runID string) (*models.ScanRecord, error)
}

// Repository is the full storage surface backed by a single database.
type Repository interface {
	StateRepository
	ScanRepository
}
