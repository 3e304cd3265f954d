package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"grid-box-finder-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

const (
	statePrefix   = "state/"
	scanPrefix    = "scan/"
	latestScanKey = "scan/latest"
)

// badgerRepository is the BadgerDB implementation of Repository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (Repository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still come back from DB operations.
	opts.Logger = nil
	return open(opts)
}

// NewInMemoryRepository returns a repository that keeps everything in memory.
func NewInMemoryRepository() (Repository, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (Repository, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerRepository{db: db}, nil
}

func stateKey(symbol string) []byte {
	return []byte(statePrefix + symbol)
}

func scanKey(runID string) []byte {
	return []byte(scanPrefix + runID)
}

// SaveState marshals the state into JSON and stores it under state/<symbol>.
func (r *badgerRepository) SaveState(state *models.RetunerState) error {
	if state == nil || state.Symbol == "" {
		return errors.New("state must carry a symbol")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(state.Symbol), data)
	})
}

// LoadState loads the state of one symbol.
// If the key is not found, it returns (nil, nil) to indicate no state is present.
func (r *badgerRepository) LoadState(symbol string) (*models.RetunerState, error) {
	var state models.RetunerState
	found, err := r.get(stateKey(symbol), &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// SaveScan writes the record and the latest pointer in one transaction.
func (r *badgerRepository) SaveScan(record *models.ScanRecord) error {
	if record == nil || record.RunID == "" {
		return errors.New("scan record must carry a run id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(scanKey(record.RunID), data); err != nil {
			return err
		}
		return txn.Set([]byte(latestScanKey), []byte(record.RunID))
	})
}

func (r *badgerRepository) LatestScan() (*models.ScanRecord, error) {
	var runID string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestScanKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			runID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.LoadScan(runID)
}

func (r *badgerRepository) LoadScan(runID string) (*models.ScanRecord, error) {
	var record models.ScanRecord
	found, err := r.get(scanKey(runID), &record)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

// get unmarshals the value at key into v and reports whether the key existed.
func (r *badgerRepository) get(key []byte, v interface{}) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return fmt.Errorf("value at %s is empty in database", key)
			}
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
