package persistence

import (
	"encoding/json"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"dca-grid-backtest-go/internal/models"

	"github.com/dgraph-io/badger/v3"
	"github.com/jxskiss/base62"
)

const runKeyPrefix = "run:"

// badgerRepository is the BadgerDB implementation of RunRepository.
type badgerRepository struct {
	db      *badger.DB
	counter atomic.Uint64 // disambiguates IDs minted in the same nanosecond
}

// NewBadgerRepository opens (or creates) a BadgerDB database at dbPath.
func NewBadgerRepository(dbPath string) (RunRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep the app's logs clean; errors
	// still surface from the DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db}, nil
}

// newRunID mints a compact, sortable run ID.
func (r *badgerRepository) newRunID() string {
	seq := r.counter.Add(1)
	raw := uint64(time.Now().UnixNano())<<8 | (seq & 0xff)
	return string(base62.FormatUint(raw))
}

// SaveResult stores a completed run as JSON and returns its assigned ID.
func (r *badgerRepository) SaveResult(result *models.RunResult) (string, error) {
	if result.ID == "" {
		result.ID = r.newRunID()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runKeyPrefix+result.ID), data)
	})
	if err != nil {
		return "", err
	}
	return result.ID, nil
}

// LoadResult loads a run by ID, returning (nil, nil) when absent.
func (r *badgerRepository) LoadResult(id string) (*models.RunResult, error) {
	var result models.RunResult

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("run record is empty in database")
			}
			return json.Unmarshal(val, &result)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListIDs returns the stored run IDs, oldest first.
func (r *badgerRepository) ListIDs() ([]string, error) {
	var ids []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(runKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
