package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")
	keyLastRun = []byte("last_run")
)

// Store persists run records.
type Store interface {
	SaveRun(run *RunRecord) error
	LastRun() (*RunRecord, error)
	Runs() ([]*RunRecord, error)
	Close() error
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens or creates the journal at path.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRuns); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// SaveRun stores run under its ID and marks it as the latest.
func (s *BoltStore) SaveRun(run *RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run record has no id")
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRuns).Put([]byte(run.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyLastRun, []byte(run.ID))
	})
}

// LastRun returns the most recently saved run, or nil when there is none.
func (s *BoltStore) LastRun() (*RunRecord, error) {
	var run *RunRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketMeta).Get(keyLastRun)
		if id == nil {
			return nil
		}
		data := tx.Bucket(bucketRuns).Get(id)
		if data == nil {
			return nil
		}
		run = &RunRecord{}
		return json.Unmarshal(data, run)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Runs returns every stored run in ID order.
func (s *BoltStore) Runs() ([]*RunRecord, error) {
	var runs []*RunRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			run := &RunRecord{}
			if err := json.Unmarshal(v, run); err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	runs []*RunRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveRun appends run.
func (s *MemoryStore) SaveRun(run *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// LastRun returns the most recently saved run, or nil.
func (s *MemoryStore) LastRun() (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, nil
	}
	return s.runs[len(s.runs)-1], nil
}

// Runs returns every saved run.
func (s *MemoryStore) Runs() ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*RunRecord(nil), s.runs...), nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
