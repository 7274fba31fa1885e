// Package journal keeps an append-only log of the remote actions performed by
// the reconciliation engines.
package journal

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

const (
	DefaultDir   = "./wal/actions"
	segmentLimit = 1000
	maxSegments  = 20

	actionKeyPrefix = "action_"
)

// WALStore persists action records in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the journal in dir, creating it when missing.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "action_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init action WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Record appends rec to the journal.
func (s *WALStore) Record(rec domain.ActionRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("action journal is not initialized")
	}
	if rec.Account == "" {
		return errors.New("action record account is required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal action record")
	}

	key := actionKeyPrefix + rec.Account

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}

// EntriesAfter returns the records written after index. A non-empty account
// limits the result to that account.
func (s *WALStore) EntriesAfter(index uint64, account string) ([]domain.ActionRecordEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("action journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]domain.ActionRecordEntry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			// rotated out segment
			continue
		}
		if !strings.HasPrefix(key, actionKeyPrefix) {
			continue
		}
		if account != "" && strings.TrimPrefix(key, actionKeyPrefix) != account {
			continue
		}

		var rec domain.ActionRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode action record %d", idx)
		}
		entries = append(entries, domain.ActionRecordEntry{Index: idx, Record: rec})
	}

	return entries, nil
}

// CurrentIndex returns the latest index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("action journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
