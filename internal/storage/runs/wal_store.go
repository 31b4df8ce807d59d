// Package runs persists reconciliation run summaries in a WAL so the dashboard can stream them.
package runs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/cointax/internal/domain"
)

const (
	defaultSummaryDir   = "./data/runs"
	summarySegmentLimit = 1000
	summaryMaxSegments  = 100
	summaryKeyPrefix    = "run_summary_"
)

// WALStore persists run summaries in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed summary store under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultSummaryDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "runs_",
		SegmentThreshold: summarySegmentLimit,
		MaxSegments:      summaryMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init run summary WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the summary. The run id is required.
func (s *WALStore) Save(summary domain.RunSummary) error {
	if s == nil || s.wal == nil {
		return errors.New("run summary store is not initialized")
	}
	if summary.RunID == "" {
		return fmt.Errorf("run summary id is required")
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshal run summary")
	}

	key := fmt.Sprintf("%s%s", summaryKeyPrefix, summary.RunID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// SummariesAfter returns all summaries written after the provided WAL index.
func (s *WALStore) SummariesAfter(index uint64) ([]domain.RunSummaryRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("run summary store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.RunSummaryRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "read run summary %d", idx)
		}
		// dropped segments yield an empty key
		if !strings.HasPrefix(key, summaryKeyPrefix) {
			continue
		}
		var summary domain.RunSummary
		if err := json.Unmarshal(payload, &summary); err != nil {
			return nil, errors.Wrap(err, "decode run summary")
		}
		records = append(records, domain.RunSummaryRecord{
			Index:   idx,
			Summary: summary,
		})
	}

	return records, nil
}

// Latest returns the most recent summary, false when none was saved.
func (s *WALStore) Latest() (domain.RunSummaryRecord, bool, error) {
	current := s.CurrentIndex()
	if current == 0 {
		return domain.RunSummaryRecord{}, false, nil
	}

	records, err := s.SummariesAfter(current - 1)
	if err != nil || len(records) == 0 {
		return domain.RunSummaryRecord{}, false, err
	}

	return records[len(records)-1], true, nil
}

// CurrentIndex returns the latest WAL index stored.
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
		return errors.New("run summary store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
