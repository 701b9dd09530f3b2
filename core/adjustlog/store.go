package adjustlog

import (
	"context"
	"sync"
	"time"
)

// Reason classifies why a score or position changed.
type Reason string

const (
	ReasonRebalance    Reason = "rebalance"
	ReasonNewItem      Reason = "new_item"
	ReasonBoostExpired Reason = "boost_expired"
	ReasonRecall       Reason = "recall"
	ReasonManual       Reason = "manual"
)

// Entry is one append-only adjustment record. Every score or position
// change during rebalancing, recall or manual intervention is logged.
type Entry struct {
	ID          string    `json:"id"`
	QueueID     string    `json:"queue_id"`
	ItemID      string    `json:"item_id"`
	OldScore    float64   `json:"old_score"`
	NewScore    float64   `json:"new_score"`
	OldPosition int       `json:"old_position"`
	NewPosition int       `json:"new_position"`
	Reason      Reason    `json:"reason"`
	Actor       string    `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`
}

// Query defines filters for retrieving entries.
type Query struct {
	QueueID string
	ItemID  string
	Reason  Reason
	Start   time.Time
	End     time.Time
}

func (q Query) matches(e Entry) bool {
	if q.QueueID != "" && e.QueueID != q.QueueID {
		return false
	}
	if q.ItemID != "" && e.ItemID != q.ItemID {
		return false
	}
	if q.Reason != "" && e.Reason != q.Reason {
		return false
	}
	if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.Timestamp.After(q.End) {
		return false
	}
	return true
}

// Store persists adjustment entries and supports querying.
type Store interface {
	Append(ctx context.Context, entries ...Entry) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}

// MemoryStore keeps entries in memory, mainly for tests and small
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, entries ...Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Entry
	for _, e := range s.entries {
		if q.matches(e) {
			res = append(res, e)
		}
	}
	return res, nil
}

func (s *MemoryStore) Close() error { return nil }
