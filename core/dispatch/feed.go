package dispatch

import (
	"time"
)

// ItemView is the station display representation of one queued item.
type ItemView struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"display_name"`
	Quantity       int       `json:"quantity"`
	Modifiers      []string  `json:"modifiers,omitempty"`
	Status         string    `json:"status"`
	SequenceNumber int       `json:"sequence_number"`
	TargetTime     time.Time `json:"target_time"`
	Priority       float64   `json:"priority"`
	Display        string    `json:"display"`
	RecallCount    int       `json:"recall_count,omitempty"`
}

// Feed returns the ordered view of a station's queue. Snapshots are
// copies; any number of displays may read concurrently.
func (m *Manager) Feed(stationID string) []ItemView {
	q, ok := m.queues[stationID]
	if !ok {
		return nil
	}
	st := q.Station()
	now := m.clock.Now()
	snapshot := q.Snapshot()
	views := make([]ItemView, 0, len(snapshot))
	for _, e := range snapshot {
		views = append(views, ItemView{
			ID:             e.Item.ID,
			DisplayName:    e.Item.DisplayName,
			Quantity:       e.Item.Quantity,
			Modifiers:      e.Item.Modifiers,
			Status:         e.Item.Status.String(),
			SequenceNumber: e.Item.Sequence,
			TargetTime:     e.Item.TargetTime(st),
			Priority:       e.Score.TotalScore,
			Display:        e.Item.SLAState(st, now).String(),
			RecallCount:    e.Item.RecallCount,
		})
	}
	return views
}

// QueueScores implements fairness.ScoreSource.
func (m *Manager) QueueScores(queueID string) []float64 {
	q, ok := m.queues[queueID]
	if !ok {
		return nil
	}
	snapshot := q.Snapshot()
	out := make([]float64, 0, len(snapshot))
	for _, e := range snapshot {
		out = append(out, e.Score.TotalScore)
	}
	return out
}

// QueueWaitSeconds implements fairness.ScoreSource.
func (m *Manager) QueueWaitSeconds(queueID string, now time.Time) []float64 {
	q, ok := m.queues[queueID]
	if !ok {
		return nil
	}
	snapshot := q.Snapshot()
	out := make([]float64, 0, len(snapshot))
	for _, e := range snapshot {
		w := now.Sub(e.Item.ReceivedAt).Seconds()
		if w < 0 {
			w = 0
		}
		out = append(out, w)
	}
	return out
}
