package stations

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/fairness"
)

// FairnessSource computes fairness summaries on demand.
// *fairness.Collector satisfies it.
type FairnessSource interface {
	Collect(ctx context.Context, queueID string, start, end time.Time) (fairness.Summary, error)
}

// NewFairnessHandler returns an HTTP handler exposing queue fairness metrics
// via GET /api/queues/fairness. The period defaults to the last hour.
func NewFairnessHandler(src FairnessSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		queueID := r.URL.Query().Get("queue_id")
		if queueID == "" {
			http.Error(w, "queue_id required", http.StatusBadRequest)
			return
		}
		end := time.Now()
		start := end.Add(-time.Hour)
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				end = t
			}
		}
		summary, err := src.Collect(r.Context(), queueID, start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// NewLogHandler returns an HTTP handler exposing adjustment log entries via
// GET /api/queues/logs. Requests must include an Authorization header with
// "Bearer <token>" when token is non-empty.
func NewLogHandler(store adjustlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := adjustlog.Query{
			QueueID: r.URL.Query().Get("queue_id"),
			ItemID:  r.URL.Query().Get("item_id"),
			Reason:  adjustlog.Reason(r.URL.Query().Get("reason")),
		}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		entries, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
