package stations

import (
	"encoding/json"
	"net/http"

	"github.com/expeditorhq/expeditor/core/dispatch"
)

// FeedSource exposes the per-station queue views served by the feed handler.
// *dispatch.Manager satisfies it.
type FeedSource interface {
	Feed(stationID string) []dispatch.ItemView
	QueueIDs() []string
}

// NewFeedHandler returns an HTTP handler exposing station queue feeds via
// GET /api/stations/feed. Without a station_id parameter it returns the feeds
// of every station keyed by station identifier.
func NewFeedHandler(src FeedSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if id := r.URL.Query().Get("station_id"); id != "" {
			views := src.Feed(id)
			if views == nil {
				views = []dispatch.ItemView{}
			}
			if err := json.NewEncoder(w).Encode(views); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		all := make(map[string][]dispatch.ItemView)
		for _, id := range src.QueueIDs() {
			views := src.Feed(id)
			if views == nil {
				views = []dispatch.ItemView{}
			}
			all[id] = views
		}
		if err := json.NewEncoder(w).Encode(all); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
