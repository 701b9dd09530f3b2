package stations

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/expeditorhq/expeditor/core/lifecycle"
)

// ItemActions is the lifecycle surface exposed over HTTP.
// *lifecycle.Machine satisfies it.
type ItemActions interface {
	Acknowledge(itemID string) (time.Time, error)
	Start(itemID, staffID string) error
	Ready(itemID string) error
	Complete(itemID, staffID string) error
	Recall(itemID, reason string) error
	Cancel(itemID string) error
	CancelOrder(orderItemID string) error
}

type actionRequest struct {
	ItemID      string `json:"item_id"`
	OrderItemID string `json:"order_item_id"`
	Action      string `json:"action"`
	StaffID     string `json:"staff_id"`
	Reason      string `json:"reason"`
}

type actionResponse struct {
	ItemID         string     `json:"item_id,omitempty"`
	Action         string     `json:"action"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// NewActionHandler returns an HTTP handler applying lifecycle transitions via
// POST /api/items/action. Invalid transitions map to 409, unknown items to 404.
func NewActionHandler(machine ItemActions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		resp := actionResponse{ItemID: req.ItemID, Action: req.Action}
		var err error
		switch req.Action {
		case "acknowledge":
			var at time.Time
			at, err = machine.Acknowledge(req.ItemID)
			if err == nil {
				resp.AcknowledgedAt = &at
			}
		case "start":
			err = machine.Start(req.ItemID, req.StaffID)
		case "ready":
			err = machine.Ready(req.ItemID)
		case "complete":
			err = machine.Complete(req.ItemID, req.StaffID)
		case "recall":
			err = machine.Recall(req.ItemID, req.Reason)
		case "cancel":
			err = machine.Cancel(req.ItemID)
		case "cancel_order":
			err = machine.CancelOrder(req.OrderItemID)
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}

		if err != nil {
			var nf *lifecycle.ErrNotFound
			var te *lifecycle.TransitionError
			switch {
			case errors.As(err, &nf):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.As(err, &te):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
