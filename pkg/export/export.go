package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/fairness"
)

// WriteAdjustmentsJSON writes adjustment log entries to w in JSON format.
func WriteAdjustmentsJSON(w io.Writer, entries []adjustlog.Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// WriteAdjustmentsCSV writes adjustment log entries to w as CSV.
func WriteAdjustmentsCSV(w io.Writer, entries []adjustlog.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "queue_id", "item_id", "old_score", "new_score", "old_position", "new_position", "reason", "actor"}); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.Timestamp.Format(time.RFC3339),
			e.QueueID,
			e.ItemID,
			strconv.FormatFloat(e.OldScore, 'f', -1, 64),
			strconv.FormatFloat(e.NewScore, 'f', -1, 64),
			strconv.Itoa(e.OldPosition),
			strconv.Itoa(e.NewPosition),
			string(e.Reason),
			e.Actor,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryJSON writes a fairness summary to w in JSON format.
func WriteSummaryJSON(w io.Writer, s fairness.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteSummaryCSV writes a fairness summary to w as a single CSV record.
func WriteSummaryCSV(w io.Writer, s fairness.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"queue_id", "period_start", "period_end", "gini", "max_wait_variance", "rebalance_count", "avg_abs_position_delta", "manual_adjustments", "cache_hit_rate"}); err != nil {
		return err
	}
	rec := []string{
		s.QueueID,
		s.PeriodStart.Format(time.RFC3339),
		s.PeriodEnd.Format(time.RFC3339),
		strconv.FormatFloat(s.Gini, 'f', -1, 64),
		strconv.FormatFloat(s.MaxWaitVariance, 'f', -1, 64),
		strconv.Itoa(s.RebalanceCount),
		strconv.FormatFloat(s.AvgAbsPositionDelta, 'f', -1, 64),
		strconv.Itoa(s.ManualAdjustments),
		strconv.FormatFloat(s.CacheHitRate, 'f', -1, 64),
	}
	if err := cw.Write(rec); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
