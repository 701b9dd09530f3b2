package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/fairness"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestWriteAdjustmentsCSV(t *testing.T) {
	entries := []adjustlog.Entry{
		{ID: "1", QueueID: "grill-1", ItemID: "a", OldScore: 40, NewScore: 70, OldPosition: 3, NewPosition: 1, Reason: adjustlog.ReasonRebalance, Actor: "rebalancer", Timestamp: testNow},
		{ID: "2", QueueID: "grill-1", ItemID: "b", OldScore: 50, NewScore: 50, OldPosition: 1, NewPosition: 2, Reason: adjustlog.ReasonManual, Actor: "expo-1", Timestamp: testNow},
	}
	var buf bytes.Buffer
	if err := WriteAdjustmentsCSV(&buf, entries); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header plus 2 rows", len(records))
	}
	if records[0][0] != "timestamp" || records[1][2] != "a" || records[2][7] != "manual" {
		t.Fatalf("unexpected records: %v", records)
	}
}

func TestWriteSummaryJSON(t *testing.T) {
	s := fairness.Summary{QueueID: "grill-1", PeriodStart: testNow.Add(-time.Hour), PeriodEnd: testNow, Gini: 0.25, RebalanceCount: 4}
	var buf bytes.Buffer
	if err := WriteSummaryJSON(&buf, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got fairness.Summary
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.QueueID != "grill-1" || got.Gini != 0.25 || got.RebalanceCount != 4 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	s := fairness.Summary{QueueID: "grill-1", PeriodStart: testNow.Add(-time.Hour), PeriodEnd: testNow, Gini: 0.25}
	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus row", len(lines))
	}
	if !strings.HasPrefix(lines[1], "grill-1,") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}
