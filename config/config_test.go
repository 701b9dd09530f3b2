package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "expeditor"
  order_topic: "kitchen/orders"
  cancel_topic: "kitchen/cancel"
metrics:
  sinks:
    - type: "nop"
adjustment_log:
  backend: "sqlite"
  path: "adjust.db"
cache:
  backend: "memory"
http:
  addr: ":8080"
  prom_addr: ":9100"
stations:
  - id: "grill-1"
    name: "Grill"
    type: "grill"
    max_active_items: 8
    warning_time_minutes: 5
    critical_time_minutes: 2
assignment_rules:
  - id: "burger-grill"
    menu_item_id: "burger"
    station_id: "grill-1"
    primary: true
scoring_rules:
  - id: "wait"
    name: "Wait time"
    type: "wait_time"
    min_score: 0
    max_score: 100
    default_weight: 1.5
profiles:
  - id: "dinner"
    name: "Dinner rush"
    aggregation: "weighted_sum"
    max_total_score: 100
    normalize_total: true
    cache_ttl: "30s"
    rules:
      - rule_id: "wait"
queues:
  - queue_id: "grill-1"
    profile_id: "dinner"
    auto_rebalance: true
    interval: "15s"
    threshold: 0.2
    max_position_change: 3
`

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"order_topic", cfg.MQTT.OrderTopic, "kitchen/orders"},
		{"cancel_topic", cfg.MQTT.CancelTopic, "kitchen/cancel"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"log_backend", cfg.AdjustmentLog.Backend, "sqlite"},
		{"cache_backend", cfg.Cache.Backend, "memory"},
		{"http_addr", cfg.HTTP.Addr, ":8080"},
		{"station", len(cfg.Stations) == 1 && cfg.Stations[0].ID == "grill-1", true},
		{"rule_weight", cfg.ScoringRules[0].DefaultWeight, 1.5},
		{"queue_interval", cfg.Queues[0].Interval, 15 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestBuildTopology(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	topo, err := cfg.Build()
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	if len(topo.Stations) != 1 || topo.Stations[0].PrepTimeMultiplier != 1 {
		t.Fatalf("station defaults not applied: %#v", topo.Stations)
	}
	if len(topo.Profiles) != 1 || len(topo.Profiles[0].Rules) != 1 {
		t.Fatalf("profile rules not resolved: %#v", topo.Profiles)
	}
	if !topo.Profiles[0].Rules[0].Active {
		t.Fatalf("profile rule should default to active")
	}
	if topo.Profiles[0].CacheTTL != 30*time.Second {
		t.Fatalf("cache ttl %v", topo.Profiles[0].CacheTTL)
	}
	if topo.Queues[0].TickBudget == 0 {
		t.Fatalf("queue defaults not applied")
	}
}

func TestBuildUnknownRuleRef(t *testing.T) {
	bad := sampleYAML + `  - queue_id: "fry-1"
    profile_id: "dinner"
`
	cfg, err := Load(writeConfig(t, bad))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	cfg.Profiles[0].Rules[0].RuleID = "missing"
	if _, err := cfg.Build(); err == nil {
		t.Fatalf("expected error for unknown rule reference")
	}
}

func TestLoadUnknownBackend(t *testing.T) {
	data := `adjustment_log:
  backend: "bolt"
  path: "x"
`
	if _, err := Load(writeConfig(t, data)); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
