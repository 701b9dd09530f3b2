package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/expeditorhq/expeditor/core/metrics"
	"github.com/expeditorhq/expeditor/core/model"
	"github.com/expeditorhq/expeditor/core/priority"
	"github.com/expeditorhq/expeditor/core/queue"
	"github.com/expeditorhq/expeditor/core/routing"
	"github.com/expeditorhq/expeditor/core/rules"
	"github.com/expeditorhq/expeditor/infra/mqtt"
)

type Config struct {
	MQTT            mqtt.Config            `json:"mqtt"`
	Metrics         metrics.Config         `json:"metrics"`
	AdjustmentLog   AdjustmentLogConfig    `json:"adjustment_log"`
	Cache           CacheConfig            `json:"cache"`
	HTTP            HTTPConfig             `json:"http"`
	Sentry          SentryConfig           `json:"sentry"`
	Stations        []StationConfig        `json:"stations"`
	AssignmentRules []AssignmentRuleConfig `json:"assignment_rules"`
	ScoringRules    []ScoringRuleConfig    `json:"scoring_rules"`
	Profiles        []ProfileConfig        `json:"profiles"`
	Queues          []queue.Config         `json:"queues"`
}

// Topology is the validated domain configuration built from the wire form.
type Topology struct {
	Stations []model.Station
	Rules    []routing.AssignmentRule
	Profiles []priority.Profile
	Queues   []queue.Config
}

// Build converts and validates every domain section of the config.
func (c *Config) Build() (Topology, error) {
	var topo Topology
	for _, sc := range c.Stations {
		st, err := sc.Build()
		if err != nil {
			return Topology{}, err
		}
		topo.Stations = append(topo.Stations, st)
	}
	for _, rc := range c.AssignmentRules {
		r, err := rc.Build()
		if err != nil {
			return Topology{}, err
		}
		topo.Rules = append(topo.Rules, r)
	}
	index := make(map[string]rules.ScoringRule, len(c.ScoringRules))
	for _, sc := range c.ScoringRules {
		r, err := sc.Build()
		if err != nil {
			return Topology{}, err
		}
		index[r.ID] = r
	}
	for _, pc := range c.Profiles {
		p, err := pc.Build(index)
		if err != nil {
			return Topology{}, err
		}
		topo.Profiles = append(topo.Profiles, p)
	}
	for _, qc := range c.Queues {
		qc.SetDefaults()
		if err := qc.Validate(); err != nil {
			return Topology{}, err
		}
		topo.Queues = append(topo.Queues, qc)
	}
	return topo, nil
}

// HTTPConfig defines the station API and metrics listeners.
type HTTPConfig struct {
	// Addr serves the station feed and action API. Empty disables it.
	Addr string `json:"addr"`
	// PromAddr serves Prometheus metrics. Empty disables it.
	PromAddr string `json:"prom_addr"`
	// AuthToken protects the adjustment log endpoint when non-empty.
	AuthToken string `json:"auth_token"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("EXPO_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "expo_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.AdjustmentLog.SetDefaults()
	cfg.Cache.SetDefaults()
	if err := cfg.AdjustmentLog.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cache.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
