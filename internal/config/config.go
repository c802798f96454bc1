// Package config loads the daemon's static configuration using viper: a
// YAML file wrapped in a single root key, environment overrides via
// SetEnvKeyReplacer + AutomaticEnv, defaults set explicitly for every
// optional field, and a ValidateAndApplyDefaults pass that both rejects
// bad input and derives values (here: the subscription string) the raw
// file doesn't spell out.
package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	tickwatchlog "github.com/firestige/tickwatch/internal/log"
	"github.com/firestige/tickwatch/pkg/models"
)

// GlobalConfig is the top-level static configuration, matching the
// `tickwatch:` root key in YAML.
type GlobalConfig struct {
	Hostname         string                    `mapstructure:"hostname"`
	Port             int                       `mapstructure:"port"`
	WindowSec        float64                   `mapstructure:"window_sec"`
	TopN             int                       `mapstructure:"top_n"`
	Shards           int                       `mapstructure:"shards"`
	QueueSize        int                       `mapstructure:"queue_size"`
	Subscription     string                    `mapstructure:"subscription"`
	TickWrite        TickWriteConfig           `mapstructure:"tick_write"`
	ThresholdMonitor ThresholdMonitorConfig    `mapstructure:"threshold_monitor"`
	Control          ControlConfig             `mapstructure:"control"`
	Log              tickwatchlog.LoggerConfig `mapstructure:"log"`
}

// ControlConfig configures the local control socket (C16).
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// TickWriteConfig configures the async tick publisher (C8).
type TickWriteConfig struct {
	URL           string      `mapstructure:"url"`
	ServerIP      string      `mapstructure:"server_ip"`
	Workers       int         `mapstructure:"workers"`
	QueueMax      int         `mapstructure:"queue_max"`
	TimeoutSec    float64     `mapstructure:"timeout_sec"`
	MaxRetries    int         `mapstructure:"max_retries"`
	DropOnFull    bool        `mapstructure:"drop_on_full"`
	PPAMapLatency map[int]int `mapstructure:"ppa_map_latency"`
	PPAMapFrames  map[int]int `mapstructure:"ppa_map_frames"`
}

// ThresholdMonitorConfig configures the threshold monitor (C7) and its
// violation writer (C9).
type ThresholdMonitorConfig struct {
	Enabled       bool                 `mapstructure:"enabled"`
	CSVPath       string               `mapstructure:"csv_path"`
	QueueMax      int                  `mapstructure:"queue_max"`
	DropOnFull    bool                 `mapstructure:"drop_on_full"`
	FlushEveryN   int                  `mapstructure:"flush_every_n"`
	FlushEverySec float64              `mapstructure:"flush_every_sec"`
	CooldownSec   float64              `mapstructure:"cooldown_sec"`
	Rules         map[int][]RuleConfig `mapstructure:"rules"`
	// RulesOverlayPath, if set, names a standalone YAML file whose
	// `rules:` key replaces Rules entirely once the daemon is running,
	// and is re-read on every write (see WatchRulesOverlay). Empty
	// disables the overlay.
	RulesOverlayPath string `mapstructure:"rules_overlay_path"`
}

// RuleConfig is one threshold comparison rule as it appears in YAML.
type RuleConfig struct {
	Op     string  `mapstructure:"op" yaml:"op"`
	Value  float64 `mapstructure:"value" yaml:"value"`
	RuleID string  `mapstructure:"rule_id" yaml:"rule_id"`
	Atol   float64 `mapstructure:"atol" yaml:"atol"`
}

// Load reads path, applies defaults, decodes the integer-keyed rules map
// via a custom hook, and validates the result.
//
// This is decoded with mitchellh/mapstructure directly rather than
// viper's own Unmarshal: viper's automatic unmarshal path goes through
// its own vendored mapstructure fork, which has no way to run our
// int-keyed-map hook. Going through v.AllSettings() and a hand-built
// mapstructure.Decoder keeps the hook in full control of the decode.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	raw, ok := v.AllSettings()["tickwatch"]
	if !ok {
		return nil, fmt.Errorf("config file %s has no top-level \"tickwatch\" key", path)
	}

	var cfg GlobalConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringKeyedMapToIntKeyedHookFunc(),
		),
		Result:           &cfg,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// stringKeyedMapToIntKeyedHookFunc rewrites a map[string]interface{} into
// a map[int]interface{} whenever the decode target is an int-keyed map.
// Viper reads YAML maps such as `rules: {477: [...]}` back as
// map[string]interface{} (its internal representation is always
// string-keyed), so mapstructure's usual map decoding never sees the
// int-keyed map type it needs to convert element-by-element without this
// hook.
func stringKeyedMapToIntKeyedHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.Map || to.Kind() != reflect.Map {
			return data, nil
		}
		if from.Key().Kind() != reflect.String || to.Key().Kind() != reflect.Int {
			return data, nil
		}

		src, ok := data.(map[string]interface{})
		if !ok {
			return data, nil
		}

		out := make(map[int]interface{}, len(src))
		for k, v := range src {
			ik, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("expected integer map key, got %q: %w", k, err)
			}
			out[ik] = v
		}
		return out, nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tickwatch.top_n", 0)
	v.SetDefault("tickwatch.shards", 1)
	v.SetDefault("tickwatch.queue_size", 1024)

	v.SetDefault("tickwatch.control.socket", "/var/run/tickwatch.sock")
	v.SetDefault("tickwatch.control.pid_file", "/var/run/tickwatch.pid")

	v.SetDefault("tickwatch.tick_write.workers", 1)
	v.SetDefault("tickwatch.tick_write.queue_max", 1024)
	v.SetDefault("tickwatch.tick_write.timeout_sec", 5.0)
	v.SetDefault("tickwatch.tick_write.max_retries", 3)
	v.SetDefault("tickwatch.tick_write.drop_on_full", true)

	v.SetDefault("tickwatch.threshold_monitor.enabled", false)
	v.SetDefault("tickwatch.threshold_monitor.queue_max", 1024)
	v.SetDefault("tickwatch.threshold_monitor.drop_on_full", true)
	v.SetDefault("tickwatch.threshold_monitor.flush_every_n", 50)
	v.SetDefault("tickwatch.threshold_monitor.flush_every_sec", 2.0)
	v.SetDefault("tickwatch.threshold_monitor.cooldown_sec", 0.0)

	v.SetDefault("tickwatch.log.level", "info")
	v.SetDefault("tickwatch.log.console", true)
}

// ValidateAndApplyDefaults validates the decoded configuration and
// derives the subscription string when the file leaves it empty.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	if cfg.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range [1,65535]", cfg.Port)
	}
	if cfg.WindowSec <= 0 {
		return fmt.Errorf("window_sec must be > 0, got %v", cfg.WindowSec)
	}
	if cfg.TopN < 0 {
		return fmt.Errorf("top_n must be >= 0, got %d", cfg.TopN)
	}
	if cfg.Shards < 1 {
		return fmt.Errorf("shards must be >= 1, got %d", cfg.Shards)
	}
	if cfg.QueueSize < 1 {
		return fmt.Errorf("queue_size must be >= 1, got %d", cfg.QueueSize)
	}

	if len(cfg.TickWrite.PPAMapLatency) != len(cfg.TickWrite.PPAMapFrames) {
		return fmt.Errorf("tick_write.ppa_map_latency has %d keys, ppa_map_frames has %d",
			len(cfg.TickWrite.PPAMapLatency), len(cfg.TickWrite.PPAMapFrames))
	}
	for k := range cfg.TickWrite.PPAMapLatency {
		if _, ok := cfg.TickWrite.PPAMapFrames[k]; !ok {
			return fmt.Errorf("tick_write: ppa %d present in ppa_map_latency but not ppa_map_frames", k)
		}
	}

	if cfg.ThresholdMonitor.Enabled {
		for ppa, rules := range cfg.ThresholdMonitor.Rules {
			for _, r := range rules {
				if _, err := parseCompareOp(r.Op); err != nil {
					return fmt.Errorf("threshold_monitor.rules[%d]: %w", ppa, err)
				}
				if r.RuleID == "" {
					return fmt.Errorf("threshold_monitor.rules[%d]: rule_id is required", ppa)
				}
			}
		}
	}

	if cfg.Subscription == "" {
		cfg.Subscription = synthesizeSubscription(cfg)
	}

	return nil
}

func parseCompareOp(op string) (models.CompareOp, error) {
	switch models.CompareOp(op) {
	case models.OpGT, models.OpLT, models.OpGE, models.OpLE, models.OpEQ, models.OpNE:
		return models.CompareOp(op), nil
	default:
		return "", fmt.Errorf("invalid comparison operator %q", op)
	}
}

// synthesizeSubscription builds "PPA:<k1>; PPA:<k2>; ..." over the
// sorted union of tick-write stats keys and threshold monitor keys.
func synthesizeSubscription(cfg *GlobalConfig) string {
	set := make(map[int]struct{})
	for k := range cfg.TickWrite.PPAMapLatency {
		set[k] = struct{}{}
	}
	for k := range cfg.ThresholdMonitor.Rules {
		set[k] = struct{}{}
	}

	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = "PPA:" + strconv.Itoa(k)
	}
	return strings.Join(parts, "; ")
}

// StatsKeys returns the set of PPAs the pipeline should receive events
// for: the tick-write routing table's keys.
func (cfg *GlobalConfig) StatsKeys() map[int]bool {
	out := make(map[int]bool, len(cfg.TickWrite.PPAMapLatency))
	for k := range cfg.TickWrite.PPAMapLatency {
		out[k] = true
	}
	return out
}

// RuleSetByPPA converts the decoded rule configuration into the model
// type the threshold monitor consumes.
func (cfg *GlobalConfig) RuleSetByPPA() map[int][]models.ThresholdRule {
	out := make(map[int][]models.ThresholdRule, len(cfg.ThresholdMonitor.Rules))
	for ppa, rules := range cfg.ThresholdMonitor.Rules {
		converted := make([]models.ThresholdRule, len(rules))
		for i, r := range rules {
			converted[i] = models.ThresholdRule{
				Op:     models.CompareOp(r.Op),
				Value:  r.Value,
				RuleID: r.RuleID,
				Atol:   r.Atol,
			}
		}
		out[ppa] = converted
	}
	return out
}
