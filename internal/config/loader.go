package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the config file, applies defaults and environment overrides,
// and returns a merged Config. A missing file produces defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields left empty by the YAML document.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Gateway.SweepMinutes == 0 {
		cfg.Gateway.SweepMinutes = d.Gateway.SweepMinutes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = d.Logging.Style
	}
	if cfg.Queue.TickSeconds == 0 {
		cfg.Queue.TickSeconds = d.Queue.TickSeconds
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = d.Queue.BatchSize
	}
	if cfg.Queue.NotifyMinutes == 0 {
		cfg.Queue.NotifyMinutes = d.Queue.NotifyMinutes
	}
	if cfg.Queue.AvgChatSeconds == 0 {
		cfg.Queue.AvgChatSeconds = d.Queue.AvgChatSeconds
	}
	if cfg.Classify.EscalationDelaySeconds == 0 {
		cfg.Classify.EscalationDelaySeconds = d.Classify.EscalationDelaySeconds
	}
	if cfg.Chat.WelcomeMessage == "" {
		cfg.Chat.WelcomeMessage = d.Chat.WelcomeMessage
	}
	if cfg.Chat.HandoffMessage == "" {
		cfg.Chat.HandoffMessage = d.Chat.HandoffMessage
	}
}

// applyEnvOverrides reads ATENDECHAT_* environment variables over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATENDECHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("ATENDECHAT_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("ATENDECHAT_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("ATENDECHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ATENDECHAT_DB"); v != "" {
		cfg.Store.Path = v
	}
}

// Issue is a single validation problem.
type Issue struct {
	Path    string
	Message string
}

// Validate checks configuration consistency and returns all problems found.
func Validate(cfg *Config) []Issue {
	var issues []Issue

	if cfg.Gateway.Port < 1 || cfg.Gateway.Port > 65535 {
		issues = append(issues, Issue{Path: "gateway.port", Message: "port must be between 1 and 65535"})
	}
	switch cfg.Gateway.Bind {
	case "loopback", "lan", "custom":
	default:
		issues = append(issues, Issue{Path: "gateway.bind", Message: "bind must be loopback, lan or custom"})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, Issue{Path: "gateway.customBindHost", Message: "custom bind requires a host"})
	}
	if cfg.Queue.TickSeconds < 1 {
		issues = append(issues, Issue{Path: "queue.tickSeconds", Message: "tick must be at least 1 second"})
	}
	if cfg.Queue.BatchSize < 1 {
		issues = append(issues, Issue{Path: "queue.batchSize", Message: "batch size must be at least 1"})
	}
	if cfg.Queue.AvgChatSeconds < 1 {
		issues = append(issues, Issue{Path: "queue.avgChatSeconds", Message: "average chat duration must be positive"})
	}
	return issues
}
