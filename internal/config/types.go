// Package config loads and validates the engine configuration from YAML
// with environment-variable overrides.
package config

// Config is the root configuration for the atendechat engine.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Queue    QueueConfig    `yaml:"queue,omitempty"`
	Classify ClassifyConfig `yaml:"classify,omitempty"`
	Chat     ChatConfig     `yaml:"chat,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Identity IdentityConfig `yaml:"identity,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket transport server.
type GatewayConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	Token          string   `yaml:"token,omitempty"` // shared connect token; empty disables auth
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	SweepMinutes   int      `yaml:"sweepMinutes,omitempty"` // dead-connection sweep cadence
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}

// QueueConfig tunes the assignment queue.
type QueueConfig struct {
	TickSeconds    int `yaml:"tickSeconds,omitempty"`
	BatchSize      int `yaml:"batchSize,omitempty"`
	NotifyMinutes  int `yaml:"notifyMinutes,omitempty"`
	AvgChatSeconds int `yaml:"avgChatSeconds,omitempty"`
}

// ClassifyConfig points at the rule table and tunes escalation.
type ClassifyConfig struct {
	RulesPath              string `yaml:"rulesPath,omitempty"` // empty uses the built-in table
	EscalationDelaySeconds int    `yaml:"escalationDelaySeconds,omitempty"`
}

// ChatConfig holds the engine's user-facing copy.
type ChatConfig struct {
	WelcomeMessage string `yaml:"welcomeMessage,omitempty"`
	HandoffMessage string `yaml:"handoffMessage,omitempty"`
}

// StoreConfig controls the durable store collaborator.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // sqlite file, ":memory:", or "" to disable persistence
}

// IdentityConfig seeds the static identity resolver.
type IdentityConfig struct {
	Users []IdentityUser `yaml:"users,omitempty"`
}

// IdentityUser is one known participant.
type IdentityUser struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email,omitempty"`
}
