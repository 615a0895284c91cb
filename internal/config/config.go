package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port:         18650,
			Bind:         "loopback",
			SweepMinutes: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
		Queue: QueueConfig{
			TickSeconds:    30,
			BatchSize:      10,
			NotifyMinutes:  5,
			AvgChatSeconds: 300,
		},
		Classify: ClassifyConfig{
			EscalationDelaySeconds: 2,
		},
		Chat: ChatConfig{
			WelcomeMessage: "Olá! Você está no atendimento da plataforma. Como podemos ajudar?",
			HandoffMessage: "Certo! Estamos conectando você a um atendente. Aguarde um instante.",
		},
	}
}
