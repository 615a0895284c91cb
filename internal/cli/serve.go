package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/licitahub/atendechat/internal/agent"
	"github.com/licitahub/atendechat/internal/classify"
	"github.com/licitahub/atendechat/internal/config"
	"github.com/licitahub/atendechat/internal/events"
	"github.com/licitahub/atendechat/internal/fanout"
	"github.com/licitahub/atendechat/internal/gateway"
	"github.com/licitahub/atendechat/internal/identity"
	"github.com/licitahub/atendechat/internal/logging"
	"github.com/licitahub/atendechat/internal/orchestrator"
	"github.com/licitahub/atendechat/internal/queue"
	"github.com/licitahub/atendechat/internal/session"
	"github.com/licitahub/atendechat/internal/store"
)

// tombstones of closed sessions are kept this long for idempotent close and
// post-close rating, then pruned.
const tombstoneMaxAge = 24 * time.Hour

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat engine and gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			log = logging.New(nil, level, cfg.Logging.Style)

			return runEngine(cfg, log)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	return cmd
}

// runEngine wires the engine together and blocks until SIGINT/SIGTERM.
func runEngine(cfg config.Config, log *logging.Logger) error {
	bus := events.NewBus(log)
	sessions := session.NewStore(cfg.Chat.WelcomeMessage, log)
	agents := agent.NewRegistry(log)
	fan := fanout.NewRegistry(log)

	qm := queue.NewManager(agents, sessions, bus, queue.Config{
		TickInterval:    time.Duration(cfg.Queue.TickSeconds) * time.Second,
		BatchSize:       cfg.Queue.BatchSize,
		NotifyEvery:     time.Duration(cfg.Queue.NotifyMinutes) * time.Minute,
		AvgChatDuration: time.Duration(cfg.Queue.AvgChatSeconds) * time.Second,
	}, log)

	rules := classify.RuleSet{Rules: classify.DefaultRules(), Topics: classify.DefaultTopics()}
	if cfg.Classify.RulesPath != "" {
		loaded, err := classify.LoadRules(cfg.Classify.RulesPath)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		rules = loaded
		log.Info().Str("path", cfg.Classify.RulesPath).
			Int("rules", len(rules.Rules)).
			Int("topics", len(rules.Topics)).
			Msg("rule table loaded")
	}

	chain, err := classify.NewChain(
		rules,
		cfg.Chat.HandoffMessage,
		time.Duration(cfg.Classify.EscalationDelaySeconds)*time.Second,
		log,
	)
	if err != nil {
		return err
	}

	users := make([]identity.User, 0, len(cfg.Identity.Users))
	for _, u := range cfg.Identity.Users {
		users = append(users, identity.User{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	ident := identity.NewStaticResolver(users)

	orch := orchestrator.New(sessions, agents, qm, chain, fan, bus, ident, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable recorder is optional; the engine runs fully in-memory without it.
	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path, log)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		rec := store.NewRecorder(store.NewChatStore(db), log)
		rec.Subscribe(bus)
		defer rec.Stop()
	} else {
		log.Warn().Msg("no store path configured, chat history will not be persisted")
	}

	go qm.Run(ctx)
	go fan.Run(ctx, time.Duration(cfg.Gateway.SweepMinutes)*time.Minute)
	go pruneLoop(ctx, sessions, log)

	srv := gateway.New(cfg, orch, fan, qm, agents, sessions, log)
	return srv.Start(ctx)
}

// pruneLoop drops expired close tombstones once an hour.
func pruneLoop(ctx context.Context, sessions *session.Store, log *logging.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.PruneTombstones(tombstoneMaxAge); n > 0 {
				log.Debug().Int("pruned", n).Msg("close tombstones pruned")
			}
		}
	}
}
