package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/esinanturan/Acontext/internal/bus"
	"github.com/esinanturan/Acontext/internal/collab"
	"github.com/esinanturan/Acontext/internal/config"
	"github.com/esinanturan/Acontext/internal/distill"
	"github.com/esinanturan/Acontext/internal/learning"
	"github.com/esinanturan/Acontext/internal/llm"
	"github.com/esinanturan/Acontext/internal/lock"
	"github.com/esinanturan/Acontext/internal/logging"
	"github.com/esinanturan/Acontext/internal/skillagent"
	"github.com/esinanturan/Acontext/internal/skillstore"
	"github.com/esinanturan/Acontext/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the learning pipeline workers",
	Long: `Run the learning pipeline workers: the distillation controller on the
task-completion queue and the skill agent on the skill-update queue.
Workers run until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logDir := ""
	if cfg.Logging.Enabled {
		logDir = cfg.Paths.ResolveLogDir()
	}
	log, err := logging.NewLogger(logDir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer log.Close()

	messageBus, err := buildBus(cfg)
	if err != nil {
		return err
	}
	defer messageBus.Close()

	locks, store, closeStores, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	gen := llm.NewAnthropic(cfg.Model.APIKey, cfg.Model.Name)

	// The standalone runner has no collaborator endpoint; task and
	// transcript lookups resolve against an in-process store that other
	// components of the deployment populate.
	collabStore := collab.NewMemoryStore()

	distillTokens := cfg.Distill.MaxTokens
	if distillTokens == 0 {
		distillTokens = cfg.Model.MaxTokens
	}
	controller := distill.NewController(gen, messageBus, collabStore, log, distillTokens)

	agentTokens := cfg.SkillAgent.MaxTokens
	if agentTokens == 0 {
		agentTokens = cfg.Model.MaxTokens
	}
	agent := skillagent.NewAgent(gen, locks, store, log, skillagent.Config{
		LeaseTTL:      cfg.SkillAgent.LeaseTTL(),
		MaxIterations: cfg.SkillAgent.MaxIterations,
		MaxTokens:     agentTokens,
	})

	distillPool := worker.New(messageBus, worker.Config{
		Queue:           learning.TaskQueue,
		RetryQueue:      learning.RetryQueue(learning.TaskQueue),
		DeadLetterQueue: learning.DeadLetterQueue(learning.TaskQueue),
		Workers:         cfg.Worker.DistillWorkers,
		MaxAttempts:     cfg.Worker.MaxAttempts,
		BackoffBase:     cfg.Worker.BackoffBase(),
		BackoffMax:      cfg.Worker.BackoffMax(),
		MessageTimeout:  cfg.Worker.MessageTimeout(),
	}, controller.Handle, log)

	skillPool := worker.New(messageBus, worker.Config{
		Queue:           learning.SkillQueue,
		RetryQueue:      learning.RetryQueue(learning.SkillQueue),
		DeadLetterQueue: learning.DeadLetterQueue(learning.SkillQueue),
		Workers:         cfg.Worker.SkillWorkers,
		MaxAttempts:     cfg.Worker.MaxAttempts,
		BackoffBase:     cfg.Worker.BackoffBase(),
		BackoffMax:      cfg.Worker.BackoffMax(),
		MessageTimeout:  cfg.Worker.MessageTimeout(),
	}, agent.Handle, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := distillPool.Start(ctx); err != nil {
		return fmt.Errorf("start distillation workers: %w", err)
	}
	defer distillPool.Stop()

	if err := skillPool.Start(ctx); err != nil {
		return fmt.Errorf("start skill workers: %w", err)
	}
	defer skillPool.Stop()

	log.Info("learning pipeline started",
		"bus", cfg.Bus.Backend,
		"distill_workers", cfg.Worker.DistillWorkers,
		"skill_workers", cfg.Worker.SkillWorkers)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func buildBus(cfg *config.Config) (bus.Bus, error) {
	switch cfg.Bus.Backend {
	case "nats":
		b, err := bus.NewNATSBus(bus.NATSOptions{
			URL:     cfg.Bus.URL,
			AckWait: cfg.Bus.AckWait(),
		})
		if err != nil {
			return nil, fmt.Errorf("connect message bus: %w", err)
		}
		return b, nil
	default:
		return bus.NewMemoryBus(), nil
	}
}

func buildStores(cfg *config.Config) (lock.Service, skillstore.Store, func(), error) {
	if !cfg.Redis.Enabled {
		locks := lock.NewMemoryService()
		return locks, skillstore.NewMemoryStore(locks), func() {}, nil
	}

	locks, err := lock.NewRedisService(cfg.Redis.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect lock service: %w", err)
	}
	store, err := skillstore.NewRedisStore(cfg.Redis.URL)
	if err != nil {
		locks.Close()
		return nil, nil, nil, fmt.Errorf("connect skill store: %w", err)
	}
	closeAll := func() {
		store.Close()
		locks.Close()
	}
	return locks, store, closeAll, nil
}
