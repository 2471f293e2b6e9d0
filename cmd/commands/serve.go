package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/curator-ai/curator/internal/abort"
	"github.com/curator-ai/curator/internal/artifacts"
	"github.com/curator-ai/curator/internal/config"
	"github.com/curator-ai/curator/internal/confirm"
	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/extractor"
	"github.com/curator-ai/curator/internal/fallback"
	"github.com/curator-ai/curator/internal/gateway"
	"github.com/curator-ai/curator/internal/handlers"
	"github.com/curator-ai/curator/internal/heartbeat"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/models"
	"github.com/curator-ai/curator/internal/router"
	"github.com/curator-ai/curator/internal/search"
	"github.com/curator-ai/curator/internal/storage"
	"github.com/curator-ai/curator/internal/todo"
	"github.com/curator-ai/curator/internal/vault"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the curator daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.StringFlag{
				Name:  "vault",
				Usage: "Path to the markdown vault",
			},
		},
		Action: runServe,
	}
}

// registryProvider adapts the model registry to the extractor's provider
// contract.
type registryProvider struct {
	reg *models.Registry
}

func (p registryProvider) Model(ctx context.Context) (model.ToolCallingChatModel, error) {
	return p.reg.Default(ctx)
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("vault") {
		cfg.Vault.Path = cmd.String("vault")
	}
	if cfg.Vault.Path == "" {
		return fmt.Errorf("vault path not configured")
	}

	stateDir := filepath.Join(cfg.Vault.Path, cfg.Vault.StateDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	eventLog := storage.NewEventLogger(filepath.Join(stateDir, "events"), bus)
	defer eventLog.Close()

	hb := heartbeat.NewWriter(
		filepath.Join(stateDir, "heartbeat.json"),
		fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port))
	hb.Start()
	defer hb.Stop()

	v, err := vault.New(cfg.Vault.Path, cfg.Vault.TrashDir, cfg.Vault.StateDir)
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}

	index, err := search.Open(filepath.Join(stateDir, "search.db"))
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer index.Close()
	if err := index.Rebuild(v); err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}

	conversations := conversation.NewFileStore(filepath.Join(stateDir, "conversations"), bus)

	artifactStore, err := artifacts.NewSQLStore(filepath.Join(stateDir, "artifacts.db"))
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	defer artifactStore.Close()

	registry := models.NewRegistry(cfg.Models)
	if _, err := registry.Default(ctx); err != nil {
		return fmt.Errorf("init default model: %w", err)
	}

	var classifier *extractor.Classifier
	if !cfg.Extractor.ClassifierDisabled && cfg.Embedding.Driver != "" {
		embedder, err := models.NewEmbedder(ctx, cfg.Embedding)
		if err != nil {
			slog.Warn("classifier cache disabled", "error", err)
		} else {
			classifier, err = extractor.NewClassifier(ctx, stateDir, embedder, float32(cfg.Extractor.ClassifierThreshold))
			if err != nil {
				slog.Warn("classifier cache disabled", "error", err)
			}
		}
	}

	usage := storage.NewUsageTracker(bus, conversations)
	defer usage.Close()

	broker := confirm.NewBroker(bus)
	aborts := abort.NewRegistry(bus)
	fallbackSvc := fallback.NewService(cfg.Models.FallbackEnabled, registry.Chain(), conversations, bus)
	todos := todo.NewService(conversations, bus)

	deps := &handlers.Deps{
		Vault:         v,
		Index:         index,
		Conversations: conversations,
		Artifacts:     artifactStore,
		Broker:        broker,
		Fallback:      fallbackSvc,
		Todos:         todos,
		Models:        registry,
		Bus:           bus,
	}

	rt := router.New(router.Config{
		Conversations:       conversations,
		Artifacts:           artifactStore,
		Broker:              broker,
		Fallback:            fallbackSvc,
		Aborts:              aborts,
		Bus:                 bus,
		DefaultModel:        registry.DefaultName(),
		ConfidenceThreshold: cfg.Extractor.ConfidenceThreshold,
	})
	handlers.RegisterAll(rt, deps)

	extraCommands, err := handlers.RegisterUserCommands(rt, v, deps)
	if err != nil {
		slog.Warn("user-defined commands not loaded", "error", err)
	} else if len(extraCommands) > 0 {
		slog.Info("user-defined commands loaded", "count", len(extraCommands))
	}

	vocab := intents.NewVocabulary(extraCommands...)
	rt.SetExtractor(extractor.New(registryProvider{reg: registry}, classifier, vocab, bus))

	sweeper, err := confirm.NewSweeper(broker, cfg.Sweeper.Cron, cfg.Sweeper.MaxAge.Duration())
	if err != nil {
		return fmt.Errorf("init sweeper: %w", err)
	}

	server := gateway.NewServer(bus, conversations, rt, usage, cfg.Gateway.Host, cfg.Gateway.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		sweeper.Start()
		<-gctx.Done()
		sweeper.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
