// Command lucy is the process entrypoint for the request control plane:
// it loads configuration, wires every subsystem together, and serves chat
// events over HTTP until a shutdown signal arrives. Grounded on the
// teacher's cmd/nexus/handlers_serve.go (slog setup, signal.NotifyContext
// for SIGINT/SIGTERM, goroutine-plus-error-channel server start, timeout
// context for graceful stop).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/lucy/internal/circuitbreaker"
	"github.com/haasonsaas/lucy/internal/classify"
	"github.com/haasonsaas/lucy/internal/config"
	"github.com/haasonsaas/lucy/internal/cron"
	"github.com/haasonsaas/lucy/internal/dedupe"
	"github.com/haasonsaas/lucy/internal/dispatch"
	"github.com/haasonsaas/lucy/internal/fastpath"
	"github.com/haasonsaas/lucy/internal/messagepool"
	"github.com/haasonsaas/lucy/internal/metrics"
	"github.com/haasonsaas/lucy/internal/orchestrator"
	"github.com/haasonsaas/lucy/internal/queue"
	"github.com/haasonsaas/lucy/internal/ratelimit"
	"github.com/haasonsaas/lucy/internal/slo"
	"github.com/haasonsaas/lucy/internal/supervisor"
	"github.com/haasonsaas/lucy/internal/tasks"
	"github.com/haasonsaas/lucy/internal/toolindex"
	"github.com/haasonsaas/lucy/internal/tools"
	"github.com/haasonsaas/lucy/internal/workspace"
	"github.com/haasonsaas/lucy/pkg/lucy"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", envOr("LUCY_CONFIG", "lucy.yaml"), "path to the Lucy configuration file")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	flag.Parse()

	if *debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if err := run(context.Background(), *configPath); err != nil {
		slog.Error("lucy exited with error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// llmClient implements lucy.LLMClient against the configured provider. The
// concrete provider HTTP client is out of this module's scope (spec §1);
// this placeholder satisfies the interface so the process wires together
// and fails loudly if a turn actually reaches it without a real client
// having been substituted in deployment.
type unconfiguredLLMClient struct{ provider string }

func (c unconfiguredLLMClient) CreateMessage(context.Context, lucy.LLMRequest) (*lucy.LLMResponse, error) {
	return nil, fmt.Errorf("no LLM client wired for provider %q: replace unconfiguredLLMClient with a real SDK client (e.g. anthropic-sdk-go, go-openai)", c.provider)
}

// unconfiguredChatClient satisfies workspace.ChatClient so the process
// wires together without a concrete chat-platform adapter, which is out of
// this module's scope (spec §1: "chat-platform SDK" is an external
// collaborator). A real deployment substitutes a Slack/Discord/Telegram
// adapter built over the credentials in config.ChatConfig.
type unconfiguredChatClient struct{}

func (unconfiguredChatClient) PostMessage(context.Context, string, string, string) (string, error) {
	return "", fmt.Errorf("no chat client configured: wire a platform adapter over config.Chat")
}

func (unconfiguredChatClient) UpdateMessage(context.Context, string, string, string) error {
	return fmt.Errorf("no chat client configured: wire a platform adapter over config.Chat")
}

func (unconfiguredChatClient) FetchThread(context.Context, string, string) ([]lucy.Message, error) {
	return nil, fmt.Errorf("no chat client configured: wire a platform adapter over config.Chat")
}

func (unconfiguredChatClient) AddReaction(context.Context, string, string, string) error {
	return fmt.Errorf("no chat client configured: wire a platform adapter over config.Chat")
}

func run(ctx context.Context, configPath string) error {
	slog.Info("starting lucy", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"llm_provider", cfg.LLM.Provider,
		"queue_workers", cfg.Queue.Workers,
	)

	storeFactory, err := workspace.NewFileStoreFactory(cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}

	pool := messagepool.DefaultPools()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	limiter := ratelimit.NewRateLimiter(ratelimit.Config(cfg.RateLimit.Models), ratelimit.Config(cfg.RateLimit.APIs))
	breakers := circuitbreaker.NewRegistry(cfg.CircuitBreaker.Default(), cfg.CircuitBreaker.Overrides)
	index := toolindex.NewCapabilityIndex()
	classifier := classify.New()
	gate := classify.NewConfirmationGate()
	sloEvaluator := slo.New()
	taskManager := tasks.NewManager(pool, collector)
	workQueue := queue.New(cfg.Queue.Workers)
	toolRegistry := tools.NewRegistry()

	llm := unconfiguredLLMClient{provider: cfg.LLM.Provider}
	sup := supervisor.New(llm, cfg.LLM.ModelFast)

	orch := orchestrator.New(
		llm,
		toolRegistry,
		index,
		limiter,
		breakers,
		classifier,
		gate,
		sup,
		collector,
		pool,
		cfg.Tools,
		cfg.Retrieval,
		cfg.LLM,
	)

	chat := unconfiguredChatClient{}

	cronRunner := cron.RunnerFunc(func(ctx context.Context, tenantID, instruction string) (string, error) {
		outcome := orch.Run(ctx, orchestrator.Request{
			TenantID: tenantID,
			Message:  instruction,
			CronMode: true,
			Tier:     "default",
		})
		return outcome.Text, nil
	})
	scheduler := cron.NewScheduler(storeFactory, cronRunner, cfg.Cron)

	server := dispatch.NewServer(dispatch.Dependencies{
		Config:       cfg.Server,
		LLM:          cfg.LLM,
		Dedupe:       dedupe.NewRejector(),
		FastPath:     fastpath.New(pool),
		Queue:        workQueue,
		TaskManager:  taskManager,
		Gate:         gate,
		Orchestrator: orch,
		Metrics:      collector,
		Breakers:     breakers,
		SLO:          sloEvaluator,
		Index:        index,
		Stores:       storeFactory,
		Chat:         chat,
	})

	workQueue.Start()
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Router(),
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("lucy http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	workQueue.Stop()
	scheduler.Stop()

	slog.Info("lucy stopped gracefully")
	return nil
}
