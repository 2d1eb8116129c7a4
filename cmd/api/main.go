// Package main is the entry point for the meeting assistant API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/meeting-assistant/internal/agenda"
	"github.com/capitalize-ai/meeting-assistant/internal/attendee"
	"github.com/capitalize-ai/meeting-assistant/internal/config"
	"github.com/capitalize-ai/meeting-assistant/internal/conversation"
	"github.com/capitalize-ai/meeting-assistant/internal/handler"
	"github.com/capitalize-ai/meeting-assistant/internal/llm"
	natsclient "github.com/capitalize-ai/meeting-assistant/internal/nats"
	"github.com/capitalize-ai/meeting-assistant/internal/sandbox"
	"github.com/capitalize-ai/meeting-assistant/internal/service"
	"github.com/capitalize-ai/meeting-assistant/internal/storage"
	"github.com/capitalize-ai/meeting-assistant/internal/storage/sqlite"
	"github.com/capitalize-ai/meeting-assistant/internal/workflow"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
	"github.com/capitalize-ai/meeting-assistant/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting API server", zap.String("storage", cfg.StorageDriver))

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "meeting-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	checks := map[string]handler.Check{}

	var nc *natsclient.Client
	if cfg.NATSNeeded() {
		var err error
		nc, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	store, closeStore, err := openStore(ctx, cfg, nc, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	var events *natsclient.EventStream
	if cfg.NATSEventsEnabled {
		events = natsclient.NewEventStream(nc)
		if err := events.EnsureStream(ctx); err != nil {
			return fmt.Errorf("ensure event stream: %w", err)
		}
	}

	llmClient, err := llm.NewClient(llm.Credentials{
		AnthropicKey: cfg.AnthropicAPIKey,
		OpenAIKey:    cfg.OpenAIAPIKey,
		Model:        cfg.LLMModel,
	})
	switch {
	case errors.Is(err, llm.ErrNoProvider):
		log.Info("no LLM provider configured, using template agendas")
	case err != nil:
		log.Warn("failed to create LLM client, using template agendas", zap.Error(err))
		llmClient = nil
	default:
		log.Info("LLM provider configured", zap.String("provider", llmClient.Name()))
	}

	var classifier conversation.Classifier = conversation.NewKeywordClassifier()
	if cfg.LLMClassifier && llmClient != nil {
		classifier = conversation.NewLLMClassifier(llmClient, log)
	}

	cache := attendee.NewCache[attendee.Result](cfg.AttendeeCacheSize)
	cache.StartJanitor(ctx, cfg.AttendeeCacheCleanup)
	directory := sandbox.NewDirectory(cfg.DirectoryDomains...)
	attendees := attendee.NewService(directory, cache, cfg.AttendeeCacheTTL, log)
	calendar := sandbox.NewCalendar(time.Now)

	deps := workflow.Dependencies{
		Access:       calendar,
		Availability: calendar,
		Attendees:    attendees,
		Agenda:       agenda.NewGenerator(llmClient, log),
		Events:       calendar,
		Options: workflow.Options{
			CollaboratorTimeout: cfg.CollaboratorTimeout,
			DefaultDuration:     cfg.DefaultMeetingDuration,
			AvailabilityCheck:   cfg.AvailabilityCheck,
			MaxAlternatives:     cfg.MaxAlternatives,
		},
		Log: log,
	}
	if events != nil {
		deps.Publisher = events
	}

	persister := service.NewPersister(store, cfg.PersistQueueSize, cfg.PersistTimeout, log)
	persister.Start()

	sessions := service.NewSessionService(service.SessionConfig{
		Workflow: deps,
		Conversation: conversation.Options{
			MaxTokens:   cfg.ContextMaxTokens,
			MaxMessages: cfg.ContextMaxMessages,
		},
		Classifier: classifier,
		Store:      store,
		Persister:  persister,
		Log:        log,
	})

	routerCfg := handler.RouterConfig{
		Sessions:          sessions,
		Attendees:         attendees,
		Checks:            checks,
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Log:               log,
	}
	if events != nil {
		routerCfg.Events = events
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(routerCfg),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.RouteFailures(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
		if err := persister.Stop(shutdownCtx); err != nil {
			log.Error("pending sessions were not saved", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// openStore returns the session store selected by STORAGE_DRIVER and a
// function releasing it.
func openStore(ctx context.Context, cfg *config.Config, nc *natsclient.Client, checks map[string]handler.Check) (storage.Store, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		checks["sqlite"] = s.Ping
		return s, func() { _ = s.Close() }, nil
	case config.StorageNATS:
		s, err := natsclient.NewKVStore(ctx, nc)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return storage.NewMemory(), func() {}, nil
	}
}
