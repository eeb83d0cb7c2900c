package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/sync/errgroup"

	"github.com/parlorhq/parlor"
	"github.com/parlorhq/parlor/checkpoint"
	"github.com/parlorhq/parlor/config"
	"github.com/parlorhq/parlor/engine"
	"github.com/parlorhq/parlor/logging"
	"github.com/parlorhq/parlor/model"
	"github.com/parlorhq/parlor/model/anthropic"
	"github.com/parlorhq/parlor/model/openai"
	"github.com/parlorhq/parlor/server"
	"github.com/parlorhq/parlor/tool"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("parlord", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := buildLogger(cfg.Logging)
	logger.Info("starting parlord", "version", version, "addr", cfg.Server.Addr)

	store, err := buildStore(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	mdl, err := buildModel(cfg.Model)
	if err != nil {
		return err
	}

	registry := buildTools(cfg.Tools, logger)

	assistant := parlor.New(mdl,
		func(o *parlor.Options) {
			o.Store = store
			o.Tools = registry
			o.Logger = logger
			o.Instructions = cfg.Agent.Instructions
			o.EngineConfig = engine.Config{
				MaxIterations:    cfg.Agent.MaxIterations,
				MaxParallelTools: cfg.Agent.MaxParallelTools,
			}
		},
	)

	srv := server.New(assistant,
		server.WithAddr(cfg.Server.Addr),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		server.WithLogger(logging.WithComponent(logger, "server")),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildLogger(cfg config.LoggingConfig) logging.Logger {
	return logging.New(&logging.Config{
		Level:     logging.ParseLevel(cfg.Level),
		Format:    cfg.Format,
		Output:    os.Stderr,
		Component: "parlord",
	})
}

func buildStore(cfg config.DatabaseConfig, logger logging.Logger) (checkpoint.Store, error) {
	if cfg.InMemory {
		return checkpoint.NewInMemoryStore(), nil
	}
	return checkpoint.NewSQLiteStore(cfg.Path, logging.WithComponent(logger, "checkpoint"))
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
		}), nil
	case "mock":
		return model.NewMockModel("mock", "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func buildTools(cfg config.ToolsConfig, logger logging.Logger) *tool.Registry {
	registry := tool.NewRegistry(logging.WithComponent(logger, "tool"))

	if cfg.Calculator {
		registry.Register(tool.NewArithmeticTool())
	}
	if cfg.WebSearch {
		registry.Register(tool.NewWebSearchTool())
	}
	if cfg.StockPrice {
		registry.Register(tool.NewMarketQuoteTool(cfg.AlphaVantageKey))
	}
	return registry
}
