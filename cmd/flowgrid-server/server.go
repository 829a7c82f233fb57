package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/flowgrid/flowgrid/pkg/cmd"
	"github.com/flowgrid/flowgrid/pkg/engine"
	"github.com/flowgrid/flowgrid/pkg/eventbus"
	"github.com/flowgrid/flowgrid/pkg/kv"
	"github.com/flowgrid/flowgrid/pkg/otelhelper"
	"github.com/flowgrid/flowgrid/pkg/store"
	"github.com/flowgrid/flowgrid/pkg/triggers"
	"github.com/flowgrid/flowgrid/pkg/web"
	"github.com/flowgrid/flowgrid/pkg/workflow"
)

const defaultSweepInterval = 15 * time.Second

// Config carries the server's startup options.
type Config struct {
	Port           int
	DatabaseURL    string
	RedisURL       string
	EventBus       string
	WorkflowsPath  string
	SweepInterval  time.Duration
	TracingEnabled bool
}

// Server wires the store, the engine, the trigger manager, and the HTTP
// surface together and owns the background sweeps.
type Server struct {
	config  Config
	logger  *slog.Logger
	store   store.Store
	kv      kv.Store
	bus     eventbus.EventBus
	engine  *engine.Engine
	manager *triggers.Manager
}

func NewServer(ctx context.Context, logger *slog.Logger, config Config) (*Server, error) {
	st, err := cmd.NewStore(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	kvStore, err := cmd.NewKV(ctx, config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key-value store: %w", err)
	}

	bus, err := cmd.NewEventBus(config.EventBus, logger)
	if err != nil {
		return nil, err
	}

	registry := cmd.NewRegistry(logger, kvStore)

	manager := triggers.NewManager(logger, st, triggers.WithEventPublisher(bus))

	engineOpts := []engine.Option{engine.WithEventPublisher(bus)}

	if config.TracingEnabled {
		tracer, err := otelhelper.NewTracer(ctx, "flowgrid-server")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		engineOpts = append(engineOpts, engine.WithTracer(tracer))
	}

	eng := engine.New(logger, st, registry, manager, engineOpts...)
	manager.Bind(eng)

	return &Server{
		config:  config,
		logger:  logger,
		store:   st,
		kv:      kvStore,
		bus:     bus,
		engine:  eng,
		manager: manager,
	}, nil
}

// Run activates the configured workflows, starts the sweeps, and serves HTTP
// until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	defer s.close(ctx)

	if err := s.activateWorkflows(ctx); err != nil {
		return err
	}

	go s.sweep(ctx)

	handlers := web.NewHandlers(s.logger, s.manager, s.engine, s.store)
	app := web.NewApp(handlers)

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			s.logger.Error("failed to shut down http server", "error", err)
		}
	}()

	s.logger.Info("flowgrid server listening", "port", s.config.Port)

	return app.Listen(":" + strconv.Itoa(s.config.Port))
}

func (s *Server) activateWorkflows(ctx context.Context) error {
	repo := workflow.NewFileRepository(s.config.WorkflowsPath)

	workflows, err := repo.List()
	if err != nil {
		return fmt.Errorf("failed to load workflow definitions: %w", err)
	}

	for _, wf := range workflows {
		if err := s.manager.ActivateWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("failed to activate workflow %s: %w", wf.ID, err)
		}
	}

	s.logger.Info("workflows activated", "count", len(workflows))

	return nil
}

// sweep periodically fires due cron triggers and resumes due timers. Each
// tick's failures are logged and retried on the next tick.
func (s *Server) sweep(ctx context.Context) {
	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if resumed, err := s.engine.ResumeDueTimers(ctx); err != nil {
				s.logger.Error("timer sweep failed", "error", err, "resumed", len(resumed))
			}

			results, err := s.manager.RunDueCron(ctx)
			if err != nil {
				s.logger.Error("cron sweep failed", "error", err)

				continue
			}

			for _, result := range results {
				if result.Err != nil {
					s.logger.Error("cron dispatch failed",
						"workflow_id", result.WorkflowID,
						"error", result.Err,
					)
				}
			}
		}
	}
}

func (s *Server) close(ctx context.Context) {
	if err := s.bus.Close(); err != nil {
		s.logger.Error("failed to close event bus", "error", err)
	}

	if err := s.kv.Close(); err != nil {
		s.logger.Error("failed to close key-value store", "error", err)
	}

	if err := s.store.Close(ctx); err != nil {
		s.logger.Error("failed to close store", "error", err)
	}
}
