package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/seanmorton/conveyor/internal/activity"
	"github.com/seanmorton/conveyor/internal/api"
	"github.com/seanmorton/conveyor/internal/config"
	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/db"
	"github.com/seanmorton/conveyor/internal/engine"
	"github.com/seanmorton/conveyor/internal/repository"
	"github.com/seanmorton/conveyor/internal/services"
)

func serve() {
	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		defs  repository.DefinitionRepository
		insts repository.InstanceRepository
	)
	if cfg.Database.Driver != "" {
		database, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			slog.Error("database error", "err", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			slog.Error("migration error", "err", err)
			os.Exit(1)
		}
		defs = repository.NewPersistentDefinitions(database)
		insts = repository.NewPersistentInstances(database)
		slog.Info("using database storage", "driver", cfg.Database.Driver)
	} else {
		defs = repository.NewMemoryDefinitions()
		insts = repository.NewMemoryInstances()
		slog.Info("using in-memory storage")
	}

	ids := conveyor.UUIDGenerator{}
	bus := engine.NewEventBus()
	bus.Subscribe(func(e engine.Event) {
		slog.Debug("engine event", "type", e.Type, "instance", e.InstanceID, "activity", e.ActivityID)
	})
	eng := engine.New(ids, bus)
	activity.RegisterBuiltins(eng, os.Stdout)

	limiter := services.NewConcurrencyLimiter(services.ConcurrencyLimits{
		GlobalMax:     cfg.Execution.GlobalMax,
		PerDefinition: cfg.Execution.PerDefinition,
	})
	publisher := services.NewPublisher(defs, ids)
	exec := services.NewExecutionService(defs, insts, eng, limiter)
	scheduler := services.NewScheduler(repository.NewMemorySchedules(), exec)

	srv := api.NewServer(publisher, exec, defs)
	srv.SetScheduler(scheduler)
	srv.SetLimiter(limiter)
	srv.SetEventBus(bus)

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		slog.Info("starting conveyor server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
