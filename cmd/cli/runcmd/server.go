package runcmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"dockhand/internal/api"
	"dockhand/internal/audit"
	"dockhand/internal/config"
	"dockhand/internal/handlers"
	"dockhand/internal/task"
	"dockhand/internal/tasklog"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the API server and its task engine",
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Msg("Running server process")
		conf := config.FromCobraCmd(cmd)
		zerolog.SetGlobalLevel(conf.ZerologLevel())

		db := mustDatabase(conf)
		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("Could not close db cleanly on shutdown: %v\n", err)
			}
		}()

		ctx := context.Background()
		taskStore := task.NewStore(db)
		auditStore := audit.NewStore(db)
		if err := taskStore.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Could not create task schema")
		}
		if err := auditStore.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Could not create audit schema")
		}

		// The entry point owns the engine: construction, handler
		// registration, and drain on shutdown.
		sink := tasklog.NewSink(conf.Tasks.LogDir)
		registry := task.NewRegistry()
		handlers.Register(registry, &handlers.Deps{Cfg: conf, Logs: sink})

		manager := task.NewManager(taskStore, registry, sink, conf.Tasks.MaxWorkers)
		defer manager.Close()

		server := api.New(conf, manager, auditStore)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("API server stopped unexpectedly")
			}
		case sig := <-sigCh:
			log.Info().Msgf("Received signal %v, shutting down...", sig)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Could not shut down API server cleanly")
			}
		}
	},
}
