package runcmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"yolotrain/internal/api"
	"yolotrain/internal/config"
	"yolotrain/internal/repository"
	"yolotrain/internal/trainer"
	"yolotrain/internal/training"
	"yolotrain/internal/watchdog"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Runs the API server and the training runner",
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Msg("Running server process")
		conf := config.FromCobraCmd(cmd)

		db := mustDatabase(conf)
		store, closeStore := mustProgressStore(conf)
		repo := repository.New(db)

		workDir := conf.Trainer.WorkDir
		if workDir == "" {
			workDir = conf.Storage.WeightsDir
		}
		for _, dir := range []string{conf.Storage.DatasetsDir, conf.Storage.ModelsDir, conf.Storage.RunsDir, workDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Fatal().Err(err).Str("dir", dir).Msg("Could not create storage directory")
			}
		}

		runner := training.NewRunner(store, repo, trainer.NewYOLO(conf.Trainer.Command, workDir), training.Dirs{
			Runs:    conf.Storage.RunsDir,
			Models:  conf.Storage.ModelsDir,
			Weights: conf.Storage.WeightsDir,
		}, conf.Trainer.PersistRetries)

		ctx, cancel := context.WithCancel(context.Background())

		wd := watchdog.New(repo, store, conf.Watchdog.Schedule)
		if conf.Watchdog.Enabled {
			if err := wd.Start(ctx); err != nil {
				log.Fatal().Err(err).Msg("Could not start watchdog")
			}
		}

		srv := &http.Server{
			Addr:              conf.ServerAddr(),
			Handler:           api.New(repo, runner),
			ReadHeaderTimeout: 10 * time.Second,
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", srv.Addr).Str("runner_id", runner.ID).Msg("Listening")
			errCh <- srv.ListenAndServe()
		}()

		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Could not shut down http server cleanly")
			}

			wd.Stop()
			runner.Stop()
			cancel()

			if err := closeStore(); err != nil {
				log.Error().Err(err).Msg("Could not close progress store cleanly on shutdown")
			}
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Could not close db cleanly on shutdown")
			}
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("runner_id", runner.ID).Msg("Ran into problems")
			}
		case sig := <-sigCh:
			log.Info().Msgf("Received signal %v, shutting down...", sig)
		}
	},
}
