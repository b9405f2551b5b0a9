package runcmd

import (
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"yolotrain/internal/config"
	"yolotrain/internal/database"
	"yolotrain/internal/progress"
)

var Command = &cobra.Command{
	Use:   "run",
	Short: "Run service",
	Long:  "Run service from a selected list of services",
}

func init() {
	Command.AddCommand(serverCmd)
}

func mustDatabase(conf *config.YTConfig) *sqlx.DB {
	db, err := database.New(conf)
	if err != nil {
		log.Fatal().Err(err).Str("driver", conf.Database.Driver).Msg("Could not connect to database")
	}

	return db
}

// mustProgressStore returns the configured progress store and a function releasing it
func mustProgressStore(conf *config.YTConfig) (progress.Store, func() error) {
	switch conf.Progress.Backend {
	case "", "memory":
		return progress.NewMemoryStore(), func() error { return nil }
	case "redis":
		r := conf.Progress.Redis
		store, err := progress.NewRedisStore(r.Host, r.Password, r.DB, r.KeyPrefix)
		if err != nil {
			log.Fatal().Err(err).Str("host", r.Host).Msg("Could not connect to redis progress store")
		}
		return store, store.Close
	default:
		log.Fatal().Str("backend", conf.Progress.Backend).Msg("Unknown progress backend, use memory or redis")
		return nil, nil
	}
}
