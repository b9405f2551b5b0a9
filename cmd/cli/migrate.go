package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"yolotrain/internal/config"
	"yolotrain/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates the database schema",
	Long:  "Creates the database schema if it does not exist yet. The server does this on start as well.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.FromCobraCmd(cmd)

		db, err := database.New(conf)
		if err != nil {
			log.Fatal().Err(err).Str("driver", conf.Database.Driver).Msg("Could not migrate database")
		}
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close db cleanly")
		}
		log.Info().Str("driver", conf.Database.Driver).Msg("Database schema is up to date")
	},
}
