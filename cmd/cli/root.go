package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yolotrain/cmd/cli/runcmd"
)

var RootCmd = &cobra.Command{
	Use:   "ytctl",
	Short: "YoloTrain - dataset registry and YOLO training service",
	Long: `YoloTrain registers image datasets, runs YOLO training jobs in the background and keeps
track of their progress and of the trained models.

Training runs through the ultralytics python package, which must be installed for the
interpreter configured under trainer.command.`,
}

func init() {
	RootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	RootCmd.AddCommand(runcmd.Command)
	RootCmd.AddCommand(migrateCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(1)
	}
}
