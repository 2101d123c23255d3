package main

import (
	"github.com/spf13/cobra"

	"github.com/openmix/trackmix-go/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "trackmix",
	Short: "Multitrack audio engine",
	Long:  "trackmix renders multitrack projects to 16-bit WAV and plays them live.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(logLevel)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
