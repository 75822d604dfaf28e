package main

import (
	"github.com/spf13/cobra"

	"github.com/sensiblebit/storekit/internal"
)

var (
	logLevel   string
	configPath string
	dbPath     string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "storekit",
	Short: "Keystore and truststore admin backend",
	Long:  "Upload, inspect, and curate the application keystore and trust store used for TLS client authentication and JWT signing.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetupLogger(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file path")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (default: in-memory)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "Listen address (default: :8547)")

	rootCmd.AddCommand(serveCmd)
}
