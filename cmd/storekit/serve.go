package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/storekit/internal"
	"github.com/sensiblebit/storekit/internal/httpapi"
	"github.com/sensiblebit/storekit/internal/keystore"
	"github.com/sensiblebit/storekit/internal/storedb"
	"github.com/sensiblebit/storekit/internal/truststore"
	"github.com/sensiblebit/storekit/internal/uploads"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := internal.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}
		if dbPath != "" {
			cfg.Database = dbPath
		}

		db, err := storedb.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		cache := uploads.NewCache(time.Duration(cfg.UploadTTL), cfg.UploadMaxEntries)
		ks := keystore.NewService(db, cache, cfg.KeystorePassword)
		ts := truststore.NewService(db, cfg.TruststorePassword)
		server := httpapi.NewServer(ks, ts)

		slog.Info("starting admin API", "listen", cfg.Listen, "database", cfg.Database)
		if err := server.Router().Run(cfg.Listen); err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	},
}
