package main

import (
	"context"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"github.com/spf13/cobra"

	"github.com/CrowderSoup/taskdash/config"
	"github.com/CrowderSoup/taskdash/database"
)

var (
	configPath string
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:           "taskdash",
		Short:         "Shared task dashboard server",
		RunE:          runServe, // Default action is serve
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".env", "Config file (.env, .yaml or .json)")
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(seedCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, "", log.LstdFlags|log.Lshortfile)
}

// openStore builds the record store for the configured backend. app is only
// set for the firebase backend.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (database.Store, *firebase.App, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := database.InitDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, err := database.OpenTreeStore(ctx, database.NewSQLiteBackend(db), logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, nil, nil

	case config.BackendMongo:
		backend, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		store, err := database.OpenTreeStore(ctx, backend, logger)
		if err != nil {
			backend.Close()
			return nil, nil, err
		}
		return store, nil, nil

	case config.BackendFirebase:
		app, err := database.NewFirebaseApp(ctx, cfg.FirebaseCredentials, cfg.FirebaseDatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := database.NewFirebaseStore(ctx, app, cfg.FirebasePollInterval, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, app, nil

	default:
		return database.NewTreeStore(logger), nil, nil
	}
}
