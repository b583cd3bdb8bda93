package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bubblefield/backend/internal/admin"
	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/catalog"
	"github.com/bubblefield/backend/internal/config"
	"github.com/bubblefield/backend/internal/database"
	"github.com/bubblefield/backend/internal/logging"
	"github.com/bubblefield/backend/internal/migrations"
	"github.com/bubblefield/backend/internal/redis"
)

var (
	cfg     *config.Config
	migrate bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bubblefield-seed",
		Short:        "Seed admin accounts and the bubble catalog",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			_, err := logging.Init(cfg.Environment, cfg.LogLevel)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}
	root.PersistentFlags().BoolVar(&migrate, "migrate", false, "run database migrations first")

	root.AddCommand(adminCmd(), catalogCmd())
	return root
}

func adminCmd() *cobra.Command {
	var (
		username    string
		password    string
		displayName string
		roles       []string
	)

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Create or update an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Named("seed")
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if password == "" {
				return errors.New("--password or ADMIN_PASSWORD is required")
			}

			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := runMigrations(); err != nil {
				return err
			}

			if err := admin.CreateAccount(db, username, displayName, password, roles); err != nil {
				return fmt.Errorf("create admin account: %w", err)
			}

			log.Info("admin account created/updated",
				zap.String("username", username),
				zap.String("display_name", displayName),
				zap.Strings("roles", roles))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password (defaults to $ADMIN_PASSWORD)")
	cmd.Flags().StringVar(&displayName, "display-name", "Admin", "name shown in the audit log")
	cmd.Flags().StringSliceVar(&roles, "roles", []string{"super_admin"}, "comma separated roles")
	return cmd
}

func catalogCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Replace the catalog with the contents of a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Named("seed")
			if strings.TrimSpace(file) == "" {
				file = cfg.CatalogSeedPath
			}

			categories, err := catalog.LoadSeedFile(file)
			if err != nil {
				return err
			}

			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := runMigrations(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := catalog.Replace(ctx, db, categories); err != nil {
				return fmt.Errorf("replace catalog: %w", err)
			}
			log.Info("catalog replaced", zap.String("file", file), zap.Int("categories", len(categories)))

			// Running servers reload on catalog_updated; without redis they pick
			// the new catalog up on restart.
			rdb, err := redis.Connect(cfg.RedisURL)
			if err != nil {
				log.Warn("redis unavailable; running servers were not notified", zap.Error(err))
				return nil
			}
			defer rdb.Close()

			ev := bubble.Event{Type: bubble.EventCatalogUpdated, Origin: "bubblefield-seed"}
			if err := bubble.PublishEvent(ctx, rdb, ev); err != nil {
				log.Warn("failed to publish catalog_updated", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file (defaults to $CATALOG_SEED_PATH)")
	return cmd
}

func runMigrations() error {
	if !migrate && !cfg.MigrateOnStart {
		return nil
	}
	logging.Named("seed").Info("running DB migrations")
	return migrations.RunMigrations(cfg.DatabaseURL, migrations.DefaultDir)
}
