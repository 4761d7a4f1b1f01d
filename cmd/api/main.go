package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/research-market/internal/config"
	mysqlp "github.com/bryanwahyu/research-market/internal/infra/db/mysql"
	"github.com/bryanwahyu/research-market/internal/infra/db/postgres"
	"github.com/bryanwahyu/research-market/internal/infra/db/sqlite"
	"github.com/bryanwahyu/research-market/internal/infra/db/sqlstore"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "api",
		Short:         "Research commercialization marketplace API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// path config.yaml, bisa override via CONFIG_PATH
	def := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", def, "path to config.yaml")

	root.AddCommand(serveCmd(&configPath), migrateCmd(&configPath))
	return root
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(*configPath, false)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx := cmd.Context()
			db, dialect, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := sqlstore.Migrate(ctx, db, dialect); err != nil {
				return err
			}
			v, err := sqlstore.SchemaVersion(ctx, db)
			if err != nil {
				return err
			}
			log.Info("schema up to date", zap.Int("version", v), zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}

// bootstrap loads config and builds the logger.
func bootstrap(path string, validate bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("config load error: %w", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	var log *zap.Logger
	if cfg.Log.Development {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

// openDB connects using the configured driver.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, sqlstore.Dialect, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, dialect, err
	}
	dsn := cfg.DatabaseDSN()
	var db *sql.DB
	switch dialect {
	case sqlstore.MySQL:
		db, err = mysqlp.Connect(ctx, dsn)
	case sqlstore.SQLite:
		db, err = sqlite.Open(ctx, dsn)
	default:
		db, err = postgres.Connect(ctx, dsn)
	}
	if err != nil {
		return nil, dialect, fmt.Errorf("%s connect error: %w", cfg.Database.Driver, err)
	}
	return db, dialect, nil
}
