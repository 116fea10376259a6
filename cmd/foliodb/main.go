package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/minhtranq/folio/adapters/persistence"
	"github.com/minhtranq/folio/internal/config"
	"github.com/minhtranq/folio/internal/domain/cv"
	"github.com/minhtranq/folio/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:          "foliodb",
		Short:        "Administer the folio site database",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCmd(), importCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openPool loads configuration and opens the pool. Opening runs any
// outstanding migrations; a migration failure aborts here, before
// anything can touch an unmigrated schema.
func openPool() (*persistence.Pool, logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.NewZapLogger(cfg.App.Env, cfg.Log.File)

	pool, err := persistence.NewSQLitePool(cfg, log)
	if err != nil {
		log.Error("database startup failed", err)
		return nil, nil, err
	}
	return pool, log, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply outstanding schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, log, err := openPool()
			if err != nil {
				return err
			}
			defer pool.Close()

			log.Info("database schema is up to date")
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CV profile from a YAML file, replacing the stored one",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read profile file: %w", err)
			}
			var profile cv.Profile
			if err := yaml.Unmarshal(data, &profile); err != nil {
				return fmt.Errorf("parse profile file: %w", err)
			}

			pool, log, err := openPool()
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := persistence.NewSQLiteCVRepo(persistence.NewBridge(pool, log), log)
			if err := repo.Replace(cmd.Context(), &profile); err != nil {
				log.Error("profile import failed", err, zap.String("file", file))
				return err
			}
			log.Info("profile imported", zap.String("file", file),
				zap.String("name", profile.PersonalInfo.Name))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "cv.yaml", "YAML file holding the CV profile")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print row counts and pool metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, log, err := openPool()
			if err != nil {
				return err
			}
			defer pool.Close()

			bridge := persistence.NewBridge(pool, log)
			tables := []string{
				"personal_info", "experiences", "education", "skill_categories",
				"projects", "posts", "tags", "post_tags", "post_metadata",
			}
			return bridge.WithConn(cmd.Context(), func(ctx context.Context, conn *sql.Conn) error {
				for _, table := range tables {
					var n int64
					if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
						return fmt.Errorf("count %s: %w", table, err)
					}
					fmt.Printf("%-18s %d\n", table, n)
				}
				return nil
			})
		},
	}
}
