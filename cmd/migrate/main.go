package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sitetrack.io/internal/migrate"
	"sitetrack.io/internal/obs"
	"sitetrack.io/ops/migrations"
)

var (
	dsn     string
	dir     string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Apply sitetrack schema migrations and seeds",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("SITETRACK_PG_DSN"), "PostgreSQL DSN")
	rootCmd.PersistentFlags().StringVar(&dir, "dir", "", "Read sql/ and seeds/ from this directory instead of the embedded copy")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")

	rootCmd.AddCommand(
		managerCommand("up", "Apply all pending migrations", func(ctx context.Context, m *migrate.Manager) error {
			return m.Up(ctx)
		}),
		managerCommand("down", "Roll back the latest migration", func(ctx context.Context, m *migrate.Manager) error {
			return m.Down(ctx)
		}),
		managerCommand("seed", "Apply pending seed files", func(ctx context.Context, m *migrate.Manager) error {
			return m.Seed(ctx)
		}),
		managerCommand("status", "List applied migrations", func(ctx context.Context, m *migrate.Manager) error {
			history, err := m.Status(ctx)
			if err != nil {
				return err
			}
			for _, item := range history {
				fmt.Println(item)
			}
			return nil
		}),
	)
}

func managerCommand(use, short string, fn func(context.Context, *migrate.Manager) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return fmt.Errorf("missing DSN: provide via --dsn or SITETRACK_PG_DSN")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			var files fs.FS = migrations.FS
			if dir != "" {
				files = os.DirFS(dir)
			}
			mgr := migrate.NewManager(db, files, migrations.SQLDir, migrations.SeedsDir, migrate.WithLogger(obs.Logger()))
			if err := fn(ctx, mgr); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			return nil
		},
	}
}

func main() {
	logger, err := obs.NewLogger(obs.LogConfig{Level: "info"})
	if err == nil {
		defer obs.SetLogger(logger)()
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		obs.Logger().Error("migrate failed", zap.Error(err))
		_ = obs.Logger().Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
