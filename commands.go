package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/modular-world/domain/world"
	"github.com/example/modular-world/modules/auth"
	"github.com/example/modular-world/modules/pgstore"
	"github.com/example/modular-world/modules/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// errMigrationNeeded makes `schema check` exit non-zero on drift.
var errMigrationNeeded = errors.New("migration needed")

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the world server",
		Long:  `Start the HTTP and websocket server. Settings come from the environment; --port overrides PORT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3001, "HTTP port")

	return cmd
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the database schema",
	}
	cmd.AddCommand(schemaCheckCmd())
	return cmd
}

func schemaCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report columns missing from the modules table",
		Long: `Compare the stored schema with the one the server expects and print
the SQL needed to bring it up to date. Nothing is changed. Exits non-zero
when a migration is needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			report, err := checkSchema(ctx, loadConfig())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.Message)
			if !report.MigrationNeeded {
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, report.SQL)
			return errMigrationNeeded
		},
	}
}

// checkSchema opens the configured database without migrating it.
func checkSchema(ctx context.Context, cfg config) (world.SchemaReport, error) {
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return world.SchemaReport{}, fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()
		return pgstore.NewRepository(pool).CheckSchema(ctx)
	}

	db, err := store.Open(store.Config{Path: cfg.DBPath, Debug: cfg.DBDebug})
	if err != nil {
		return world.SchemaReport{}, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return store.NewRepository(db).CheckSchema(ctx)
}

func tokenCmd() *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed token for a user",
		Long:  `Issue an HS256 token signed with JWT_SECRET. Clients pass it as ?token= on /ws or as a bearer token on POST /api/users.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := auth.NewManager(auth.Config{
				SecretKey:     loadConfig().JWTSecret,
				TokenDuration: ttl,
			})
			token, err := manager.GenerateToken(args[0], username)
			if err != nil {
				if errors.Is(err, auth.ErrNoSecret) {
					return errors.New("JWT_SECRET is not set")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username claim")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenDuration, "Token lifetime")

	return cmd
}
