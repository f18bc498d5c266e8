package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cremosos/core/internal/adapters/repository"
	"github.com/cremosos/core/internal/application/services"
	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/infrastructure/backup"
	"github.com/cremosos/core/internal/infrastructure/config"
	"github.com/cremosos/core/internal/infrastructure/database"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/infrastructure/server"
	"github.com/cremosos/core/internal/infrastructure/storage"
	"github.com/cremosos/core/internal/ports"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "development"
)

// ConfigFile is the optional config file shared by every command.
var ConfigFile string

// runtimeEnv bundles what a command needs to work on the store.
type runtimeEnv struct {
	cfg      *config.Config
	logger   *logger.Logger
	db       *database.DB
	store    *storage.Store
	registry *prometheus.Registry
}

func (env *runtimeEnv) close() {
	if env.store != nil {
		env.store.Close()
	}
	if env.db != nil {
		env.db.Close()
	}
	env.logger.Close()
}

// bootstrap loads configuration, opens the configured backend (migrating SQL
// schemas first) and initializes every collection.
func bootstrap(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := config.Load(ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	env := &runtimeEnv{cfg: cfg, logger: appLogger, registry: prometheus.NewRegistry()}

	var sqlDB *sqlx.DB
	if cfg.Storage.IsSQL() {
		if err := database.Migrate(cfg.Storage.Driver(), cfg.Database, "up"); err != nil {
			env.close()
			return nil, err
		}
		env.db, err = database.New(cfg.Storage.Driver(), cfg.Database)
		if err != nil {
			env.close()
			return nil, err
		}
		sqlDB = env.db.DB
	}

	backend, err := storage.NewBackend(cfg.Storage, sqlDB)
	if err != nil {
		env.close()
		return nil, err
	}

	env.store, err = storage.New(backend, cfg.Storage.Collections,
		storage.WithLogger(appLogger.WithComponent("storage")),
		storage.WithMetrics(storage.NewMetrics(env.registry)),
	)
	if err != nil {
		env.close()
		return nil, err
	}

	if err := env.store.Initialize(ctx); err != nil {
		env.close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return env, nil
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Cremosos API server",
		Long:  "Initialize storage and start the API server with all configured routes and middleware",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	srv, err := server.New(env.cfg, env.store, env.logger, server.Options{DB: env.db, Registry: env.registry})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if env.cfg.Backup.Enabled() && env.cfg.Backup.Interval > 0 {
		uploader, err := backup.NewMinioUploader(env.cfg.Backup)
		if err != nil {
			return err
		}
		if err := uploader.EnsureBucket(ctx); err != nil {
			return err
		}
		scheduler := backup.NewScheduler(backup.NewService(env.store, uploader, env.cfg.Backup.Prefix, env.logger), env.cfg.Backup.Interval)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	env.logger.Infow("Starting Cremosos API server",
		"address", env.cfg.Server.Address(),
		"environment", env.cfg.App.Environment,
		"storage", env.cfg.Storage.Backend,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(env.cfg.Server.Address())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create missing storage collections",
		Long:  "Prepare the storage backend and create every configured collection that does not exist yet. Existing data is kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			fmt.Fprintf(cmd.OutOrStdout(), "Storage ready (%s): %v\n", env.cfg.Storage.Backend, env.store.Collections())
			return nil
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the schema of the sqlite and postgres storage backends (up, down, version)",
	}

	for _, direction := range []string{"up", "down"} {
		migrateCmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Run all %s migrations", direction),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := sqlConfig()
				if err != nil {
					return err
				}
				if err := database.Migrate(cfg.Storage.Driver(), cfg.Database, direction); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migration %s completed successfully\n", direction)
				return nil
			},
		})
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sqlConfig()
			if err != nil {
				return err
			}
			version, dirty, err := database.MigrationVersion(cfg.Storage.Driver(), cfg.Database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Dirty: %t\n", dirty)
			return nil
		},
	})

	return migrateCmd
}

func sqlConfig() (*config.Config, error) {
	cfg, err := config.Load(ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Storage.IsSQL() {
		return nil, fmt.Errorf("storage backend %q has no schema to migrate", cfg.Storage.Backend)
	}
	return cfg, nil
}

// NewSeedCommand creates the seed command
func NewSeedCommand() *cobra.Command {
	var admin services.SeedAdmin

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load default roles, an admin user and sample products",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			repos := repository.NewRepositories(env.store)
			auth := services.NewAuthService(repos.Users, env.cfg.JWT, env.logger)
			result, err := services.NewSeeder(repos, auth, env.logger).Run(cmd.Context(), admin)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d roles, %d users, %d products\n", result.Roles, result.Users, result.Products)
			return nil
		},
	}

	seedCmd.Flags().StringVar(&admin.Email, "admin-email", "admin@cremosos.com", "Administrator email")
	seedCmd.Flags().StringVar(&admin.Password, "admin-password", "123456", "Administrator password")
	seedCmd.Flags().StringVar(&admin.Name, "admin-name", "Juan Admin", "Administrator name")
	return seedCmd
}

// NewUserCommand creates the user management command
func NewUserCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long:  "Create users with an explicit role",
	}

	var req ports.CreateUserRequest
	var role string
	createUserCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Email == "" || req.Password == "" {
				return errors.New("email and password are required")
			}
			req.Role = entities.UserRole(role)
			if req.Name == "" {
				req.Name = req.Email
			}

			env, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			auth := services.NewAuthService(repository.NewRepositories(env.store).Users, env.cfg.JWT, env.logger)
			user, err := auth.CreateUser(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User created successfully:\n")
			fmt.Fprintf(out, "  ID: %s\n", user.ID)
			fmt.Fprintf(out, "  Email: %s\n", user.Email)
			fmt.Fprintf(out, "  Name: %s\n", user.Name)
			fmt.Fprintf(out, "  Role: %s\n", user.Role)
			return nil
		},
	}

	createUserCmd.Flags().StringVar(&req.Email, "email", "", "User email (required)")
	createUserCmd.Flags().StringVar(&req.Password, "password", "", "User password (required)")
	createUserCmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	createUserCmd.Flags().StringVar(&role, "role", string(entities.UserRoleEmployee), "User role (admin, employee, customer)")

	userCmd.AddCommand(createUserCmd)
	return userCmd
}

// NewBackupCommand creates the backup command
func NewBackupCommand() *cobra.Command {
	var timeout time.Duration

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload a gzipped snapshot of every collection",
		Long:  "Read every collection and upload it to the configured S3-compatible bucket. A collection that cannot be read aborts the snapshot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			uploader, err := backup.NewMinioUploader(env.cfg.Backup)
			if err != nil {
				return err
			}
			if err := uploader.EnsureBucket(ctx); err != nil {
				return err
			}

			manifest, err := backup.NewService(env.store, uploader, env.cfg.Backup.Prefix, env.logger).Snapshot(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Snapshot %s\n", manifest.Prefix)
			for _, obj := range manifest.Objects {
				fmt.Fprintf(out, "  %-10s %5d records %8d bytes  %s\n", obj.Collection, obj.Records, obj.Size, obj.Key)
			}
			return nil
		},
	}

	backupCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall snapshot timeout")
	backupCmd.AddCommand(newRestoreCommand())
	return backupCmd
}

func newRestoreCommand() *cobra.Command {
	var timeout time.Duration

	restoreCmd := &cobra.Command{
		Use:   "restore <snapshot> [collection...]",
		Short: "Replace collections with the contents of a snapshot",
		Long:  "Download the named collections (all by default) from the snapshot folder printed by \"backup\" and overwrite the stored data, including collections that are corrupt.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			client, err := backup.NewMinioUploader(env.cfg.Backup)
			if err != nil {
				return err
			}

			svc := backup.NewService(env.store, client, env.cfg.Backup.Prefix, env.logger)
			restored, err := svc.Restore(ctx, client, args[0], args[1:]...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Restored from %s\n", args[0])
			for _, obj := range restored {
				fmt.Fprintf(out, "  %-10s %5d records\n", obj.Collection, obj.Records)
			}
			return nil
		},
	}

	restoreCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall restore timeout")
	return restoreCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print Cremosos version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Cremosos %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Build Date: %s\n", BuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "Git Commit: %s\n", GitCommit)
		},
	}
}
