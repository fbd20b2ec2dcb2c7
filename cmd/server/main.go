package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nulzo/modelmart/cmd"
	"github.com/nulzo/modelmart/internal/cli"
	"github.com/nulzo/modelmart/internal/config"
	"github.com/nulzo/modelmart/internal/platform/logger"
	"github.com/nulzo/modelmart/internal/platform/otel"
	"github.com/nulzo/modelmart/internal/store/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:          "modelmart",
		Short:        "AI model marketplace API",
		Long:         "Serves the model catalog and records on-chain model deployments.",
		SilenceUsage: true,
	}

	pflags := root.PersistentFlags()
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("store", "", "Deployment store driver (memory, sqlite)")
	pflags.String("dsn", "", "SQLite data source name")

	_ = v.BindPFlag("config_file", pflags.Lookup("config-file"))
	_ = v.BindPFlag("store.driver", pflags.Lookup("store"))
	_ = v.BindPFlag("store.dsn", pflags.Lookup("dsn"))

	serve := newServeCmd(v)
	root.AddCommand(serve, newMigrateCmd(v), newVersionCmd())
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	root.CompletionOptions.HiddenDefaultCmd = true

	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			logger.Initialize(logger.DefaultConfig())
			log := logger.Get()
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if check, _ := c.Flags().GetBool("check-updates"); check {
				go checkForUpdates(ctx, log)
			}

			if cfg.Tracing.Enabled {
				shutdown, err := otel.InitTracer(ctx, otel.Options{
					ServiceName: cfg.Tracing.ServiceName,
					Environment: cfg.Server.Env,
					Writer:      os.Stdout,
				}, log)
				if err != nil {
					return fmt.Errorf("init tracer: %w", err)
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = shutdown(shutdownCtx)
				}()
			}

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Printf("%s modelmart %s %s http://localhost:%s\n", cli.CheckMark(), cmd.AppVersion, cli.Arrow(), cfg.Server.Port)

			if err := a.server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}

	flags := serve.Flags()
	flags.String("port", "", "HTTP listen port")
	flags.String("catalog", "", "Path to a catalog YAML file")
	flags.Bool("check-updates", false, "Check for a newer release on startup")

	_ = v.BindPFlag("server.port", flags.Lookup("port"))
	_ = v.BindPFlag("catalog.path", flags.Lookup("catalog"))

	return serve
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite schema migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if cfg.Store.Driver != "sqlite" {
				return fmt.Errorf("migrate requires store.driver=sqlite, got %q", cfg.Store.Driver)
			}

			log := logger.Get()
			repo, err := sqlite.NewSQLiteStorage(cfg.Store.DSN, log)
			if err != nil {
				return err
			}
			fmt.Printf("%s schema up to date (%s)\n", cli.CheckMark(), cfg.Store.DSN)
			return repo.Close()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and check for updates",
		RunE: func(c *cobra.Command, _ []string) error {
			fmt.Println(cmd.AppVersion)
			ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
			defer cancel()
			info, err := cmd.CheckForUpdates(ctx, nil, cmd.LatestReleaseURL)
			if err != nil {
				return nil
			}
			cmd.PrintUpdateNotice(os.Stdout, info)
			return nil
		},
	}
}

func checkForUpdates(ctx context.Context, log *zap.Logger) {
	info, err := cmd.CheckForUpdates(ctx, nil, cmd.LatestReleaseURL)
	if err != nil {
		log.Debug("update check failed", zap.Error(err))
		return
	}
	cmd.PrintUpdateNotice(os.Stdout, info)
}
