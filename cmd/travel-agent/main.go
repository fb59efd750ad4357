package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpadapter "github.com/PabloGalante/travel-agent/internal/adapters/http"
	"github.com/PabloGalante/travel-agent/internal/adapters/storage/postgres"
	"github.com/PabloGalante/travel-agent/internal/config"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "travel-agent: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var configFile string

	root := &cobra.Command{
		Use:           "travel-agent",
		Short:         "Voice travel agent API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.{yaml,json} if present)")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.String("storage", "memory", "session store: memory|firestore|postgres")
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("storage.backend", flags.Lookup("storage"))

	load := func() (*config.Config, error) {
		if err := config.LoadDotEnv(); err != nil {
			return nil, err
		}
		if configFile != "" {
			v.SetConfigFile(configFile)
		}
		cfg, err := config.Load(v)
		if err != nil {
			return nil, err
		}
		observability.SetLevel(cfg.Log.Level)
		return cfg, nil
	}

	root.AddCommand(newServeCmd(v, load), newCleanupCmd(load), newMigrateCmd(load))
	return root
}

func newServeCmd(v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("port", "8080", "HTTP port")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := observability.WithFields("component", "server")

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		log.Warn("credentials missing, chat turns will be rejected", "missing", missing)
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go app.sweeper.Run(sweepCtx)

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: httpadapter.NewServer(httpadapter.Services{
			Conversation: app.conversation,
			Sessions:     app.sessions,
			Reports:      app.reports,
			Sweeper:      app.sweeper,
			Voices:       app.voices,
		}, cfg.Server.MaxBodyBytes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("travel agent API listening", "port", cfg.Server.Port, "storage", cfg.Storage.Backend, "llm", cfg.LLM.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	stopSweeper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	log.Info("travel agent API stopped")
	return nil
}

func newCleanupCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Clear idle sessions once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			sweeper := newSweeper(store, cfg)
			cleared, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d session(s) idle for more than %s\n", len(cleared), sweeper.Threshold())
			return nil
		},
	}
}

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Storage.Backend != "postgres" {
				return fmt.Errorf("migrate needs the postgres storage backend, got %q", cfg.Storage.Backend)
			}
			store, err := postgres.NewStore(cmd.Context(), cfg.Storage.PostgresDSN)
			if err != nil {
				return err
			}
			defer store.Close()
			return postgres.Migrate(cmd.Context(), store.Pool())
		},
	}
}
