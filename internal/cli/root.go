// Package cli provides the command-line interface for kiwibesd.
package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiwibes/kiwibesd/internal/authguard"
	"github.com/kiwibes/kiwibesd/internal/catalog"
	"github.com/kiwibes/kiwibesd/internal/config"
	"github.com/kiwibes/kiwibesd/internal/datastore"
	"github.com/kiwibes/kiwibesd/internal/executor"
	"github.com/kiwibes/kiwibesd/internal/kerrors"
	"github.com/kiwibes/kiwibesd/internal/logging"
	"github.com/kiwibes/kiwibesd/internal/persistence"
	"github.com/kiwibes/kiwibesd/internal/restserver"
	"github.com/kiwibes/kiwibesd/internal/scheduler"
	"github.com/kiwibes/kiwibesd/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "kiwibesd <home>",
	Short:   "Kiwibes automation server",
	Long:    `kiwibesd runs the Kiwibes job scheduler and its authenticated HTTPS control surface.`,
	Version: version.Version,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, args[0])
	},
}

func init() {
	rootCmd.Flags().IntP("log-level", "l", -1, "log verbosity: 0=warn, 1=info, 2=debug (default 1)")
	rootCmd.Flags().IntP("log-max-size", "s", 0, "maximum log file size in MB, 1..100 (default 10)")
	rootCmd.Flags().IntP("data-max-size", "d", 0, "maximum data store size in MB, 1..100 (default 1)")
	rootCmd.Flags().IntP("port", "p", 0, "HTTPS listen port (default 4242)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func run(cmd *cobra.Command, home string) error {
	logLevel, _ := cmd.Flags().GetInt("log-level")
	logMaxSize, _ := cmd.Flags().GetInt("log-max-size")
	dataMaxSize, _ := cmd.Flags().GetInt("data-max-size")
	port, _ := cmd.Flags().GetInt("port")

	cfg, err := config.Load(home, logLevel, logMaxSize, dataMaxSize, port)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel)

	tlsConfig, err := loadTLSConfig(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load TLS certificate")
		return err
	}

	store := persistence.New(cfg.Home, logger)

	jobs, err := store.LoadCatalog(cfg.CatalogPath())
	if err != nil {
		logger.Error().Err(err).Msg("failed to load catalog")
		return err
	}

	entries, err := store.LoadDataStore(cfg.DataStorePath())
	if err != nil {
		logger.Error().Err(err).Msg("failed to load data store")
		return err
	}

	cat := catalog.New(jobs, store, cfg.CatalogPath(), logger)
	ds := datastore.New(entries, cfg.DataStoreMaxBytes(), store, cfg.DataStorePath(), logger)
	auth := authguard.New(cfg.AuthPath(), logger)
	exec := executor.New(cat, logger)
	sched := scheduler.New(cat, exec, logger)
	server := restserver.New(cat, ds, exec, auth, cfg.Port, tlsConfig, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth.StartPolling(ctx)
	sched.Start(ctx)

	serveErrs := make(chan error, 1)
	go func() {
		serveErrs <- server.Start()
	}()

	logger.Info().Str("home", cfg.Home).Int("port", cfg.Port).Msg("kiwibesd started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErrs:
		if err != nil {
			logger.Error().Err(err).Msg("REST server stopped unexpectedly")
		}
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exec.Shutdown(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during REST server shutdown")
	}

	return nil
}

// loadTLSConfig reads kiwibes.crt/kiwibes.key from the home directory.
// Certificate provisioning is an external collaborator's concern; this
// only loads what is already on disk, surfacing ERROR_HTTPS_CERTS_FAIL
// on any failure.
func loadTLSConfig(cfg *config.Config) (*tls.Config, error) {
	certPath := filepath.Join(cfg.Home, "kiwibes.crt")
	keyPath := filepath.Join(cfg.Home, "kiwibes.key")

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, kerrors.New(kerrors.HTTPSCertsFail, err.Error())
	}

	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
