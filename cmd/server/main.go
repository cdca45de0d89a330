// Package main is the sentinel server: a local HTTPS API that classifies
// text for hate speech and records user feedback about the predictions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sentinel/internal/certs"
	"sentinel/internal/classifier"
	"sentinel/internal/config"
	"sentinel/internal/handler"
	"sentinel/internal/inference"
	"sentinel/internal/logger"
	"sentinel/internal/middleware"
	"sentinel/internal/repository"
	"sentinel/internal/server"
)

const (
	Version = "1.0.0"
	appName = "sentinel"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Hate speech classification server",
		Long: `Sentinel serves a hate speech text classifier over HTTPS on localhost
and stores user feedback reports in SQLite.

A self-signed certificate is generated under ~/.finalextension on first run.
Set SENTINEL_HTTP_ONLY=1 to serve plain HTTP instead.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yml", "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the API server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cert",
		Short: "Provision the TLS certificate and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return provisionOnly(cmd, configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func serve(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting sentinel...", zap.String("version", Version))

	// Initialize repository
	repo, err := repository.NewReportRepository(cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.EnsureSchema(); err != nil {
		return err
	}

	// Load model. Failure leaves the server up with classification disabled.
	runtime := inference.NewClient(cfg.Model.RuntimeURL, cfg.Model.RequestTimeout)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), cfg.Model.LoadTimeout)
	clf := classifier.Load(loadCtx, runtime, cfg.Model.RepoID, log)
	cancelLoad()

	// TLS
	bundle := certs.NewProvisioner(provisionerOptions(cfg), nil, log).Provision()

	gin.SetMode(cfg.Server.Mode)
	router := newRouter(cfg, handler.NewHandler(clf, repo, log), log)

	srv := server.New(cfg.Server, router, bundle, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Listen(); err != nil {
		return err
	}

	log.Info("Sentinel is running",
		zap.String("url", fmt.Sprintf("%s://%s", srv.Scheme(), srv.Addr())),
		zap.Bool("model_loaded", clf.Loaded()))

	return srv.Run(ctx)
}

func newRouter(cfg *config.Config, h *handler.Handler, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.Metrics(),
	)

	policy := middleware.NewCORS(cfg.Server.CORS)
	router.Use(policy.Handlers()...)
	log.Info("CORS policy selected", zap.String("policy", policy.Name()))

	h.RegisterRoutes(router)
	return router
}

func provisionerOptions(cfg *config.Config) certs.Options {
	return certs.Options{
		HTTPOnly: cfg.TLS.HTTPOnly,
		CertFile: cfg.TLS.CertFile,
		KeyFile:  cfg.TLS.KeyFile,
		Dir:      cfg.TLS.CertDir,
	}
}

func provisionOnly(cmd *cobra.Command, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	result := certs.NewProvisioner(provisionerOptions(cfg), nil, log).Provision()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mode: %s\n", result.Mode)
	if result.Secure() {
		fmt.Fprintf(out, "cert: %s\nkey:  %s\n", result.CertPath, result.KeyPath)
	}
	if result.Err != nil {
		return result.Err
	}
	return nil
}
