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

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/config"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/database"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/discid"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "discograph-api",
		Short: "Disc id attach, move and removal service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueSessionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database", defaults.GetString("database.dsn"), "SQLite path or PostgreSQL DSN")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("login-path", defaults.GetString("session.login_path"), "Login page unauthenticated editors are sent to")
	cmd.PersistentFlags().Int("page-size", defaults.GetInt("pagination.page_size"), "Candidate listing page size")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.dsn", "database")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "session.login_path", "login-path")
	bindFlag(cmd, "pagination.page_size", "page-size")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newIssueSessionCommand() *cobra.Command {
	var (
		editorID   int64
		editorName string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-session",
		Short: "Print a signed editor session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.SessionSigningSecret),
				Issuer:        appConfig.SessionIssuer,
				TTL:           ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(editorID, editorName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n# expires %s\n", appConfig.SessionCookieName, token, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Int64Var(&editorID, "editor-id", 0, "Editor id")
	cmd.Flags().StringVar(&editorName, "editor-name", "", "Editor name")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Session lifetime")
	_ = cmd.MarkFlagRequired("editor-id")
	_ = cmd.MarkFlagRequired("editor-name")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := catalog.NewStore(catalog.StoreConfig{
		Database:       db,
		FormatCacheTTL: appConfig.FormatCacheTTL,
	})
	if err != nil {
		return err
	}

	queue, err := edits.NewQueue(edits.QueueConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewDiscIDMetrics(registry)
	if err != nil {
		return err
	}

	discIDService, err := discid.NewService(discid.ServiceConfig{
		Mediums:      store,
		Releases:     store,
		Artists:      store,
		CDTOCs:       store,
		MediumCDTOCs: store,
		CDStubs:      store,
		Edits:        queue,
		Recorder:     recorder,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		DiscIDs:        discIDService,
		Releases:       store,
		Edits:          queue,
		Sessions:       sessions,
		LoginPath:      appConfig.SessionLoginPath,
		PageSize:       appConfig.PageSize,
		AllowedOrigins: appConfig.AllowedOrigins,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
