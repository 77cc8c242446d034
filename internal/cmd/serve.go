package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/yakoovad/pr-daemon/internal/api"
	"github.com/yakoovad/pr-daemon/internal/auth"
	"github.com/yakoovad/pr-daemon/internal/service"
	"github.com/yakoovad/pr-daemon/internal/webhook"
	"go.uber.org/zap"
)

var (
	serveNoScan    bool
	serveNoMigrate bool
)

// Version is stamped at build time.
var Version = "dev"

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoScan, "no-scan", false, "Serve HTTP only; run the scans in a separate worker")
	serveCmd.Flags().BoolVar(&serveNoMigrate, "no-migrate", false, "Skip applying database migrations on start")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook and team API, and run the alert scans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}
		if err = cfg.Auth.Validate(); err != nil {
			return errors.Wrap(err, "team API needs a token secret")
		}

		a, err := newApp(ctx, cfg, l, !serveNoMigrate)
		if err != nil {
			return err
		}
		defer a.close()

		health, err := api.NewHealthChecker(Version, api.PostgresCheck(a.pool))
		if err != nil {
			return err
		}

		lifecycle := service.NewLifecycleService(a.tx).
			WithRepoRepo(a.repos).
			WithPullRequestRepo(a.prs).
			WithTeamRepo(a.teams)
		teams := service.NewTeamService(a.tx).
			WithTeamRepo(a.teams).
			WithPullRequestRepo(a.prs)

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true

		api.NewHandler(a.logger).
			WithHealthChecker(health).
			WithLifecycleService(lifecycle).
			WithTeamService(teams).
			WithNormalizer(webhook.NewNormalizer(time.Now)).
			WithSigner(auth.NewSigner(a.cfg.Auth.TokenSecret)).
			WithWebhookSecret(a.cfg.Github.WebhookSecret).
			RegisterRoutes(e)

		if a.cfg.Github.WebhookSecret == "" {
			a.logger.Warn("github webhook secret not set, deliveries are not verified")
		}

		if !serveNoScan {
			s, dispatcher := a.alerting()
			s.Start()
			defer func() {
				s.Stop()
				dispatcher.Close()
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("server starting", zap.String("addr", a.cfg.ServerAddr()))
			if err := e.Start(a.cfg.ServerAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
		case err = <-errCh:
			if err != nil {
				return errors.Wrap(err, "start server")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err = e.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", zap.Error(err))
		}
		return nil
	},
}
