package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/slotscout/internal/auth"
	"github.com/example/slotscout/internal/config"
	"github.com/example/slotscout/internal/jobs"
	"github.com/example/slotscout/internal/metrics"
	"github.com/example/slotscout/internal/ratelimit"
	"github.com/example/slotscout/internal/telemetry"
	"github.com/example/slotscout/internal/web"
	"github.com/spf13/cobra"
)

func newServerCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the web UI and the scrape API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			tel, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					slog.Warn("telemetry shutdown", "err", err)
				}
			}()

			store, err := openArchive(ctx, cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			var authStore *auth.Store
			if cfg.AdminEnabled() {
				authStore, err = auth.NewStore(cfg.Admin.Username, cfg.Admin.PasswordBcrypt, cfg.CookieHashKey, cfg.CookieBlockKey)
				if err != nil {
					return err
				}
			} else {
				slog.Info("admin pages disabled: ADMIN_USERNAME, ADMIN_PASSWORD_BCRYPT and COOKIE_HASH_KEY not all set")
			}

			ads, err := buildAdapters(cfg)
			if err != nil {
				return err
			}
			m := metrics.New()
			orch := jobs.New(ads.registry, jobs.Options{Archive: store, Metrics: m})

			ws := &web.Server{
				Jobs:       orch,
				Limiter:    ratelimit.New(cfg.RateLimit),
				Cities:     ads.ayo,
				Archive:    store,
				Auth:       authStore,
				Metrics:    m,
				StreamPoll: cfg.StreamPoll,
			}
			if err := web.Start(ctx, cfg.ListenAddr, ws.Routes()); err != nil {
				return err
			}

			// let running jobs reach the archive
			waitCtx, cancelWait := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelWait()
			if err := orch.Wait(waitCtx); err != nil {
				slog.Warn("jobs still running at shutdown", "err", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides LISTEN_ADDR)")
	return cmd
}
