package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"wled_mapper/core-go/internal/config"
	"wled_mapper/core-go/internal/device"
	"wled_mapper/core-go/internal/discovery"
	"wled_mapper/core-go/internal/httpapi"
	"wled_mapper/core-go/internal/mapping"
	"wled_mapper/core-go/internal/metrics"
	"wled_mapper/core-go/internal/session"
	"wled_mapper/core-go/internal/wled"
)

func main() {
	// A missing .env is fine; the environment alone is enough.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		l := httpapi.NewLogger("info", "json")
		l.Fatal().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		l := httpapi.NewLogger("info", "json")
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := httpapi.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sessions := session.NewManager(logger, session.Options{
		Device: device.Options{
			Client:  wled.Config{Timeout: cfg.ControllerTimeout},
			Metrics: m,
		},
		Layout: mapping.LayoutOptions{
			Spacing:    cfg.LayoutSpacing,
			TopPadding: cfg.LayoutTopPadding,
		},
	})
	openInitialSession(ctx, logger, sessions, cfg)

	browser := discovery.NewBrowser(logger, discovery.Config{
		Service: cfg.DiscoveryService,
		Timeout: cfg.DiscoveryTimeout,
	})

	h := httpapi.NewHandler(logger, sessions, browser, m)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("wled-mapper listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

// openInitialSession opens the session named by the environment, if any. A
// failure is logged and the service starts without a session.
func openInitialSession(ctx context.Context, logger zerolog.Logger, sessions *session.Manager, cfg *config.Config) {
	setup := session.Setup{Host: cfg.ControllerHost, PixelCount: cfg.StandalonePixels}
	if cfg.StandaloneMapping != "" {
		data, err := os.ReadFile(cfg.StandaloneMapping)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.StandaloneMapping).Msg("failed to read standalone mapping")
			return
		}
		setup.Mapping = string(data)
	}
	if setup.Host == "" && !cfg.HasStandalone() {
		return
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.ControllerTimeout+time.Second)
	defer cancel()
	st, err := sessions.Open(openCtx, setup)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open initial session")
		return
	}
	logger.Info().Str("kind", string(st.Kind)).Str("name", st.Name).Int("total", st.Total).Msg("initial session ready")
}
