// Command trackvd runs the Track-V traffic analytics daemon: the feed
// registry, detection pipeline, alerting, and the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/trackv/trackv/internal/alert"
	"github.com/trackv/trackv/internal/api"
	"github.com/trackv/trackv/internal/config"
	"github.com/trackv/trackv/internal/detect"
	"github.com/trackv/trackv/internal/feed"
	"github.com/trackv/trackv/internal/metrics"
	"github.com/trackv/trackv/internal/monitoring"
	"github.com/trackv/trackv/internal/report"
	"github.com/trackv/trackv/internal/store"
	"github.com/trackv/trackv/internal/tracker"
	"github.com/trackv/trackv/internal/version"
)

var (
	listen     = flag.String("listen", "", "listen address (overrides TRACKV_LISTEN)")
	dbPath     = flag.String("db", "", "sqlite database path (overrides TRACKV_DB_PATH)")
	tuningPath = flag.String("tuning", "tuning.json", "optional JSON tuning overlay")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("trackvd: %v", err)
	}
}

func run(ctx context.Context) error {
	// .env is a development convenience; production sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	tuning, err := config.LoadTuningConfig(*tuningPath)
	if err != nil {
		return err
	}
	if cfg, err = tuning.Apply(cfg); err != nil {
		return err
	}

	monitoring.Logf("trackvd %s starting", version.String())

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.MigrateUp(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var channels alert.MultiNotifier
	if cfg.SMTPHost != "" && len(cfg.AlertRecipients) > 0 {
		channels = append(channels, alert.NewSMTPNotifier(alert.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			Recipients: cfg.AlertRecipients,
		}))
		monitoring.Logf("email alerts enabled: %d recipients via %s", len(cfg.AlertRecipients), cfg.SMTPHost)
	}
	if len(cfg.SMSRecipients) > 0 {
		channels = append(channels, alert.NewSMSNotifier(cfg.SMSRecipients))
		monitoring.Logf("sms alerts enabled: %d recipients", len(cfg.SMSRecipients))
	}
	var notifier alert.Notifier = channels
	if len(channels) == 0 {
		notifier = alert.LogNotifier{}
	}

	alertCfg := alert.DefaultConfig()
	alertCfg.CongestionVehicleThreshold = cfg.CongestionVehicleThreshold
	alertCfg.BottleneckVehicleThreshold = cfg.BottleneckVehicleThreshold
	alertCfg.BottleneckStableThreshold = cfg.BottleneckStableThreshold
	alerts := alert.NewGenerator(alertCfg, st, notifier)

	trackerCfg := tracker.DefaultConfig()
	trackerCfg.MovementEpsilonPx = cfg.MovementEpsilonPx
	trackerCfg.StableThreshold = cfg.StableThreshold
	trackerCfg.StaleAfter = cfg.StaleAfter
	trackerCfg.HysteresisMargin = cfg.HysteresisMargin

	feedCfg := feed.DefaultConfig()
	feedCfg.SampleInterval = cfg.SampleInterval
	feedCfg.TargetWidth = cfg.TargetWidth
	feedCfg.TargetHeight = cfg.TargetHeight
	feedCfg.ReadTimeout = cfg.ReadTimeoutPerFrame
	feedCfg.MaxReadRetries = cfg.MaxReadRetries
	feedCfg.MaxDetectorFailures = cfg.MaxDetectorFailures
	feedCfg.Tracker = trackerCfg

	m := metrics.New()
	detector := detectorFromConfig(cfg)
	registry := feed.NewRegistry(feedCfg, detector, st, alerts, m)

	server := api.NewServer(registry, report.NewGenerator(st), st, m)
	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.LoggingMiddleware(server.ServeMux()),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitoring.Logf("listening on %s", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		monitoring.Logf("shutting down")
		registry.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	monitoring.Logf("bye")
	return nil
}

func detectorFromConfig(cfg config.Config) detect.Detector {
	return detect.NewHTTPDetector(cfg.DetectorURL, cfg.DetectorTimeout)
}
