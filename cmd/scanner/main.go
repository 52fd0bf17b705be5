package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scanner-systemv1/config"
	"scanner-systemv1/internal/logger"
	"scanner-systemv1/internal/metrics"
	"scanner-systemv1/internal/model"
	"scanner-systemv1/internal/notification"
	"scanner-systemv1/internal/pattern"
	"scanner-systemv1/internal/scanner"
	redisstore "scanner-systemv1/internal/store/redis"
	sqlitestore "scanner-systemv1/internal/store/sqlite"
	"scanner-systemv1/internal/state"
	"scanner-systemv1/internal/stream"
)

func main() {
	cfg := config.Load()
	log := logger.Init("scanner", logger.ParseLevel(cfg.LogLevel))
	log.Info("[scanner] starting")

	tickers := cfg.ParseTickers()
	log.Info("[scanner] subscription", "tickers", tickers, "max_bars", cfg.MaxBars)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Shutdown plumbing ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Persisted-bar store (backfill + signal journal) ----
	os.MkdirAll("data", 0o755)
	db, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Error("[scanner] sqlite init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	health.SetSQLiteOK(true)

	// ---- State store, warmed from persisted history ----
	store := state.NewStore(cfg.MaxBars)
	for _, t := range tickers {
		bars, err := db.ReadBars(t, cfg.MaxBars)
		if err != nil {
			log.Warn("[scanner] backfill read failed", "ticker", t, "err", err)
			continue
		}
		for _, b := range bars {
			store.Update(t, b)
		}
		if len(bars) > 0 {
			log.Info("[scanner] backfilled", "ticker", t, "bars", len(bars))
		}
	}

	// ---- Pattern registry ----
	registry := pattern.NewRegistry()
	registry.Register(pattern.NewSessionLow())
	log.Info("[scanner] detectors registered", "active", len(registry.Active()))

	// ---- Scan loop ----
	scan := scanner.New(store, registry, 256)
	scan.OnScan = func(d time.Duration) { prom.ScanDur.Observe(d.Seconds()) }

	// ---- Redis signal publisher ----
	var pub *redisstore.Publisher
	pub, err = redisstore.New(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("[scanner] redis init failed, signals will only be journaled", "err", err)
		health.SetRedisConnected(false)
		pub = nil
	} else {
		defer pub.Close()
		health.SetRedisConnected(true)
	}

	// ---- Outbound notification channels ----
	var channels []notification.Notifier
	if cfg.WebhookURL != "" {
		channels = append(channels, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		channels = append(channels, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	notify := notification.NewMulti(channels...)
	log.Info("[scanner] notification channels", "count", notify.Len())

	// Signal fan-out: journal to SQLite, publish to Redis, notify, count.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-scan.Signals():
				if !ok {
					return
				}
				handleSignal(ctx, log, prom, db, pub, notify, &sig)
			}
		}
	}()

	// ---- Liveness checks ----
	if pub != nil {
		health.StartLivenessChecker(ctx, pub.Client(), db.DB(), 30*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, db.DB(), 30*time.Second)
	}

	// ---- Store gauges ----
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := store.MemoryStats()
				prom.TrackedTickers.Set(float64(stats.Tickers))
				prom.RetainedBars.Set(float64(stats.TotalBars))
			}
		}
	}()

	// ---- Streaming ingestion client ----
	client := stream.NewClient(stream.Config{
		URL:            cfg.WSURL,
		APIKey:         cfg.PolygonAPIKey,
		Tickers:        tickers,
		AggPrefix:      cfg.AggPrefix,
		KeepAlive:      cfg.KeepAlive(),
		ReconnectDelay: cfg.ReconnectDelay(),
		AuthTimeout:    cfg.AuthTimeout(),
		MaxReconnects:  cfg.MaxReconnectAttempts,
	}, store)

	terminalCh := make(chan error, 1)
	client.OnBar = func(bar model.Bar) {
		prom.BarsTotal.Inc()
		health.SetWSConnected(true)
		health.SetLastBarTime(time.Now())
		scan.OnBar(bar)
	}
	client.OnReconnect = func() {
		prom.WSReconnects.Inc()
		health.SetWSConnected(false)
	}
	client.OnDropped = func() { prom.EventsDropped.Inc() }
	client.OnTerminal = func(err error) {
		select {
		case terminalCh <- err:
		default:
		}
	}

	if err := client.Connect(); err != nil {
		log.Error("[scanner] initial connect failed", "err", err)
		os.Exit(1)
	}
	health.SetWSConnected(true)

	// ---- Run until shutdown or terminal stream failure ----
	select {
	case s := <-sigCh:
		log.Info("[scanner] shutting down", "signal", s.String())
	case err := <-terminalCh:
		log.Error("[scanner] stream terminally failed", "err", err)
	}

	client.Disconnect()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Info("[scanner] stopped")
}

// handleSignal journals, publishes and notifies one emitted signal.
func handleSignal(ctx context.Context, log *slog.Logger, prom *metrics.Metrics,
	db *sqlitestore.Store, pub *redisstore.Publisher, notify *notification.Multi, sig *model.Signal) {

	prom.SignalsTotal.WithLabelValues(sig.Pattern).Inc()
	log.Info("[scanner] signal",
		"ticker", sig.Ticker, "pattern", sig.Pattern,
		"entry", sig.Entry, "stop", sig.Stop, "target", sig.Target,
		"confidence", sig.Confidence)

	if err := db.WriteSignal(ctx, sig); err != nil {
		log.Warn("[scanner] signal journal failed", "err", err)
	}
	if pub != nil {
		start := time.Now()
		if err := pub.Publish(ctx, sig); err != nil {
			log.Warn("[scanner] signal publish failed", "err", err)
		}
		prom.RedisPublishDur.Observe(time.Since(start).Seconds())
	}
	if notify.Len() > 0 {
		nctx, ncancel := context.WithTimeout(ctx, 15*time.Second)
		defer ncancel()
		notify.Notify(nctx, sig)
	}
}
