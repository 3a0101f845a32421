// Package main is the entry point for the farewatch price monitor.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wadatrip/farewatch/internal/advisor"
	"github.com/wadatrip/farewatch/internal/api"
	"github.com/wadatrip/farewatch/internal/config"
	"github.com/wadatrip/farewatch/internal/detector"
	"github.com/wadatrip/farewatch/internal/ingest"
	"github.com/wadatrip/farewatch/internal/metrics"
	"github.com/wadatrip/farewatch/internal/monitor"
	"github.com/wadatrip/farewatch/internal/notify"
	"github.com/wadatrip/farewatch/internal/store"
	"github.com/wadatrip/farewatch/internal/ui"
)

const (
	// QuoteChannelBuffer is the size of the buffered quote channel
	QuoteChannelBuffer = 1000
	// AlertChannelBuffer is the size of the buffered alert channel feeding the TUI
	AlertChannelBuffer = 100
	// UIQuoteBuffer is the size of the quote feed shown in the TUI
	UIQuoteBuffer = 100

	routeRefreshInterval = time.Minute
	cleanupInterval      = 5 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("farewatch starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"http_addr", cfg.HTTPAddr,
		"min_check_interval", cfg.MinCheckInterval,
		"quote_feed_ws_url", cfg.QuoteFeedWSURL,
		"quote_poll_interval", cfg.QuotePollInterval,
		"serpapi_key", cfg.MaskedSerpAPIKey(),
		"discord_webhook", cfg.MaskedDiscordWebhook(),
		"email_enabled", cfg.EmailEnabled(),
		"redis_addr", cfg.RedisAddr,
		"postgres_dsn", cfg.MaskedPostgresDSN(),
		"kafka_brokers", strings.Join(cfg.KafkaBrokers, ","),
		"enable_tui", cfg.EnableTUI,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	quoteChan := make(chan store.Quote, QuoteChannelBuffer)
	alertChan := make(chan store.Alert, AlertChannelBuffer)
	uiQuoteChan := make(chan store.Quote, UIQuoteBuffer)

	tracker := metrics.NewMetricsTracker()
	book := ingest.NewQuoteBook(cfg.QuoteMaxAge, time.Now)

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tracker.Cleanup()
				if n := book.Prune(); n > 0 {
					slog.Debug("quotes_pruned", "count", n, "received_total", book.Total())
				}
			}
		}
	}()

	// Estimation
	var advisorOpts []advisor.Option
	if len(cfg.LongHaulRoutes) > 0 || len(cfg.PopularRoutes) > 0 {
		longHaul, popular := cfg.LongHaulRoutes, cfg.PopularRoutes
		if len(longHaul) == 0 {
			longHaul = advisor.DefaultLongHaulRoutes
		}
		if len(popular) == 0 {
			popular = advisor.DefaultPopularRoutes
		}
		advisorOpts = append(advisorOpts, advisor.WithRoutes(advisor.NewRouteTable(longHaul, popular)))
	}
	adv := advisor.New(advisorOpts...)

	// Persistence
	recorder, closeRecorders := setupRecorders(ctx, cfg)
	defer closeRecorders()

	// Quote sources
	sources := []ingest.PriceSource{book}
	var searcher ingest.Searcher
	if cfg.SerpAPIKey != "" {
		searcher = trackedSearcher{
			Searcher: &ingest.SerpAPIProvider{
				APIKey:  cfg.SerpAPIKey,
				BaseURL: cfg.SerpAPIBaseURL,
				Timeout: cfg.ProviderTimeout,
				Retries: cfg.ProviderRetries,
				Backoff: cfg.ProviderBackoff,
			},
			tracker: tracker,
		}
		sources = append(sources, ingest.SearchSource{Searcher: searcher, OnQuote: book.Add})
	}

	sched := monitor.NewScheduler(adv,
		monitor.WithLogger(logger),
		monitor.WithNotifier(setupNotifiers(cfg, logger, alertChan)),
		monitor.WithRecorder(recorder),
		monitor.WithQuoteProvider(ingest.NewAggregator(sources...)),
		monitor.WithDetector(detector.NewDetector(cfg)),
		monitor.WithObserver(tracker),
		monitor.WithMinInterval(cfg.MinCheckInterval),
		monitor.WithSideEffectTimeout(cfg.SideEffectTimeout),
	)

	go book.Run(ctx, quoteChan, func(q store.Quote) {
		tracker.RecordQuote(q)
		tracker.SetChannelBuffer(len(quoteChan), cap(quoteChan))
		select {
		case uiQuoteChan <- q:
		default:
		}
	})

	var listener *ingest.Listener
	if cfg.QuoteFeedWSURL != "" {
		listener = ingest.NewListener(cfg.QuoteFeedWSURL, quoteChan)
		listener.SetRoutes(ingest.RouteKeys(sched.ListActiveMonitors()))
		listener.SetStatusHandler(tracker.SetWebSocketStatus)
		listener.Start(ctx)

		go refreshRoutes(ctx, listener, sched)
	}

	if searcher != nil {
		poller := ingest.NewQuotePoller(searcher, cfg.QuotePollInterval, func() []store.QuoteRequest {
			return pollRequests(sched.ListActiveMonitors())
		}, quoteChan)
		go poller.Start(ctx)
		slog.Info("quote_poller_started", "interval", cfg.QuotePollInterval)
	}

	// HTTP API
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandlers(sched, adv, api.WithWebhookHosts(cfg.WebhookAllowedHosts)), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http_server_error", "error", err)
			cancel()
		}
	}()

	slog.Info("engine_started",
		"status", "accepting monitors",
		"http_addr", cfg.HTTPAddr,
		"live_feed", listener != nil,
		"provider_search", searcher != nil,
		"tui_enabled", cfg.EnableTUI,
	)

	if cfg.EnableTUI {
		slog.Info("starting_tui")
		app := ui.NewApp(alertChan, uiQuoteChan, book, tracker, sched, cfg.UIRefreshRate)

		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
			}
			cancel()
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			app.Stop()
		case <-ctx.Done():
			app.Stop()
		}
	} else {
		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
		case <-ctx.Done():
		}
	}

	cancel()

	slog.Info("shutting_down", "status", "stopping http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http_shutdown_failed", "error", err)
	}

	sched.Close()
	if listener != nil {
		listener.Stop()
	}

	drainQuotes(quoteChan)

	slog.Info("shutdown_complete")
}

// setupNotifiers builds the alert fan-out from whatever channels are configured.
func setupNotifiers(cfg *config.Config, logger *slog.Logger, alertChan chan<- store.Alert) notify.Notifier {
	webhook := notify.NewWebhookNotifier(cfg.DiscordWebhookURL, cfg.SideEffectTimeout)
	webhook.AllowedHosts = cfg.WebhookAllowedHosts

	notifiers := notify.Multi{
		notify.LogNotifier{Logger: logger},
		webhook,
	}
	if cfg.EmailEnabled() {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Sender:   cfg.SMTPSender,
		}))
	}
	if cfg.EnableTUI {
		notifiers = append(notifiers, notify.ChannelNotifier{C: alertChan, Now: time.Now})
	}
	return notifiers
}

// setupRecorders connects every configured sink. A sink that fails to
// connect is logged and skipped so the monitor keeps running.
func setupRecorders(ctx context.Context, cfg *config.Config) (store.Recorder, func()) {
	var recorders store.MultiRecorder
	var closers []func()

	if cfg.RedisAddr != "" {
		client, err := store.NewRedisClient(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			slog.Warn("redis_unavailable", "error", err)
		} else {
			recorders = append(recorders, store.NewRedisRecorder(client))
			closers = append(closers, func() { _ = client.Close() })
			slog.Info("redis_connected", "addr", cfg.RedisAddr)
		}
	}

	if cfg.PostgresDSN != "" {
		pool, err := store.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			slog.Warn("postgres_unavailable", "error", err)
		} else {
			rec := store.NewPostgresRecorder(pool)
			if err := rec.Migrate(ctx); err != nil {
				slog.Warn("postgres_migrate_failed", "error", err)
				pool.Close()
			} else {
				recorders = append(recorders, rec)
				closers = append(closers, pool.Close)
				slog.Info("postgres_connected")
			}
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		rec := store.NewKafkaRecorder(cfg.KafkaBrokers, cfg.KafkaTopic)
		recorders = append(recorders, rec)
		closers = append(closers, func() {
			if err := rec.Close(); err != nil {
				slog.Warn("kafka_close_failed", "error", err)
			}
		})
		slog.Info("kafka_writer_ready", "topic", cfg.KafkaTopic)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if len(recorders) == 0 {
		return nil, closeAll
	}
	return recorders, closeAll
}

// refreshRoutes keeps the live feed subscription in line with active monitors.
func refreshRoutes(ctx context.Context, listener *ingest.Listener, sched *monitor.Scheduler) {
	ticker := time.NewTicker(routeRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			listener.SetRoutes(ingest.RouteKeys(sched.ListActiveMonitors()))
		}
	}
}

// pollRequests returns the searches worth running for the given monitors.
// Providers need a departure date.
func pollRequests(monitors []store.Monitor) []store.QuoteRequest {
	reqs := make([]store.QuoteRequest, 0, len(monitors))
	for _, m := range monitors {
		if m.DepartureDate == nil {
			continue
		}
		reqs = append(reqs, m.QuoteRequest())
	}
	return reqs
}

// trackedSearcher records provider activity for the dashboard.
type trackedSearcher struct {
	ingest.Searcher
	tracker *metrics.MetricsTracker
}

func (s trackedSearcher) Search(ctx context.Context, req store.QuoteRequest) (store.Quote, error) {
	q, err := s.Searcher.Search(ctx, req)
	s.tracker.SetLastProviderPoll(time.Now())
	return q, err
}

// drainQuotes discards remaining quotes during shutdown.
func drainQuotes(quoteChan <-chan store.Quote) {
	drained := 0
	for {
		select {
		case <-quoteChan:
			drained++
		default:
			if drained > 0 {
				slog.Info("quotes_drained", "count", drained)
			}
			return
		}
	}
}

// setupLogger creates a structured logger with the specified level.
// Format: 2026-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
