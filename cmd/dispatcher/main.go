package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"zapmark/internal/config"
	"zapmark/internal/dispatcher"
	"zapmark/internal/gateway"
	"zapmark/internal/httpapi"
	"zapmark/internal/logging"
	"zapmark/internal/observability"
	"zapmark/internal/store/pg"
	"zapmark/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadDispatcher()
	logging.Init("dispatcher", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("dispatcher db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	gw := &gateway.Client{
		BaseURL: cfg.GatewayBaseURL,
		APIKey:  cfg.GatewayAPIKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})

	groupDelay := time.Duration(cfg.GroupDelayMs) * time.Millisecond
	st := pg.New(db)
	d := &dispatcher.Dispatcher{
		Store:     st,
		Gateway:   gw,
		BatchSize: cfg.JobBatchSize,
		Pace:      rate.NewLimiter(rate.Every(groupDelay), 1),
		Breaker:   cb,
	}

	s := httpapi.New()
	api := &httpapi.DispatcherAPI{Dispatcher: d, Jobs: st}
	api.Register(s.Router)
	s.Router.HandleFunc("/healthz", httpapi.Healthz())
	s.Router.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	// Optional in-process trigger for environments without an external
	// cron hitting /v1/jobs/run.
	var c *cron.Cron
	if cfg.CronSpec != "" {
		c = cron.New()
		if _, err := c.AddFunc(cfg.CronSpec, func() {
			res, err := d.Run(ctx, util.NowUTC())
			if err != nil {
				slog.Error("cron dispatch batch failed", "err", err)
				return
			}
			slog.Info("cron dispatch batch done",
				"processed", res.Processed, "errors", res.Errors, "total", res.Total)
		}); err != nil {
			slog.Error("invalid CRON_SPEC", "spec", cfg.CronSpec, "err", err)
			os.Exit(1)
		}
		c.Start()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(s.Router),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("dispatcher shutdown", "signal", sig.String())
		cancel()
		if c != nil {
			<-c.Stop().Done()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("dispatcher listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("dispatcher server failed", "err", err)
		os.Exit(1)
	}
}
