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
	"golang.org/x/time/rate"

	"zapmark/internal/affiliate"
	"zapmark/internal/affiliate/shopee"
	"zapmark/internal/awsutil"
	"zapmark/internal/config"
	"zapmark/internal/gateway"
	"zapmark/internal/httpapi"
	"zapmark/internal/logging"
	"zapmark/internal/observability"
	sqsqueue "zapmark/internal/queue/sqs"
	"zapmark/internal/scheduler"
	"zapmark/internal/store/pg"
	"zapmark/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadScheduler()
	logging.Init("scheduler", cfg.LogFormat)

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
		slog.Error("scheduler db connect failed", "err", err)
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

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		slog.Error("invalid TIMEZONE", "tz", cfg.Timezone, "err", err)
		os.Exit(1)
	}

	gw := &gateway.Client{
		BaseURL: cfg.GatewayBaseURL,
		APIKey:  cfg.GatewayAPIKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}

	providers := affiliate.NewRegistry(
		shopee.New(cfg.ShopeeBaseURL, &http.Client{Timeout: 10 * time.Second}),
		affiliate.Amazon{},
	)

	var events scheduler.EventSink
	if cfg.SQSQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("sqs client init failed", "err", err)
			os.Exit(1)
		}
		events = &sqsqueue.EventProducer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}
	}

	sendDelay := time.Duration(cfg.SendDelayMs) * time.Millisecond
	sched := &scheduler.Scheduler{
		Store:     pg.New(db),
		Gateway:   gw,
		Providers: providers,
		Loc:       loc,
		LockLease: time.Duration(cfg.LockLeaseS) * time.Second,
		SendPace:  rate.NewLimiter(rate.Every(sendDelay), 1),
		Events:    events,
	}

	s := httpapi.New()
	api := &httpapi.SchedulerAPI{Scheduler: sched}
	api.Register(s.Router)
	s.Router.HandleFunc("/healthz", httpapi.Healthz())
	s.Router.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	var c *cron.Cron
	if cfg.CronSpec != "" {
		c = cron.New()
		if _, err := c.AddFunc(cfg.CronSpec, func() {
			res, err := sched.Run(ctx, util.NowUTC())
			if err != nil {
				slog.Error("cron automation batch failed", "err", err)
				return
			}
			slog.Info("cron automation batch done",
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
		slog.Info("scheduler shutdown", "signal", sig.String())
		cancel()
		if c != nil {
			<-c.Stop().Done()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("scheduler listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("scheduler server failed", "err", err)
		os.Exit(1)
	}
}
