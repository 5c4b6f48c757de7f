package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/SkogAI/agentpool/alert"
	"github.com/SkogAI/agentpool/api"
	"github.com/SkogAI/agentpool/config"
	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/journal"
	"github.com/SkogAI/agentpool/logger"
	"github.com/SkogAI/agentpool/manager"
	"github.com/SkogAI/agentpool/pgfactory"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	startTime := time.Now()
	logger.Info("Starting agentpool daemon", "startup_time", startTime.Format(time.RFC3339))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err, "path", *configPath)
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Info("Config loaded", "targets", len(cfg.Targets), "api_addr", cfg.API.Address)

	sink, jnl, rdb := buildSinks(cfg)
	defer func() {
		if jnl != nil {
			jnl.Close()
		}
		if rdb != nil {
			rdb.Close()
		}
	}()

	mgr := manager.New(pgfactory.New(), sink)
	for _, target := range cfg.Targets {
		if err := mgr.AddTarget(target); err != nil {
			logger.Error("Failed to register target", "error", err, "target", target.Name)
			log.Fatalf("failed to register target %s: %v", target.Name, err)
		}
	}
	mgr.Start()
	logger.Info("Pools started", "targets", len(cfg.Targets))

	pruneDone := make(chan struct{})
	if jnl != nil && cfg.Alerts.JournalRetentionDays > 0 {
		go pruneLoop(jnl, cfg.Alerts.JournalRetentionDays, pruneDone)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.HandleFunc("/debug/pprof/", pprof.Index)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	r.Handle("/debug/pprof/heap", pprof.Handler("heap"))

	restHandler := api.NewRESTHandler(mgr, jnl)
	restHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:    cfg.API.Address,
		Handler: r,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.API.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err, "addr", cfg.API.Address)
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	close(pruneDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if err := mgr.Close(); err != nil {
		logger.Error("Pool shutdown finished with errors", "error", err)
	}
	logger.Info("Shutdown complete", "uptime", time.Since(startTime).String())
}

// buildSinks assembles the alert pipeline: structured log always, plus the
// pebble journal and a redis channel when configured. Everything except the
// log sink sits behind the rate limiter.
func buildSinks(cfg *config.Config) (health.Sink, *journal.Journal, *redis.Client) {
	var throttled []health.Sink

	var jnl *journal.Journal
	if cfg.Alerts.JournalPath != "" {
		var err error
		jnl, err = journal.Open(cfg.Alerts.JournalPath)
		if err != nil {
			logger.Error("Failed to open alert journal", "error", err, "path", cfg.Alerts.JournalPath)
			log.Fatalf("failed to open alert journal: %v", err)
		}
		throttled = append(throttled, journal.NewSink(jnl))
	}

	var rdb *redis.Client
	if cfg.Alerts.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Alerts.RedisAddr})
		throttled = append(throttled, alert.NewRedisSink(rdb, alert.WithChannel(cfg.Alerts.RedisChannel)))
		logger.Info("Redis alert sink enabled", "addr", cfg.Alerts.RedisAddr, "channel", cfg.Alerts.RedisChannel)
	}

	sinks := []health.Sink{alert.NewLogSink()}
	if len(throttled) > 0 {
		perSecond := float64(cfg.Alerts.EventsPerMinute) / 60.0
		burst := cfg.Alerts.EventsPerMinute
		if burst < 1 {
			burst = 1
		}
		sinks = append(sinks, alert.NewThrottled(alert.NewMulti(throttled...), perSecond, burst))
	}
	return alert.NewMulti(sinks...), jnl, rdb
}

func pruneLoop(jnl *journal.Journal, retentionDays int, done <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			if err := jnl.PruneBefore(cutoff); err != nil {
				logger.Warn("Journal prune failed", "error", err)
			}
		case <-done:
			return
		}
	}
}
