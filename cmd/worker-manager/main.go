// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"certification-workers/internal/application"
	"certification-workers/internal/audit"
	"certification-workers/internal/certificate"
	awsclient "certification-workers/internal/common/aws"
	"certification-workers/internal/common/camunda"
	"certification-workers/internal/common/config"
	"certification-workers/internal/common/database"
	"certification-workers/internal/common/lock"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/observability"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/expiry"
	"certification-workers/internal/notification"
	"certification-workers/internal/payment"
	"certification-workers/internal/sla"
	"certification-workers/internal/store"

	tas "certification-workers/internal/workers/application/transition-application-status"
	ic "certification-workers/internal/workers/certificate/issue-certificate"
	vc "certification-workers/internal/workers/certificate/verify-certificate"
	esb "certification-workers/internal/workers/lifecycle/evaluate-sla-breach"
	res "certification-workers/internal/workers/lifecycle/run-expiry-sweep"
	dn "certification-workers/internal/workers/notification/delete-notifications"
	ln "certification-workers/internal/workers/notification/list-notifications"
	mnr "certification-workers/internal/workers/notification/mark-notifications-read"
	dpo "certification-workers/internal/workers/payment/dispatch-payment-outcome"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Service:     cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("httpAddress", cfg.App.HTTPAddress),
		zap.String("locking", cfg.Locking.Backend),
	)

	obs := observability.New(cfg.App.Name, zapLog)

	ctx := context.Background()

	validator, err := validation.Load(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.Error(err))
	}

	// --- Init Zeebe Client ---
	zeebe, err := camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda))
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if err := pg.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		zapLog.Warn("postgres pool metrics not registered", zap.Error(err))
	}

	repo := store.NewPostgres(pg.DB, config.GetDuration(cfg.Database.Postgres.TxTimeout))
	if cfg.Database.Postgres.Migrate {
		if err := repo.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Schema migrated")
	}

	// --- Per-entity locks ---
	var (
		locker lock.Locker
		rdb    *database.RedisClient
	)
	switch cfg.Locking.Backend {
	case "redis":
		rdb = database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb.Client, lock.RedisConfig{
			TTL:          config.GetDuration(cfg.Locking.TTL),
			WaitTimeout:  config.GetDuration(cfg.Locking.WaitTimeout),
			PollInterval: config.GetDuration(cfg.Locking.PollInterval),
		}, log)
		zapLog.Info("Redis connected successfully")
	default:
		locker = lock.NewLocalLocker()
		zapLog.Warn("Using in-process locks; run a single replica")
	}

	// --- Certificate index ---
	var issuerOpts []certificate.Option
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		index := cfg.Database.Elasticsearch.CertificateIndex
		created, err := esClient.EnsureIndex(ctx, index, certificate.IndexMapping)
		if err != nil {
			zapLog.Fatal("certificate index setup failed", zap.String("index", index), zap.Error(err))
		}
		if created {
			zapLog.Info("Certificate index created", zap.String("index", index))
		}
		issuerOpts = append(issuerOpts, certificate.WithIndex(
			certificate.NewESIndex(esClient.Client, index)))
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Outbound delivery ---
	var deliverer *notification.Deliverer
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		clients, err := awsclient.NewClients(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws clients failed", zap.Error(err))
		}
		var (
			sesAPI awsclient.SESAPI
			snsAPI awsclient.SNSAPI
		)
		if cfg.Notifications.Email.Enabled {
			sesAPI = clients.SES
		}
		if cfg.Notifications.SMS.Enabled {
			snsAPI = clients.SNS
		}
		deliverer = notification.NewDeliverer(sesAPI, snsAPI, notification.DeliveryConfigFrom(cfg.Notifications), log)
		zapLog.Info("Outbound delivery enabled",
			zap.Bool("email", cfg.Notifications.Email.Enabled),
			zap.Bool("sms", cfg.Notifications.SMS.Enabled),
		)
	}

	// --- Lifecycle services ---
	sink := audit.NewPostgresSink(pg.DB)
	recorder := audit.NewRecorder(sink, sink, log)
	issuer := certificate.NewIssuer(repo, certificate.ConfigFrom(cfg.Lifecycle), log, issuerOpts...)
	notifier := notification.NewService(repo, notification.StoreDirectory{Users: repo}, deliverer,
		cfg.Notifications.DefaultPageSize, log)
	machine := application.NewStateMachine(repo, locker, issuer, notifier, recorder,
		application.ConfigFrom(cfg.Lifecycle), log)
	dispatcher := payment.NewDispatcher(repo, locker, machine, issuer, notifier, recorder, log)
	evaluator := sla.NewEvaluator(repo, machine, sla.StaticSettings(cfg.SLA.Thresholds), notifier, log)
	sweeper := expiry.NewSweeper(repo, notifier, issuer, expiry.ConfigFrom(cfg.Expiry), log)

	// --- Register Workers ---
	handlers := map[string]worker.JobHandler{
		tas.TaskType: tas.NewHandler(tas.LoadConfig(config.GetWorkerConfig(cfg, tas.TaskType)), machine, validator, log).Handle,
		dpo.TaskType: dpo.NewHandler(dpo.LoadConfig(config.GetWorkerConfig(cfg, dpo.TaskType)), dispatcher, validator, log).Handle,
		ic.TaskType:  ic.NewHandler(ic.LoadConfig(config.GetWorkerConfig(cfg, ic.TaskType)), issuer, validator, log).Handle,
		vc.TaskType:  vc.NewHandler(vc.LoadConfig(config.GetWorkerConfig(cfg, vc.TaskType)), issuer, validator, log).Handle,
		ln.TaskType:  ln.NewHandler(ln.LoadConfig(config.GetWorkerConfig(cfg, ln.TaskType)), notifier, validator, log).Handle,
		mnr.TaskType: mnr.NewHandler(mnr.LoadConfig(config.GetWorkerConfig(cfg, mnr.TaskType)), notifier, validator, log).Handle,
		dn.TaskType:  dn.NewHandler(dn.LoadConfig(config.GetWorkerConfig(cfg, dn.TaskType)), notifier, validator, log).Handle,
		esb.TaskType: esb.NewHandler(esb.LoadConfig(config.GetWorkerConfig(cfg, esb.TaskType)), evaluator, validator, log).Handle,
		res.TaskType: res.NewHandler(res.LoadConfig(config.GetWorkerConfig(cfg, res.TaskType)), sweeper, validator, log).Handle,
	}

	var jobWorkers []worker.JobWorker
	for taskType, handler := range handlers {
		jw := camunda.StartWorker(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handler, obs, zapLog)
		if jw != nil {
			jobWorkers = append(jobWorkers, jw)
		}
	}
	zapLog.Info("Workers registered", zap.Int("started", len(jobWorkers)), zap.Int("known", len(handlers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pg.Ping(checkCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(checkCtx); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.App.HTTPAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.App.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, jw := range jobWorkers {
		jw.Close()
		jw.AwaitClose()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing telemetry", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
