// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"marketplace-workers/internal/common/aws"
	"marketplace-workers/internal/common/camunda"
	"marketplace-workers/internal/common/config"
	"marketplace-workers/internal/common/database"
	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/common/observability"
	"marketplace-workers/pkg/registry"

	// Marketplace Workers (3)
	il "marketplace-workers/internal/workers/marketplace/index-listing"
	mr "marketplace-workers/internal/workers/marketplace/match-radar"
	sl "marketplace-workers/internal/workers/marketplace/score-listing"

	// Jobs Workers (1)
	mp "marketplace-workers/internal/workers/jobs/match-professionals"

	// Radar Lifecycle Workers (2)
	cs "marketplace-workers/internal/workers/radar/create-subscription"
	xs "marketplace-workers/internal/workers/radar/expire-subscriptions"

	// Notification Workers (1)
	sn "marketplace-workers/internal/workers/notification/send-notification"
)

var taskWorkers []*camunda.TaskWorker

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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	// Registry mismatches are operator errors, not fatal ones. Workers still
	// start so a stale registry file cannot take delivery down.
	if reg, regErr := registry.LoadRegistry(cfg.Registry.Path); regErr != nil {
		zapLog.Warn("activity registry unavailable", zap.String("path", cfg.Registry.Path), zap.Error(regErr))
	} else {
		for taskType, wcfg := range cfg.Workers {
			if !wcfg.Enabled {
				continue
			}
			if _, ok := reg.FindByTaskType(taskType); !ok {
				zapLog.Warn("enabled worker missing from activity registry", zap.String("taskType", taskType))
			}
		}
	}

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := camundaClient.GetClient()
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

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init AWS Clients ---
	snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWSRegion)
	if err != nil {
		zapLog.Fatal("sns client initialization failed", zap.Error(err))
	}
	sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWSRegion)
	if err != nil {
		zapLog.Fatal("ses client initialization failed", zap.Error(err))
	}
	zapLog.Info("AWS clients initialized")

	// --- Register Workers ---

	// --- 1. Marketplace Workers (3) ---
	if cfg.Workers[sl.TaskType].Enabled {
		handler := sl.NewHandler(
			&sl.Config{
				AdWeight:          cfg.Marketplace.Scoring.AdWeight,
				ProductWeight:     cfg.Marketplace.Scoring.ProductWeight,
				SellerWeight:      cfg.Marketplace.Scoring.SellerWeight,
				FeatureThreshold:  cfg.Marketplace.Scoring.FeatureThreshold,
				MinDescriptionLen: cfg.Marketplace.Scoring.MinDescriptionLen,
				Timeout:           time.Duration(cfg.Workers[sl.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, camundaClient, log,
		)
		startWorker(zeebeClient, sl.TaskType, cfg.Workers[sl.TaskType], handler.Handle, obs, zapLog)
	}

	if cfg.Workers[mr.TaskType].Enabled {
		handler := mr.NewHandler(
			&mr.Config{
				FanOut:  cfg.Marketplace.Radar.FanOut,
				Timeout: time.Duration(cfg.Workers[mr.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, mr.TaskType, cfg.Workers[mr.TaskType], handler.Handle, obs, zapLog)
	}

	if cfg.Workers[il.TaskType].Enabled {
		handler := il.NewHandler(
			&il.Config{
				Index:   cfg.Database.Elasticsearch.ListingIndex,
				Timeout: time.Duration(cfg.Workers[il.TaskType].Timeout) * time.Millisecond,
			},
			il.NewESStore(esClient.Client), log,
		)
		startWorker(zeebeClient, il.TaskType, cfg.Workers[il.TaskType], handler.Handle, obs, zapLog)
	}

	// --- 2. Jobs Workers (1) ---
	if cfg.Workers[mp.TaskType].Enabled {
		handler := mp.NewHandler(
			&mp.Config{
				CacheTTL: 10 * time.Minute,
				Timeout:  time.Duration(cfg.Workers[mp.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, redis.Client, log,
		)
		startWorker(zeebeClient, mp.TaskType, cfg.Workers[mp.TaskType], handler.Handle, obs, zapLog)
	}

	// --- 3. Radar Lifecycle Workers (2) ---
	if cfg.Workers[cs.TaskType].Enabled {
		handler := cs.NewHandler(
			&cs.Config{
				TTLDays: cfg.Marketplace.Radar.TTLDays,
				Timeout: time.Duration(cfg.Workers[cs.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, cs.TaskType, cfg.Workers[cs.TaskType], handler.Handle, obs, zapLog)
	}

	if cfg.Workers[xs.TaskType].Enabled {
		handler := xs.NewHandler(
			&xs.Config{
				Timeout: time.Duration(cfg.Workers[xs.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, xs.TaskType, cfg.Workers[xs.TaskType], handler.Handle, obs, zapLog)
	}

	// --- 4. Notification Workers (1) ---
	if cfg.Workers[sn.TaskType].Enabled {
		handler := sn.NewHandler(
			&sn.Config{
				EmailFrom:    cfg.Notifications.EmailFrom,
				PushTopicARN: cfg.Notifications.PushTopicARN,
				SMSEnabled:   cfg.Notifications.SMSEnabled,
				EmailEnabled: cfg.Notifications.EmailEnabled,
				DedupTTL:     7 * 24 * time.Hour,
				Timeout:      time.Duration(cfg.Workers[sn.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, snsClient, sesClient, redis, log,
		)
		startWorker(zeebeClient, sn.TaskType, cfg.Workers[sn.TaskType], handler.Handle, obs, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			status := "ready"
			code := http.StatusOK
			if err := pg.Ping(r.Context()); err != nil {
				status = "not ready"
				code = http.StatusServiceUnavailable
			}
			if err := camundaClient.HealthCheck(r.Context()); err != nil {
				status = "not ready"
				code = http.StatusServiceUnavailable
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			json.NewEncoder(w).Encode(map[string]string{
				"status": status,
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range taskWorkers {
		w.Stop()
	}

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), obs *observability.Observability, log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	timed := func(jobClient worker.JobClient, job entities.Job) {
		start := time.Now()
		handlerFunc(jobClient, job)
		obs.RecordJobDuration(context.Background(), taskType, time.Since(start))
		obs.RecordJobProcessed(context.Background(), taskType)
	}

	w := camunda.NewWorker(
		client,
		taskType,
		wcfg.MaxJobsActive,
		time.Duration(wcfg.Timeout)*time.Millisecond,
		timed,
		log,
	)
	taskWorkers = append(taskWorkers, w)
}
