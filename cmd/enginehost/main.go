// Command enginehost wires the execution engine, its stores, trigger
// subsystem, and a thin HTTP surface into one runnable process. It is
// the reference host, not the only way to embed the engine.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/flowforge/enginecore/internal/clockid"
	"github.com/flowforge/enginecore/internal/credstore"
	"github.com/flowforge/enginecore/internal/engine"
	"github.com/flowforge/enginecore/internal/execlog"
	"github.com/flowforge/enginecore/internal/logsink"
	"github.com/flowforge/enginecore/internal/nodes"
	"github.com/flowforge/enginecore/internal/platform/cache"
	"github.com/flowforge/enginecore/internal/platform/config"
	"github.com/flowforge/enginecore/internal/platform/logger"
	"github.com/flowforge/enginecore/internal/platform/metrics"
	"github.com/flowforge/enginecore/internal/platform/telemetry"
	"github.com/flowforge/enginecore/internal/plugin"
	"github.com/flowforge/enginecore/internal/registry"
	"github.com/flowforge/enginecore/internal/store"
	"github.com/flowforge/enginecore/internal/stepdebug"
	"github.com/flowforge/enginecore/internal/trigger/cron"
	"github.com/flowforge/enginecore/internal/trigger/fileevent"
	"github.com/flowforge/enginecore/internal/trigger/manual"
)

const serviceName = "enginehost"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	log.Info("starting enginehost", "version", cfg.Version)

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    serviceName,
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Fatal("telemetry init failed", "error", err)
	}
	defer tel.Close()

	promMetrics := metrics.NewMetrics(serviceName)

	clock := clockid.SystemClock{}
	execLogger := execlog.New(clock)
	execLogger.AddSink(logsink.NewConsoleSink(log, execlog.LevelInfo))
	execLogger.AddSink(logsink.NewTracingSink(tel.Tracer()))

	httpTrace := logsink.NewHTTPTraceSink(1000)
	execLogger.AddSink(httpTrace)

	if cfg.Kafka.Enabled {
		kafkaSink, err := logsink.NewKafkaSink(logsink.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			log.Error("kafka sink init failed", "error", err)
		} else {
			execLogger.AddSink(kafkaSink)
			defer kafkaSink.Close()
		}
	}

	if cfg.Redis.SinkEnabled {
		redisClient := redisv9.NewClient(&redisv9.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		execLogger.AddSink(logsink.NewRedisSink(redisClient, cfg.Redis.SinkListKey, cfg.Redis.SinkCapacity))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("database open failed", "error", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	if err != nil {
		log.Fatal("gorm open failed", "error", err)
	}

	workflows := store.NewGormWorkflowStore(gormDB)
	var executions engine.ExecutionStore = store.NewPostgresExecutionStore(db)
	if cfg.Redis.ProgressCacheEnabled {
		progressCache, err := cache.NewRedisCache(cache.Config{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: "enginecore",
		})
		if err != nil {
			log.Fatal("execution progress cache init failed", "error", err)
		}
		executions = store.NewRedisExecutionStore(executions, progressCache, cfg.Redis.ProgressCacheTTL, log)
	}

	encryptor, err := credstore.NewEncryptor(credstore.EncryptionConfig{
		Key:        cfg.Credentials.Key,
		KeyType:    cfg.Credentials.KeyType,
		Salt:       cfg.Credentials.Salt,
		Iterations: cfg.Credentials.Iterations,
	})
	if err != nil {
		log.Fatal("credential encryptor init failed", "error", err)
	}
	credentials := credstore.NewAESCredentialStore(encryptor)

	reg := registry.New()
	loader := plugin.New(reg, func() []registry.Executor {
		return []registry.Executor{
			nodes.NewIfNode(),
			nodes.NewMergeNode(),
			nodes.NewEchoNode(),
			nodes.NewLoopSourceNode(),
		}
	})
	if err := loader.Load(); err != nil {
		log.Fatal("plugin load failed", "error", err)
	}

	stepDebug := stepdebug.New()
	stepDebug.SetEnabled(cfg.Engine.StepDebugEnabled)

	eng := engine.New(engine.Config{
		Workflows:   workflows,
		Executions:  executions,
		Registry:    reg,
		Logger:      execLogger,
		StepDebug:   stepDebug,
		Credentials: credentials,
		Clock:       clock,
		Metrics:     metrics.NewEngineRecorder(promMetrics),
	})

	fireAndForget := func(workflowID string, input map[string]interface{}) {
		go func() {
			if _, err := eng.Execute(workflowID, input); err != nil {
				log.Error("triggered execution failed", "workflow", workflowID, "error", err)
			}
		}()
	}

	cronTrigger := cron.New(clock, fireAndForget).WithMetrics(metrics.NewCronFireRecorder(promMetrics)).WithLogger(log)
	active, err := workflows.FindActiveScheduled()
	if err != nil {
		log.Error("loading active schedules failed", "error", err)
	} else {
		cronTrigger.LoadActive(active)
	}

	fileEventTrigger, err := fileevent.New(clock, fireAndForget)
	if err != nil {
		log.Error("file-event watcher init failed", "error", err)
	} else {
		fileEventTrigger.WithMetrics(metrics.NewFileEventFireRecorder(promMetrics)).WithLogger(log)
		fileEventWorkflows, err := workflows.FindByTriggerType(engine.TriggerFileEvent)
		if err != nil {
			log.Error("loading file-event workflows failed", "error", err)
		}
		for _, w := range fileEventWorkflows {
			if err := fileEventTrigger.Register(w); err != nil {
				log.Error("file-event registration failed", "workflow", w.ID, "error", err)
			}
		}
		fileEventTrigger.Start()
	}

	unsubscribe := workflows.Subscribe(func(change engine.WorkflowChanged) {
		if change.Workflow == nil {
			cronTrigger.Unregister(change.WorkflowID)
			if fileEventTrigger != nil {
				fileEventTrigger.Unregister(change.WorkflowID)
			}
			return
		}
		switch change.Workflow.TriggerType {
		case engine.TriggerSchedule:
			if change.Workflow.Active {
				cronTrigger.Register(change.Workflow)
			} else {
				cronTrigger.Unregister(change.WorkflowID)
			}
		case engine.TriggerFileEvent:
			if fileEventTrigger == nil {
				return
			}
			if change.Workflow.Active {
				fileEventTrigger.Register(change.Workflow)
			} else {
				fileEventTrigger.Unregister(change.WorkflowID)
			}
		}
	})
	defer unsubscribe()

	manualHandler := manual.NewHandler(eng, []byte(cfg.Auth.JWTSecret))

	router := mux.NewRouter()
	manualHandler.Register(router)
	router.Handle("/metrics", promMetrics.Handler())
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.HandleFunc("/logs/recent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(httpTrace.Snapshot()); err != nil {
			log.Error("logs/recent encode failed", "error", err)
		}
	})
	router.Use(logger.HTTPMiddleware(log))
	router.Use(promMetrics.HTTPMetricsMiddleware())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()
	log.Info("enginehost listening", "port", cfg.HTTP.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if fileEventTrigger != nil {
		fileEventTrigger.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("http shutdown error", "error", err)
	}
}
