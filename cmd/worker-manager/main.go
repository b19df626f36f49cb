// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mortgage-underwriting/internal/api"
	"mortgage-underwriting/internal/app"
	"mortgage-underwriting/internal/common/camunda"
	"mortgage-underwriting/internal/common/config"
	"mortgage-underwriting/internal/common/logger"

	crs "mortgage-underwriting/internal/workers/underwriting/calculate-risk-score"
	ema "mortgage-underwriting/internal/workers/underwriting/evaluate-mortgage-application"
	nu "mortgage-underwriting/internal/workers/underwriting/notify-underwriter"
	rup "mortgage-underwriting/internal/workers/underwriting/retrieve-underwriting-policies"
	vma "mortgage-underwriting/internal/workers/underwriting/validate-mortgage-application"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info("starting worker manager", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	if err := run(cfg, log); err != nil {
		log.Error("worker manager failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	log.Info("worker manager stopped gracefully", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	var zeebe *camunda.Client
	checks := a.Backends.ReadyChecks()
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.Timeout),
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		if err != nil {
			return err
		}
		defer zeebe.Close()
		checks = append(checks, api.WithReadyCheck("zeebe", zeebe.HealthCheck))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.New(a.Service, cfg, log, checks...).Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	pool := &camunda.Pool{}
	if zeebe != nil {
		startWorkers(cfg, zeebe, pool, a, log)
		log.Info("workers registered", map[string]interface{}{"count": pool.Len()})
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping workers", nil)
	case err := <-serverErr:
		log.Error("http server failed", map[string]interface{}{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pool.StopAll(shutdownCtx); err != nil {
		log.Warn("workers did not stop in time", map[string]interface{}{"error": err.Error()})
	}
	return server.Shutdown(shutdownCtx)
}

// workerConfig returns the job settings for taskType and the timeout its
// handler should use. Workers missing from the config file run enabled with
// the handler's own timeout.
func workerConfig(cfg *config.Config, taskType string, handlerTimeout time.Duration) (config.WorkerConfig, time.Duration) {
	wcfg, ok := cfg.Workers[taskType]
	if !ok {
		wcfg = config.GetWorkerConfig(cfg, taskType)
		wcfg.Timeout = int(handlerTimeout.Milliseconds())
		return wcfg, handlerTimeout
	}
	return wcfg, config.GetDuration(wcfg.Timeout)
}

func startWorkers(cfg *config.Config, zeebe *camunda.Client, pool *camunda.Pool, a *app.App, log logger.Logger) {
	client := zeebe.GetClient()
	in := camunda.Instrumentation{Observer: a.Observability, Metrics: a.Metrics}

	{
		c := ema.LoadConfig()
		wcfg, timeout := workerConfig(cfg, ema.TaskType, c.Timeout)
		c.Timeout = timeout
		pool.Add(camunda.StartWorker(client, ema.TaskType, wcfg, ema.NewHandler(c, a.Service, log), in, log))
	}
	{
		c := crs.LoadConfig()
		wcfg, timeout := workerConfig(cfg, crs.TaskType, c.Timeout)
		c.Timeout = timeout
		pool.Add(camunda.StartWorker(client, crs.TaskType, wcfg, crs.NewHandler(c, log), in, log))
	}
	{
		c := vma.LoadConfig()
		wcfg, timeout := workerConfig(cfg, vma.TaskType, c.Timeout)
		c.Timeout = timeout
		pool.Add(camunda.StartWorker(client, vma.TaskType, wcfg, vma.NewHandler(c, log), in, log))
	}
	{
		c := rup.LoadConfig()
		wcfg, timeout := workerConfig(cfg, rup.TaskType, c.Timeout)
		c.Timeout = timeout
		pool.Add(camunda.StartWorker(client, rup.TaskType, wcfg, rup.NewHandler(c, a.Retriever, log), in, log))
	}
	{
		c := nu.LoadConfig()
		wcfg, timeout := workerConfig(cfg, nu.TaskType, c.Timeout)
		c.Timeout = timeout
		pool.Add(camunda.StartWorker(client, nu.TaskType, wcfg, nu.NewHandler(c, a.Service, log), in, log))
	}
}
