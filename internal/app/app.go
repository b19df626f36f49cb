// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mortgage-underwriting/internal/api"
	"mortgage-underwriting/internal/common/config"
	"mortgage-underwriting/internal/common/database"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/common/metrics"
	"mortgage-underwriting/internal/common/observability"
	"mortgage-underwriting/internal/underwriting/checkpoint"
	"mortgage-underwriting/internal/underwriting/llm"
	"mortgage-underwriting/internal/underwriting/notify"
	"mortgage-underwriting/internal/underwriting/policies"
	"mortgage-underwriting/internal/underwriting/service"
	"mortgage-underwriting/internal/underwriting/stages"
	"mortgage-underwriting/internal/underwriting/store"
	"mortgage-underwriting/internal/underwriting/workflow"
)

// Backend names accepted in configuration.
const (
	BackendMemory        = "memory"
	BackendRedis         = "redis"
	BackendFile          = "file"
	BackendPostgres      = "postgres"
	BackendKeyword       = "keyword"
	BackendElasticsearch = "elasticsearch"
)

// Backends holds the infrastructure clients the configuration asks for. A
// nil field means no configured backend needs it.
type Backends struct {
	Postgres      *database.PostgresClient
	Redis         *database.RedisClient
	Elasticsearch *database.ElasticsearchClient
}

// Connect opens and waits for every backend the configuration selects.
// Elasticsearch is allowed to stay unreachable because policy retrieval
// falls back to keyword search.
func Connect(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backends, error) {
	b := &Backends{}

	if cfg.Storage.Backend == BackendPostgres {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		if err := database.WaitFor(ctx, "postgres", pg, database.DefaultRetryPolicy, log); err != nil {
			pg.Close()
			return nil, err
		}
		b.Postgres = pg
	}

	if cfg.Checkpoint.Backend == BackendRedis {
		rc := database.NewRedis(cfg.Database.Redis)
		if err := database.WaitFor(ctx, "redis", rc, database.DefaultRetryPolicy, log); err != nil {
			rc.Close()
			b.Close(log)
			return nil, err
		}
		b.Redis = rc
	}

	if cfg.Policies.Backend == BackendElasticsearch {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			b.Close(log)
			return nil, err
		}
		if err := database.WaitFor(ctx, "elasticsearch", es, database.DefaultRetryPolicy, log); err != nil {
			log.Warn("elasticsearch unavailable, continuing with keyword fallback", map[string]interface{}{"error": err.Error()})
		}
		b.Elasticsearch = es
	}

	return b, nil
}

func (b *Backends) Close(log logger.Logger) {
	if b.Postgres != nil {
		if err := b.Postgres.Close(); err != nil {
			log.Warn("error closing postgres", map[string]interface{}{"error": err.Error()})
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			log.Warn("error closing redis", map[string]interface{}{"error": err.Error()})
		}
	}
}

// ReadyChecks exposes one readiness probe per connected backend.
func (b *Backends) ReadyChecks() []api.Option {
	var opts []api.Option
	if b.Postgres != nil {
		opts = append(opts, api.WithReadyCheck(BackendPostgres, b.Postgres.Ping))
	}
	if b.Redis != nil {
		opts = append(opts, api.WithReadyCheck(BackendRedis, b.Redis.Ping))
	}
	if b.Elasticsearch != nil {
		opts = append(opts, api.WithReadyCheck(BackendElasticsearch, b.Elasticsearch.Ping))
	}
	return opts
}

func NewCheckpointStore(cfg *config.Config, b *Backends) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case BackendMemory:
		return checkpoint.NewMemoryStore(), nil
	case BackendRedis:
		if b.Redis == nil {
			return nil, errors.New("redis checkpoint backend selected but redis is not connected")
		}
		ttl := time.Duration(cfg.Checkpoint.TTL) * time.Second
		return checkpoint.NewRedisStore(b.Redis.GetClient(), cfg.Checkpoint.KeyPrefix, ttl), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

func NewCaseStore(ctx context.Context, cfg *config.Config, b *Backends, log logger.Logger) (store.Store, error) {
	switch cfg.Storage.Backend {
	case BackendFile:
		return store.NewFileStore(cfg.Storage.Dir)
	case BackendPostgres:
		if b.Postgres == nil {
			return nil, errors.New("postgres storage backend selected but postgres is not connected")
		}
		pg := store.NewPostgresStore(b.Postgres.GetDB(), log)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// NewPolicyRetriever loads the policy pages for keyword search. A missing or
// empty directory leaves the stages without excerpts instead of failing.
func NewPolicyRetriever(cfg *config.Config, b *Backends, log logger.Logger) (policies.Retriever, error) {
	var keyword policies.Retriever
	pages, err := policies.LoadDir(cfg.Policies.Dir)
	switch {
	case err == nil:
		keyword = policies.NewKeywordRetriever(policies.Texts(pages), cfg.Policies.K)
		log.Info("policy pages loaded", map[string]interface{}{"dir": cfg.Policies.Dir, "pages": len(pages)})
	case errors.Is(err, policies.ErrNoPolicyPages) || errors.Is(err, os.ErrNotExist):
		log.Warn("no policy pages found, stages run without excerpts", map[string]interface{}{"dir": cfg.Policies.Dir})
		keyword = policies.Static("")
	default:
		return nil, fmt.Errorf("load policies from %s: %w", cfg.Policies.Dir, err)
	}

	switch cfg.Policies.Backend {
	case BackendKeyword:
		return keyword, nil
	case BackendElasticsearch:
		if b.Elasticsearch == nil {
			return nil, errors.New("elasticsearch policy backend selected but no client was created")
		}
		return policies.NewElasticsearchRetriever(b.Elasticsearch.Client, cfg.Policies.Index, cfg.Policies.K, keyword, log), nil
	default:
		return nil, fmt.Errorf("unknown policy backend %q", cfg.Policies.Backend)
	}
}

// App is the fully wired underwriting engine and its collaborators.
type App struct {
	Config        *config.Config
	Backends      *Backends
	Observability *observability.Observability
	Metrics       *metrics.Recorder
	Retriever     policies.Retriever
	Engine        *workflow.Engine
	Service       *service.Service
	logger        logger.Logger
}

// Options tune Build for callers other than the long-running service.
type Options struct {
	// Registerer receives the underwriting collectors. Defaults to the
	// Prometheus default registry.
	Registerer prometheus.Registerer
	// Generator replaces the configured provider.
	Generator llm.Generator
}

// Build connects the configured backends and assembles the engine and
// service on top of them.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*App, error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}

	obs := observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		TracingEnabled: cfg.Observability.TracingEnabled,
		Logger:         log,
	})

	b, err := Connect(ctx, cfg, log)
	if err != nil {
		obs.Shutdown()
		return nil, err
	}
	a := &App{Config: cfg, Backends: b, Observability: obs, logger: log}

	if err := a.assemble(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) assemble(ctx context.Context, opts Options) error {
	cfg, log := a.Config, a.logger
	recorder := metrics.NewRecorder(opts.Registerer, cfg.Checkpoint.Backend)
	a.Metrics = recorder

	checkpoints, err := NewCheckpointStore(cfg, a.Backends)
	if err != nil {
		return err
	}
	results, err := NewCaseStore(ctx, cfg, a.Backends, log)
	if err != nil {
		return err
	}
	a.Retriever, err = NewPolicyRetriever(cfg, a.Backends, log)
	if err != nil {
		return err
	}

	generator := opts.Generator
	if generator == nil {
		generator, err = llm.NewFromConfig(ctx, cfg.LLM, log)
		if err != nil {
			return fmt.Errorf("build llm generator: %w", err)
		}
	}
	generator = llm.WithRecorder(generator, cfg.LLM.Provider, recorder)

	handlers, err := stages.Handlers(stages.Deps{Generator: generator, Policies: a.Retriever})
	if err != nil {
		return err
	}
	a.Engine, err = workflow.New(handlers,
		workflow.WithStore(checkpoints),
		workflow.WithObserver(recorder),
		workflow.WithTracer(a.Observability.Tracer("mortgage-underwriting/workflow")),
		workflow.WithLogger(log),
	)
	if err != nil {
		return err
	}

	notifier, err := notify.NewFromConfig(ctx, cfg.Notifications, log)
	if err != nil {
		return err
	}

	a.Service = service.New(a.Engine, results,
		service.WithNotifier(notifier),
		service.WithCaseRecorder(a.Observability),
		service.WithLogger(log),
		service.WithTimeout(config.GetDuration(cfg.Server.RequestTimeout)),
	)
	return nil
}

func (a *App) Close() {
	a.Backends.Close(a.logger)
	a.Observability.Shutdown()
}
