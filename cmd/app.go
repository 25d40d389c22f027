package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/cache"
	"github.com/sells-group/datafixer/internal/config"
	"github.com/sells-group/datafixer/internal/cost"
	"github.com/sells-group/datafixer/internal/enrich"
	"github.com/sells-group/datafixer/internal/metrics"
	"github.com/sells-group/datafixer/internal/reconcile"
	"github.com/sells-group/datafixer/internal/resilience"
	"github.com/sells-group/datafixer/internal/store"
	"github.com/sells-group/datafixer/pkg/anthropic"
	"github.com/sells-group/datafixer/pkg/gemini"
	"github.com/sells-group/datafixer/pkg/gleif"
	"github.com/sells-group/datafixer/pkg/homepage"
	"github.com/sells-group/datafixer/pkg/jina"
	"github.com/sells-group/datafixer/pkg/opencorporates"
	"github.com/sells-group/datafixer/pkg/vies"
)

// appEnv holds the store, engine and runner shared by the run, enrich,
// serve and worker commands.
type appEnv struct {
	Store    store.Store
	Engine   *reconcile.Engine
	Runner   *reconcile.Runner
	Siblings *enrich.SiblingIndexes
	Metrics  *metrics.Metrics

	redis *redis.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured job store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "datafixer.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initApp validates cfg for mode and builds the reconciliation engine.
// Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Metrics: metrics.Default()}

	cacheStore, err := initCache(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Siblings = enrich.NewSiblingIndexes(reconcile.SiblingLoader(st))
	backend := reconcile.NewStoreBackend(st)

	breakers := resilience.NewBreakers(resilience.BreakerFrom(cfg.Enrich.Breaker.Threshold, cfg.Enrich.Breaker.CooldownSecs))
	guard := enrich.NewGuard(time.Duration(cfg.Enrich.SourceTimeoutSecs)*time.Second, breakers, env.Metrics)

	env.Engine = reconcile.NewEngine(reconcile.Deps{
		Resolver: backend,
		Progress: backend,
		Cache:    cacheStore,
		Adapters: buildAdapters(cfg, env.Siblings, env.Metrics),
		Guard:    guard,
		Metrics:  env.Metrics,
	}, reconcile.Options{
		Threshold:     cfg.Enrich.Threshold,
		CacheVersion:  cfg.Cache.Version,
		CacheTTL:      time.Duration(cfg.Cache.TTLHours) * time.Hour,
		MaxCandidates: cfg.Enrich.MaxNameCandidates,
	})
	env.Runner = reconcile.NewRunner(st, env.Engine, cfg.Batch.Size, cfg.Batch.MaxConcurrent).
		WithForgetter(env.Siblings)

	return env, nil
}

// initCache picks the entity cache backend. A nil Store disables caching.
func initCache(ctx context.Context, env *appEnv) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "none":
		zap.L().Info("entity cache disabled")
		return nil, nil
	case "redis":
		client, err := cache.DialRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		env.redis = client
		zap.L().Info("entity cache using redis")
		return cache.NewRedis(client), nil
	default:
		return env.Store, nil
	}
}

// buildAdapters wires the enrichment sources from config. Disabled sources
// are left nil and skipped by the engine.
func buildAdapters(c *config.Config, siblings *enrich.SiblingIndexes, m *metrics.Metrics) reconcile.Adapters {
	policy := resilience.PolicyFrom(c.Enrich.Retry.Attempts, c.Enrich.Retry.BaseDelayMs, c.Enrich.Retry.MaxDelayMs)
	costs := cost.NewCalculator(c.Pricing)

	adapters := reconcile.Adapters{
		VAT: enrich.NewVATAdapter(vies.NewClient(
			vies.WithBaseURL(c.VIES.BaseURL),
			vies.WithRate(c.VIES.RateLimit),
			vies.WithPolicy(policy),
		)),
		Sibling: enrich.NewSiblingAdapter(siblings),
	}

	if c.Enrich.RegistryEnabled {
		national := opencorporates.NewClient(c.OpenCorporates.Token,
			opencorporates.WithBaseURL(c.OpenCorporates.BaseURL),
			opencorporates.WithRate(c.OpenCorporates.RateLimit),
			opencorporates.WithPolicy(policy),
		)
		global := gleif.NewClient(
			gleif.WithBaseURL(c.GLEIF.BaseURL),
			gleif.WithRate(c.GLEIF.RateLimit),
			gleif.WithPolicy(policy),
		)
		adapters.Registry = enrich.NewRegistryAdapter(national, global, c.Enrich.MaxNameCandidates)
	}

	var reader jina.Client
	if c.Enrich.SearchEnabled || c.Enrich.HomepageEnabled {
		opts := []jina.Option{
			jina.WithBaseURL(c.Jina.BaseURL),
			jina.WithRate(c.Jina.RateLimit),
			jina.WithPolicy(policy),
		}
		if c.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
		}
		reader = jina.NewClient(c.Jina.Key, opts...)
	}
	var search jina.Client
	if c.Enrich.SearchEnabled && c.Jina.Key != "" {
		search = reader
	} else if c.Enrich.SearchEnabled {
		zap.L().Warn("jina key not set, web search disabled")
	}
	var pages homepage.Fetcher
	if c.Enrich.HomepageEnabled {
		pages = homepage.NewFetcher(homepage.WithReader(reader), homepage.WithPolicy(policy))
	}
	if search != nil || pages != nil {
		adapters.Search = enrich.NewSearchAdapter(search, pages, c.Enrich.MaxSnippetChars)
	}

	if model := buildModel(c, costs, m); model != nil {
		adapters.LLM = enrich.NewLLMAdapter(model, c.Enrich.MaxSnippetChars)
	}
	return adapters
}

// buildModel returns the configured language model, or nil when the LLM
// stage is off.
func buildModel(c *config.Config, costs *cost.Calculator, m *metrics.Metrics) enrich.Model {
	mc := enrich.ModelConfig{
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
	}
	switch c.LLM.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			return nil
		}
		mc.Model = c.Anthropic.Model
		mc.CacheTTL = c.Anthropic.CacheTTL
		client := anthropic.NewClient(c.Anthropic.Key, anthropic.WithMaxRetries(max(c.Enrich.Retry.Attempts-1, 0)))
		return enrich.NewAnthropicModel(client, mc, costs, m)
	case "gemini":
		if c.Gemini.Key == "" {
			return nil
		}
		mc.Model = c.Gemini.Model
		return enrich.NewGeminiModel(gemini.NewClient(c.Gemini.Key), mc, costs, m)
	default:
		return nil
	}
}
