package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"chemagent/internal/agent"
	"chemagent/internal/config"
	"chemagent/internal/kernel"
	"chemagent/internal/llm"
	"chemagent/internal/logging"
	"chemagent/internal/observability"
	"chemagent/internal/toolregistry"
	"chemagent/internal/tools"
	"chemagent/internal/tools/builtin"
)

// clientFactory builds a model client by name.
type clientFactory func(model string) (llm.Client, error)

func providerClients(cfg config.Config) clientFactory {
	factory := llm.FactoryConfig{
		OpenAI: llm.Config{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.LLM.OpenAIBaseURL,
			Timeout:   cfg.LLM.Timeout,
			MaxTokens: cfg.LLM.MaxTokens,
		},
		Anthropic: llm.Config{
			APIKey:    cfg.AnthropicAPIKey,
			BaseURL:   cfg.LLM.AnthropicBaseURL,
			Timeout:   cfg.LLM.Timeout,
			MaxTokens: cfg.LLM.MaxTokens,
		},
	}
	return func(model string) (llm.Client, error) {
		return llm.NewClient(model, factory)
	}
}

func modelsFor(cfg config.Config, logger logging.Logger) agent.Models {
	return agent.ResolveModels(cfg.Model, agent.Models{
		ToolAgent:  cfg.ToolAgentModel,
		Tools:      cfg.ToolsModel,
		Rephrasing: cfg.RephrasingModel,
	}, logger)
}

// runtime is the assembled agent and everything it owns.
type runtime struct {
	agent    *agent.ChemAgent
	registry *toolregistry.Registry
	models   agent.Models
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	closers  []func(context.Context) error
}

type runtimeOptions struct {
	clients  clientFactory
	executor kernel.Executor
	confirm  toolregistry.ConfirmFunc
	http     *http.Client
}

func (c *cli) runtimeOptions(assumeYes bool) runtimeOptions {
	return runtimeOptions{
		clients:  c.clients,
		executor: c.executor,
		confirm:  confirmToolSet(assumeYes, c.stderr),
	}
}

// buildRuntime wires clients, the kernel executor, tools and agents from cfg.
func (c *cli) buildRuntime(ctx context.Context, opts runtimeOptions) (rt *runtime, err error) {
	cfg := c.cfg
	rt = &runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	if opts.clients == nil {
		opts.clients = providerClients(cfg)
	}
	if opts.confirm == nil {
		opts.confirm = toolregistry.AlwaysConfirm
	}

	if rt.metrics, err = observability.NewMetricsCollector(cfg.Observability.Metrics); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	rt.closers = append(rt.closers, rt.metrics.Shutdown)
	if cfg.Observability.Metrics.Enabled && cfg.Observability.Metrics.PrometheusPort > 0 {
		if err := rt.metrics.StartPrometheusServer(cfg.Observability.Metrics.PrometheusPort); err != nil {
			return nil, fmt.Errorf("metrics server: %w", err)
		}
	}
	if rt.tracer, err = observability.NewTracerProvider(cfg.Observability.Tracing); err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	rt.closers = append(rt.closers, rt.tracer.Shutdown)

	rt.models = modelsFor(cfg, c.logger("chemagent"))

	toolClient, err := opts.clients(rt.models.ToolAgent)
	if err != nil {
		return nil, fmt.Errorf("tool agent model: %w", err)
	}
	expertClient, err := opts.clients(rt.models.Tools)
	if err != nil {
		return nil, fmt.Errorf("tools model: %w", err)
	}
	rephraseClient, err := opts.clients(rt.models.Rephrasing)
	if err != nil {
		return nil, fmt.Errorf("rephrasing model: %w", err)
	}

	executor := opts.executor
	if executor == nil {
		if executor, err = c.newExecutor(ctx, rt); err != nil {
			return nil, err
		}
	}

	list, err := builtin.MakeTools(builtin.Config{
		Executor:       executor,
		PythonTimeout:  cfg.Kernel.ExecuteTimeout,
		ExpertLLM:      expertClient,
		TavilyAPIKey:   cfg.TavilyAPIKey,
		RXN4ChemAPIKey: cfg.RXN4ChemAPIKey,
		PubChemURL:     cfg.Tools.PubChemURL,
		WikipediaURL:   cfg.Tools.WikipediaURL,
		TavilyURL:      cfg.Tools.TavilyURL,
		HTTPClient:     opts.http,
		Include:        cfg.Tools.Include,
		Exclude:        cfg.Tools.Exclude,
		Logger:         c.logger("tools"),
	})
	if err != nil {
		return nil, err
	}

	registryOpts := []toolregistry.Option{
		toolregistry.WithCatalog(tools.ReferenceCatalog()),
		toolregistry.WithConfirm(opts.confirm),
		toolregistry.WithLogger(c.logger("registry")),
		toolregistry.WithMetrics(rt.metrics),
	}
	if cfg.Tools.CacheSize > 0 {
		cache := toolregistry.DefaultCacheConfig()
		cache.MaxSize = cfg.Tools.CacheSize
		cache.TTL = cfg.Tools.CacheTTL
		registryOpts = append(registryOpts, toolregistry.WithCache(cache))
	}
	if rt.registry, err = toolregistry.New(list, registryOpts...); err != nil {
		return nil, err
	}

	toolAgent, err := agent.NewToolAgent(toolClient, rt.registry,
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithMaxErrorIterations(cfg.Agent.MaxErrorIterations),
		agent.WithLogger(c.logger("tool-agent")),
		agent.WithMetrics(rt.metrics),
	)
	if err != nil {
		return nil, err
	}
	rephraser := agent.NewRephrasingAgent(rephraseClient, c.logger("rephrasing-agent"))
	if rt.agent, err = agent.NewChemAgent(toolAgent, rephraser, c.logger("chemagent")); err != nil {
		return nil, err
	}
	return rt, nil
}

// newExecutor returns the Python kernel backend for the configured mode.
func (c *cli) newExecutor(_ context.Context, rt *runtime) (kernel.Executor, error) {
	cfg := c.cfg
	switch cfg.Kernel.Mode {
	case config.KernelModeRemote:
		return kernel.NewRemoteClient(cfg.Kernel.ServerURL, nil, c.logger("kernel")), nil
	default:
		manager, err := kernel.NewManager(kernelConfig(cfg),
			kernel.WithLogger(c.logger("kernel")),
			kernel.WithMetrics(rt.metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("kernel manager: %w", err)
		}
		rt.closers = append(rt.closers, manager.CloseAll)
		return manager, nil
	}
}

func kernelConfig(cfg config.Config) kernel.Config {
	return kernel.Config{
		GatewayURL:            cfg.Kernel.GatewayURL,
		Language:              cfg.Kernel.Language,
		ExecuteTimeout:        cfg.Kernel.ExecuteTimeout,
		HeartbeatInterval:     cfg.Kernel.HeartbeatInterval,
		ConnectAttempts:       cfg.Kernel.ConnectAttempts,
		ConnectDelay:          cfg.Kernel.ConnectDelay,
		EmptyOutputRetries:    cfg.Kernel.EmptyOutputRetries,
		EmptyOutputRetryDelay: cfg.Kernel.EmptyOutputRetryDelay,
		InitCode:              cfg.Kernel.InitCode,
	}
}

// Close releases kernels, then flushes telemetry, in reverse wiring order.
func (rt *runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
