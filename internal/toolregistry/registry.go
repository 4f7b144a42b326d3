package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/logging"
	"chemagent/internal/observability"
	"chemagent/internal/tools"
)

// Verification describes how an equipped tool list deviates from a catalog.
// Every slice is sorted; the three sets are disjoint.
type Verification struct {
	Missing   []string
	Extra     []string
	Duplicate []string
}

// OK reports whether the equipped tools match the catalog exactly.
func (v Verification) OK() bool {
	return len(v.Missing) == 0 && len(v.Extra) == 0 && len(v.Duplicate) == 0
}

// VerifyCatalog compares the equipped tools with the expected names.
func VerifyCatalog(list []tools.Tool, catalog []string) Verification {
	seen := make(map[string]bool, len(list))
	dup := make(map[string]bool)
	for _, tool := range list {
		name := tool.Name()
		if seen[name] {
			dup[name] = true
			continue
		}
		seen[name] = true
	}

	expected := make(map[string]bool, len(catalog))
	for _, name := range catalog {
		expected[name] = true
	}

	var v Verification
	for name := range expected {
		if !seen[name] {
			v.Missing = append(v.Missing, name)
		}
	}
	for name := range seen {
		if !expected[name] {
			v.Extra = append(v.Extra, name)
		}
	}
	for name := range dup {
		// Duplicates outside the catalog are still reported as extra.
		if expected[name] {
			v.Duplicate = append(v.Duplicate, name)
		}
	}
	sort.Strings(v.Missing)
	sort.Strings(v.Extra)
	sort.Strings(v.Duplicate)
	return v
}

// ConfirmFunc decides whether a run may proceed with a deviating tool list.
type ConfirmFunc func(v Verification, equipped []string) bool

// AlwaysConfirm accepts any deviation. Useful for tests and non-interactive runs
// that intentionally equip a subset of the catalog.
func AlwaysConfirm(Verification, []string) bool { return true }

type options struct {
	catalog []string
	confirm ConfirmFunc
	logger  logging.Logger
	cache   *CacheConfig
	metrics *observability.MetricsCollector
}

// Option configures a Registry.
type Option func(*options)

// WithCatalog overrides the reference catalog the equipped tools are checked against.
func WithCatalog(names []string) Option {
	return func(o *options) { o.catalog = append([]string(nil), names...) }
}

// WithConfirm injects the policy consulted when the tools deviate from the catalog.
func WithConfirm(fn ConfirmFunc) Option {
	return func(o *options) { o.confirm = fn }
}

// WithLogger sets the registry logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCache enables the result cache for tools that implement tools.Cacheable.
func WithCache(cfg CacheConfig) Option {
	return func(o *options) { o.cache = &cfg }
}

// WithMetrics records per-tool execution counters and durations.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(o *options) { o.metrics = metrics }
}

// Result is the outcome of a dispatch the model gets to see.
type Result struct {
	Success     bool
	Observation string
}

// Registry holds the equipped tools of one agent. It never changes after New
// returns, so it is safe to share across goroutines without locking.
type Registry struct {
	order    []string
	tools    map[string]tools.Tool
	invokers map[string]tools.Tool
	logger   logging.Logger
	metrics  *observability.MetricsCollector
}

// New builds a registry from the equipped tools. When the list deviates from
// the catalog the deviation is logged and handed to the confirm policy;
// without a policy, or when it declines, New fails with a CatalogMismatchError.
// For duplicated names the first tool wins.
func New(list []tools.Tool, opts ...Option) (*Registry, error) {
	o := options{catalog: tools.ReferenceCatalog()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	v := VerifyCatalog(list, o.catalog)
	if !v.OK() {
		if len(v.Missing) > 0 {
			logger.Warn("Missing tools: %s", strings.Join(v.Missing, ", "))
		}
		if len(v.Extra) > 0 {
			logger.Warn("Extra tools: %s", strings.Join(v.Extra, ", "))
		}
		if len(v.Duplicate) > 0 {
			logger.Warn("Duplicate tools: %s", strings.Join(v.Duplicate, ", "))
		}
		if o.confirm == nil || !o.confirm(v, tools.Names(list)) {
			return nil, &chemerrors.CatalogMismatchError{
				Missing:   v.Missing,
				Extra:     v.Extra,
				Duplicate: v.Duplicate,
			}
		}
		logger.Info("Tool catalog deviation confirmed")
	}

	r := &Registry{
		tools:    make(map[string]tools.Tool, len(list)),
		invokers: make(map[string]tools.Tool, len(list)),
		logger:   logger,
		metrics:  o.metrics,
	}

	var cache *resultCache
	if o.cache != nil {
		cache = newResultCache(*o.cache)
	}

	for _, tool := range list {
		name := tool.Name()
		if _, exists := r.tools[name]; exists {
			continue
		}
		r.order = append(r.order, name)
		r.tools[name] = tool
		if cache != nil && cache.accepts(tool) {
			r.invokers[name] = cache.wrap(tool)
		} else {
			r.invokers[name] = tool
		}
	}
	return r, nil
}

// Names returns the equipped tool names in equip order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether name is equipped.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (tools.Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// Describe renders the "name: description" catalog block of the system prompt.
func (r *Registry) Describe() string {
	parts := make([]string, 0, len(r.order))
	for _, name := range r.order {
		parts = append(parts, fmt.Sprintf("%s: %s", name, r.tools[name].Description()))
	}
	return strings.Join(parts, "\n\n")
}

// NamesBlock renders the tool names as "{A, B}".
func (r *Registry) NamesBlock() string {
	return "{" + strings.Join(r.order, ", ") + "}"
}

// Dispatch runs one tool call. Unknown names and recoverable tool failures
// come back as unsuccessful results; a non-nil error means the run must stop.
func (r *Registry) Dispatch(ctx context.Context, name, input, sessionID string) (Result, error) {
	invoker, ok := r.invokers[name]
	if !ok {
		r.logger.Debug("Unknown tool requested: %q", name)
		return Result{Observation: r.invalidToolMessage(name)}, nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanToolExecute, observability.ToolAttrs(name)...)
	start := time.Now()

	output, err := invoker.Invoke(ctx, input, sessionID)
	if err == nil {
		if checker, ok := r.tools[name].(tools.OutputChecker); ok {
			err = checker.CheckOutput(input, output)
		}
	}
	elapsed := time.Since(start)

	if err == nil {
		r.metrics.RecordToolExecution(ctx, name, "success", elapsed)
		observability.EndSpan(span, nil)
		return Result{Success: true, Observation: output}, nil
	}

	if chemerrors.IsRecoverableToolError(err) {
		r.logger.Debug("Tool that raised error: %s (%v)", name, err)
		r.metrics.RecordToolExecution(ctx, name, "error", elapsed)
		observability.EndSpan(span, nil)
		return Result{Observation: "Error: " + chemerrors.ObservationMessage(err)}, nil
	}

	r.logger.Error("Tool %s failed fatally: %v", name, err)
	r.metrics.RecordToolExecution(ctx, name, "fatal", elapsed)
	observability.EndSpan(span, err)
	return Result{}, fmt.Errorf("tool %s: %w", name, err)
}

func (r *Registry) invalidToolMessage(name string) string {
	return fmt.Sprintf("\"%s\" is not a valid tool. Please select tool to use from { %s }).", name, strings.Join(r.order, ", "))
}
