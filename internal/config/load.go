package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chemagent/internal/observability"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigName is the base name of the YAML file searched in the config paths.
const ConfigName = "chemagent"

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	configPath  string
	searchPaths []string
	homeDir     func() (string, error)
	flags       *pflag.FlagSet
	flagKeys    map[string]string
}

// WithConfigPath forces the loader to read a specific file. A missing file
// is then an error.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithSearchPaths replaces the directories searched for chemagent.yaml.
func WithSearchPaths(paths ...string) Option {
	return func(o *loadOptions) { o.searchPaths = paths }
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = resolver }
}

// WithFlags binds command-line flags to configuration keys. bindings maps a
// key such as "kernel.mode" to a flag name such as "kernel-mode". Only flags
// the user actually set override the other sources.
func WithFlags(fs *pflag.FlagSet, bindings map[string]string) Option {
	return func(o *loadOptions) {
		o.flags = fs
		o.flagKeys = bindings
	}
}

func defaults() map[string]any {
	obs := observability.DefaultConfig()
	return map[string]any{
		"model":            DefaultModel,
		"tool_agent_model": "",
		"tools_model":      "",
		"rephrasing_model": "",

		"openai_api_key":    "",
		"anthropic_api_key": "",
		"tavily_api_key":    "",
		"chemspace_api_key": "",
		"rxn4chem_api_key":  "",

		"llm.openai_base_url":    DefaultOpenAIBaseURL,
		"llm.anthropic_base_url": DefaultAnthropicBaseURL,
		"llm.timeout":            DefaultLLMTimeout,
		"llm.max_tokens":         0,

		"agent.max_iterations":       DefaultMaxIterations,
		"agent.max_error_iterations": DefaultMaxErrorIterations,

		"tools.include":       []string{},
		"tools.exclude":       []string{},
		"tools.cache_size":    DefaultToolCacheSize,
		"tools.cache_ttl":     DefaultToolCacheTTL,
		"tools.pubchem_url":   "",
		"tools.wikipedia_url": "",
		"tools.tavily_url":    "",

		"kernel.mode":                     DefaultKernelMode,
		"kernel.gateway_url":              DefaultGatewayURL,
		"kernel.server_url":               DefaultKernelServerURL,
		"kernel.language":                 "python",
		"kernel.execute_timeout":          60 * time.Second,
		"kernel.heartbeat_interval":       10 * time.Second,
		"kernel.connect_attempts":         5,
		"kernel.connect_delay":            time.Second,
		"kernel.empty_output_retries":     3,
		"kernel.empty_output_retry_delay": 3 * time.Second,
		"kernel.init_code":                []string{"%colors nocolor"},

		"server.addr":            DefaultServerAddr,
		"server.allowed_origins": []string{"*"},

		"log.level":  DefaultLogLevel,
		"log.file":   DefaultLogFile,
		"log.stdout": false,

		"observability.logging.level":           obs.Logging.Level,
		"observability.logging.format":          obs.Logging.Format,
		"observability.metrics.enabled":         obs.Metrics.Enabled,
		"observability.metrics.prometheus_port": obs.Metrics.PrometheusPort,
		"observability.tracing.enabled":         obs.Tracing.Enabled,
		"observability.tracing.exporter":        obs.Tracing.Exporter,
		"observability.tracing.otlp_endpoint":   obs.Tracing.OTLPEndpoint,
		"observability.tracing.zipkin_endpoint": obs.Tracing.ZipkinEndpoint,
		"observability.tracing.jaeger_endpoint": obs.Tracing.JaegerEndpoint,
		"observability.tracing.sample_rate":     obs.Tracing.SampleRate,
		"observability.tracing.service_name":    obs.Tracing.ServiceName,
		"observability.tracing.service_version": obs.Tracing.ServiceVersion,
	}
}

// Load merges defaults, the YAML file, the environment and set flags, in
// increasing order of precedence, and validates the result.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{homeDir: os.UserHomeDir}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key := range DefaultEnvAliases() {
		if err := v.BindEnv(append([]string{key}, envNames(key)...)...); err != nil {
			return Config{}, Metadata{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if options.flags != nil {
		for key, name := range options.flagKeys {
			flag := options.flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, Metadata{}, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	v.SetConfigType("yaml")
	if options.configPath != "" {
		v.SetConfigFile(options.configPath)
	} else {
		v.SetConfigName(ConfigName)
		for _, dir := range options.resolveSearchPaths() {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.configPath != "" || !errors.As(err, &notFound) {
			return Config{}, Metadata{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg, options.homeDir)

	meta := Metadata{
		sources:  make(map[string]ValueSource),
		file:     v.ConfigFileUsed(),
		loadedAt: time.Now(),
	}
	for _, key := range v.AllKeys() {
		meta.sources[key] = options.sourceOf(v, key)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, meta, err
	}
	return cfg, meta, nil
}

func (o loadOptions) resolveSearchPaths() []string {
	if o.searchPaths != nil {
		return o.searchPaths
	}
	paths := []string{"."}
	if home, err := o.homeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, "."+ConfigName))
	}
	return paths
}

func (o loadOptions) sourceOf(v *viper.Viper, key string) ValueSource {
	if name, ok := o.flagKeys[key]; ok && o.flags != nil {
		if flag := o.flags.Lookup(name); flag != nil && flag.Changed {
			return SourceFlag
		}
	}
	for _, env := range envNames(key) {
		if value, ok := os.LookupEnv(env); ok && value != "" {
			return SourceEnv
		}
	}
	if v.InConfig(key) {
		return SourceFile
	}
	return SourceDefault
}

func normalize(cfg *Config, homeDir func() (string, error)) {
	cfg.Kernel.Mode = strings.ToLower(strings.TrimSpace(cfg.Kernel.Mode))
	cfg.Kernel.GatewayURL = strings.TrimRight(strings.TrimSpace(cfg.Kernel.GatewayURL), "/")
	cfg.Kernel.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.Kernel.ServerURL), "/")
	cfg.Tools.Include = compact(cfg.Tools.Include)
	cfg.Tools.Exclude = compact(cfg.Tools.Exclude)
	cfg.Log.File = expandHome(cfg.Log.File, homeDir)
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func expandHome(path string, homeDir func() (string, error)) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := homeDir()
	if err != nil || home == "" {
		return strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
