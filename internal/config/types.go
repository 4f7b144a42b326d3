package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chemagent/internal/observability"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault ValueSource = "default"
	SourceFile    ValueSource = "file"
	SourceEnv     ValueSource = "environment"
	SourceFlag    ValueSource = "flag"
)

const (
	DefaultModel              = "gpt-4o-2024-08-06"
	DefaultOpenAIBaseURL      = "https://api.openai.com/v1"
	DefaultAnthropicBaseURL   = "https://api.anthropic.com/v1"
	DefaultLLMTimeout         = 120 * time.Second
	DefaultMaxIterations      = 40
	DefaultMaxErrorIterations = 3
	DefaultToolCacheSize      = 256
	DefaultToolCacheTTL       = 30 * time.Minute
	DefaultKernelMode         = KernelModeLocal
	DefaultGatewayURL         = "http://localhost:8888"
	DefaultKernelServerURL    = "http://localhost:8000"
	DefaultServerAddr         = ":8000"
	DefaultLogLevel           = "info"
	DefaultLogFile            = "~/chemagent-debug.log"
)

// Kernel modes: local talks to a kernel gateway directly, remote goes
// through a chemagent kernel server.
const (
	KernelModeLocal  = "local"
	KernelModeRemote = "remote"
)

// ErrIncludeAndExclude is returned by Validate when both tool lists are set.
var ErrIncludeAndExclude = errors.New("config: tools.include and tools.exclude are mutually exclusive")

// Config is the full chemagent configuration.
type Config struct {
	Model           string `yaml:"model"`
	ToolAgentModel  string `yaml:"tool_agent_model"`
	ToolsModel      string `yaml:"tools_model"`
	RephrasingModel string `yaml:"rephrasing_model"`

	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	TavilyAPIKey    string `yaml:"tavily_api_key"`
	ChemSpaceAPIKey string `yaml:"chemspace_api_key"`
	RXN4ChemAPIKey  string `yaml:"rxn4chem_api_key"`

	LLM           LLMConfig            `yaml:"llm"`
	Agent         AgentConfig          `yaml:"agent"`
	Tools         ToolsConfig          `yaml:"tools"`
	Kernel        KernelConfig         `yaml:"kernel"`
	Server        ServerConfig         `yaml:"server"`
	Log           LogConfig            `yaml:"log"`
	Observability observability.Config `yaml:"observability"`
}

type LLMConfig struct {
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxTokens        int           `yaml:"max_tokens"`
}

type AgentConfig struct {
	MaxIterations      int `yaml:"max_iterations"`
	MaxErrorIterations int `yaml:"max_error_iterations"`
}

type ToolsConfig struct {
	Include      []string      `yaml:"include"`
	Exclude      []string      `yaml:"exclude"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	PubChemURL   string        `yaml:"pubchem_url"`
	WikipediaURL string        `yaml:"wikipedia_url"`
	TavilyURL    string        `yaml:"tavily_url"`
}

type KernelConfig struct {
	Mode                  string        `yaml:"mode"`
	GatewayURL            string        `yaml:"gateway_url"`
	ServerURL             string        `yaml:"server_url"`
	Language              string        `yaml:"language"`
	ExecuteTimeout        time.Duration `yaml:"execute_timeout"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`
	ConnectAttempts       int           `yaml:"connect_attempts"`
	ConnectDelay          time.Duration `yaml:"connect_delay"`
	EmptyOutputRetries    int           `yaml:"empty_output_retries"`
	EmptyOutputRetryDelay time.Duration `yaml:"empty_output_retry_delay"`
	InitCode              []string      `yaml:"init_code"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Stdout bool   `yaml:"stdout"`
}

// Validate rejects combinations the agent cannot run with.
func (c Config) Validate() error {
	var problems []string
	if len(c.Tools.Include) > 0 && len(c.Tools.Exclude) > 0 {
		return ErrIncludeAndExclude
	}
	if c.Agent.MaxIterations <= 0 {
		problems = append(problems, fmt.Sprintf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.MaxErrorIterations <= 0 {
		problems = append(problems, fmt.Sprintf("agent.max_error_iterations must be positive, got %d", c.Agent.MaxErrorIterations))
	}
	if c.Kernel.ExecuteTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("kernel.execute_timeout must be positive, got %s", c.Kernel.ExecuteTimeout))
	}
	if c.Kernel.ConnectAttempts <= 0 {
		problems = append(problems, fmt.Sprintf("kernel.connect_attempts must be positive, got %d", c.Kernel.ConnectAttempts))
	}
	switch c.Kernel.Mode {
	case KernelModeLocal, KernelModeRemote:
	default:
		problems = append(problems, fmt.Sprintf("kernel.mode must be %q or %q, got %q", KernelModeLocal, KernelModeRemote, c.Kernel.Mode))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Metadata records where each loaded key came from.
type Metadata struct {
	sources  map[string]ValueSource
	file     string
	loadedAt time.Time
}

// Source returns the origin of key, e.g. "kernel.gateway_url".
func (m Metadata) Source(key string) ValueSource {
	if src, ok := m.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// ConfigFile returns the file that was read, or "" when none was found.
func (m Metadata) ConfigFile() string { return m.file }

// LoadedAt returns when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time { return m.loadedAt }

// Keys returns every configuration key in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m.sources))
	for key := range m.sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Redacted returns a copy with API keys masked, for display.
func (c Config) Redacted() Config {
	out := c
	for _, key := range []*string{
		&out.OpenAIAPIKey,
		&out.AnthropicAPIKey,
		&out.TavilyAPIKey,
		&out.ChemSpaceAPIKey,
		&out.RXN4ChemAPIKey,
	} {
		*key = redact(*key)
	}
	return out
}

func redact(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
