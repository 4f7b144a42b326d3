package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noHome() (string, error) { return "/home/chem", nil }

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load(WithSearchPaths(t.TempDir()), WithHomeDir(noHome))
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, 40, cfg.Agent.MaxIterations)
	assert.Equal(t, 3, cfg.Agent.MaxErrorIterations)
	assert.Equal(t, KernelModeLocal, cfg.Kernel.Mode)
	assert.Equal(t, 60*time.Second, cfg.Kernel.ExecuteTimeout)
	assert.Equal(t, 5, cfg.Kernel.ConnectAttempts)
	assert.Equal(t, []string{"%colors nocolor"}, cfg.Kernel.InitCode)
	assert.Equal(t, "/home/chem/chemagent-debug.log", cfg.Log.File)
	assert.Equal(t, 9464, cfg.Observability.Metrics.PrometheusPort)
	assert.Equal(t, "otlp", cfg.Observability.Tracing.Exporter)
	assert.Nil(t, cfg.Tools.Include)
	assert.Equal(t, SourceDefault, meta.Source("model"))
	assert.Empty(t, meta.ConfigFile())
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chemagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: claude-3-5-sonnet-20240620
agent:
  max_iterations: 12
kernel:
  mode: remote
  server_url: http://kernels:8000/
  execute_timeout: 90s
tools:
  exclude: [WebSearch]
observability:
  metrics:
    enabled: true
`), 0o600))

	t.Setenv("CHEMAGENT_AGENT_MAX_ITERATIONS", "20")
	t.Setenv("CHEMAGENT_KERNEL_EXECUTE_TIMEOUT", "45s")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("max-iterations", 0, "")
	fs.String("model", "", "")
	require.NoError(t, fs.Parse([]string{"--max-iterations=7"}))

	cfg, meta, err := Load(
		WithConfigPath(path),
		WithHomeDir(noHome),
		WithFlags(fs, map[string]string{"agent.max_iterations": "max-iterations", "model": "model"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "claude-3-5-sonnet-20240620", cfg.Model, "unset flag leaves the file value")
	assert.Equal(t, 7, cfg.Agent.MaxIterations)
	assert.Equal(t, 45*time.Second, cfg.Kernel.ExecuteTimeout)
	assert.Equal(t, "http://kernels:8000", cfg.Kernel.ServerURL)
	assert.Equal(t, KernelModeRemote, cfg.Kernel.Mode)
	assert.Equal(t, []string{"WebSearch"}, cfg.Tools.Exclude)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.True(t, cfg.Observability.Metrics.Enabled)

	assert.Equal(t, SourceFlag, meta.Source("agent.max_iterations"))
	assert.Equal(t, SourceEnv, meta.Source("kernel.execute_timeout"))
	assert.Equal(t, SourceEnv, meta.Source("openai_api_key"))
	assert.Equal(t, SourceFile, meta.Source("model"))
	assert.Equal(t, SourceDefault, meta.Source("kernel.language"))
	assert.Equal(t, path, meta.ConfigFile())
}

func TestLoadEnvLists(t *testing.T) {
	t.Setenv("CHEMAGENT_TOOLS_INCLUDE", "PythonREPL, AiExpert")
	cfg, _, err := Load(WithSearchPaths(t.TempDir()), WithHomeDir(noHome))
	require.NoError(t, err)
	assert.Equal(t, []string{"PythonREPL", "AiExpert"}, cfg.Tools.Include)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, _, err := Load(WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, _, err := Load(WithSearchPaths(t.TempDir()), WithHomeDir(noHome))
	require.NoError(t, err)

	both := cfg
	both.Tools.Include = []string{"PythonREPL"}
	both.Tools.Exclude = []string{"AiExpert"}
	assert.ErrorIs(t, both.Validate(), ErrIncludeAndExclude)

	bad := cfg
	bad.Agent.MaxIterations = 0
	bad.Kernel.Mode = "cloud"
	err = bad.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	assert.Contains(t, err.Error(), "agent.max_iterations must be positive")
	assert.Contains(t, err.Error(), `kernel.mode must be "local" or "remote", got "cloud"`)
}

func TestRedactedMasksKeys(t *testing.T) {
	cfg := Config{OpenAIAPIKey: "sk-1234567890abcd", TavilyAPIKey: "short"}
	red := cfg.Redacted()
	assert.Equal(t, "sk-1****abcd", red.OpenAIAPIKey)
	assert.Equal(t, "****", red.TavilyAPIKey)
	assert.Empty(t, red.AnthropicAPIKey)
	assert.Equal(t, "sk-1234567890abcd", cfg.OpenAIAPIKey, "original untouched")
}

func TestMetadataKeysSorted(t *testing.T) {
	_, meta, err := Load(WithSearchPaths(t.TempDir()), WithHomeDir(noHome))
	require.NoError(t, err)
	keys := meta.Keys()
	assert.Contains(t, keys, "kernel.gateway_url")
	assert.Contains(t, keys, "observability.tracing.exporter")
	assert.IsNonDecreasing(t, keys)
}
