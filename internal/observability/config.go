package observability

// Config mirrors the observability section of chemagent.yaml.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig controls the structured event logger. Format text keeps the
// plain component log only; json also emits slog events on stderr.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig leaves metrics and tracing off.
func DefaultConfig() Config {
	var cfg Config
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Metrics.PrometheusPort = 9464
	cfg.Tracing = TracingConfig{
		Exporter:       "otlp",
		OTLPEndpoint:   "localhost:4318",
		SampleRate:     1,
		ServiceName:    "chemagent",
		ServiceVersion: "dev",
	}
	return cfg
}
