package kernel

import (
	"strings"
	"time"
)

const (
	// NoOutputSentinel is returned when code ran to completion without output.
	NoOutputSentinel = "[Code executed successfully with no output]"

	defaultLanguage              = "python"
	defaultExecuteTimeout        = 60 * time.Second
	defaultHeartbeatInterval     = 10 * time.Second
	defaultConnectAttempts       = 5
	defaultConnectDelay          = time.Second
	defaultEmptyOutputRetries    = 3
	defaultEmptyOutputRetryDelay = 3 * time.Second
	defaultInitCode              = "%colors nocolor"
)

// Config configures the session manager and the sessions it creates.
type Config struct {
	// GatewayURL is the kernel gateway base, e.g. http://localhost:8888.
	GatewayURL string
	// Language is the kernel spec name passed when creating kernels.
	Language string

	ExecuteTimeout        time.Duration
	HeartbeatInterval     time.Duration
	ConnectAttempts       int
	ConnectDelay          time.Duration
	EmptyOutputRetries    int
	EmptyOutputRetryDelay time.Duration

	// InitCode runs once on every freshly created kernel. Nil selects the
	// default; an empty slice disables initialisation.
	InitCode []string
}

// DefaultConfig returns the gateway defaults for a local kernel gateway.
func DefaultConfig() Config {
	return Config{
		GatewayURL:            "http://localhost:8888",
		Language:              defaultLanguage,
		ExecuteTimeout:        defaultExecuteTimeout,
		HeartbeatInterval:     defaultHeartbeatInterval,
		ConnectAttempts:       defaultConnectAttempts,
		ConnectDelay:          defaultConnectDelay,
		EmptyOutputRetries:    defaultEmptyOutputRetries,
		EmptyOutputRetryDelay: defaultEmptyOutputRetryDelay,
		InitCode:              []string{defaultInitCode},
	}
}

func (c Config) withDefaults() Config {
	out := c
	out.GatewayURL = strings.TrimRight(strings.TrimSpace(out.GatewayURL), "/")
	if out.GatewayURL == "" {
		out.GatewayURL = DefaultConfig().GatewayURL
	}
	if !strings.Contains(out.GatewayURL, "://") {
		out.GatewayURL = "http://" + out.GatewayURL
	}
	if strings.TrimSpace(out.Language) == "" {
		out.Language = defaultLanguage
	}
	if out.ExecuteTimeout <= 0 {
		out.ExecuteTimeout = defaultExecuteTimeout
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = defaultHeartbeatInterval
	}
	if out.ConnectAttempts <= 0 {
		out.ConnectAttempts = defaultConnectAttempts
	}
	if out.ConnectDelay < 0 {
		out.ConnectDelay = 0
	}
	if out.EmptyOutputRetries < 0 {
		out.EmptyOutputRetries = 0
	}
	if out.EmptyOutputRetryDelay < 0 {
		out.EmptyOutputRetryDelay = 0
	}
	if out.InitCode == nil {
		out.InitCode = []string{defaultInitCode}
	}
	return out
}
