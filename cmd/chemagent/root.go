package main

import (
	"fmt"
	"io"
	"os"

	"chemagent/internal/config"
	"chemagent/internal/kernel"
	"chemagent/internal/logging"
	"chemagent/internal/observability"
	"chemagent/internal/utils"

	"github.com/spf13/cobra"
)

// flagBindings maps config keys to the persistent flags that override them.
var flagBindings = map[string]string{
	"model":                      "model",
	"tool_agent_model":           "tool-agent-model",
	"tools_model":                "tools-model",
	"rephrasing_model":           "rephrasing-model",
	"agent.max_iterations":       "max-iterations",
	"agent.max_error_iterations": "max-error-iterations",
	"tools.include":              "include-tools",
	"tools.exclude":              "exclude-tools",
	"kernel.mode":                "kernel-mode",
	"kernel.gateway_url":         "gateway-url",
	"kernel.server_url":          "kernel-server-url",
	"log.level":                  "log-level",
	"log.stdout":                 "verbose",
	"server.addr":                "addr",
}

// cli carries state shared by every subcommand once the root pre-run hook
// has loaded configuration.
type cli struct {
	configPath string

	cfg  config.Config
	meta config.Metadata

	structured *observability.Logger
	stderr     io.Writer

	// Test hooks; nil selects the configured backends.
	clients  clientFactory
	executor kernel.Executor
}

func (c *cli) logger(component string) logging.Logger {
	return logging.Multi(
		logging.NewComponentLogger(component),
		logging.Structured(c.structured, component),
	)
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(&cli{stderr: os.Stderr})
}

func newRootCommandWith(state *cli) *cobra.Command {

	root := &cobra.Command{
		Use:   "chemagent",
		Short: "Chemistry question answering agent with tool use",
		Long: `chemagent answers chemistry questions by reasoning step by step and
calling tools: PubChem lookups, molecule similarity, Wikipedia, web search,
a sandboxed Python kernel and an expert model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			return state.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&state.configPath, "config", "c", "", "config file (default ./chemagent.yaml or ~/.chemagent/chemagent.yaml)")
	pf.String("model", "", "model used by every component unless overridden")
	pf.String("tool-agent-model", "", "model for the tool-calling agent")
	pf.String("tools-model", "", "model behind the AiExpert tool")
	pf.String("rephrasing-model", "", "model for the rephrasing agent")
	pf.Int("max-iterations", 0, "maximum agent steps per question")
	pf.Int("max-error-iterations", 0, "consecutive unparsable replies tolerated")
	pf.StringSlice("include-tools", nil, "equip only these tools")
	pf.StringSlice("exclude-tools", nil, "equip every tool except these")
	pf.String("kernel-mode", "", `python kernel mode: "local" or "remote"`)
	pf.String("gateway-url", "", "kernel gateway URL (local mode)")
	pf.String("kernel-server-url", "", "kernel server URL (remote mode)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.BoolP("verbose", "v", false, "mirror logs to stdout")

	root.AddCommand(
		newRunCommand(state),
		newChatCommand(state),
		newToolsCommand(state),
		newKernelServerCommand(state),
		newConfigCommand(state),
		newVersionCommand(),
	)
	return root
}

// load resolves configuration for cmd and configures logging from it.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, meta, err := config.Load(
		config.WithConfigPath(c.configPath),
		config.WithFlags(cmd.Flags(), flagBindings),
	)
	if err != nil {
		return err
	}
	c.cfg, c.meta = cfg, meta

	utils.ConfigureLogger(utils.LoggerOptions{
		Level:      utils.ParseLogLevel(cfg.Log.Level),
		EnableFile: cfg.Log.File != "",
		FilePath:   cfg.Log.File,
		Stdout:     cfg.Log.Stdout,
	})
	if cfg.Observability.Logging.Format == "json" {
		c.structured = observability.NewLogger(observability.LogConfig{
			Level:  cfg.Observability.Logging.Level,
			Format: "json",
			Output: c.stderr,
		})
	}
	if path := meta.ConfigFile(); path != "" {
		c.logger("cli").Debug("Loaded config from %s", path)
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Annotations: map[string]string{"skipConfig": "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chemagent %s\n", version)
		},
	}
}

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"
