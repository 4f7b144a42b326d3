package main

import (
	"context"
	"fmt"
	"strings"

	"chemagent/internal/llm"
	"chemagent/internal/toolregistry"
	"chemagent/internal/tools"
	"chemagent/internal/tools/builtin"

	"github.com/spf13/cobra"
)

func newToolsCommand(state *cli) *cobra.Command {
	var describe bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent would be equipped with",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.listTools(cmd, describe)
		},
	}
	cmd.Flags().BoolVarP(&describe, "describe", "d", false, "print each tool's description")
	return cmd
}

func (c *cli) listTools(cmd *cobra.Command, describe bool) (err error) {
	ctx := cmd.Context()
	cfg := c.cfg
	rt := &runtime{}
	defer func() {
		if cerr := rt.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()

	// The expert tool is listed only when its model client can be built.
	models := modelsFor(cfg, nil)
	clients := c.clients
	if clients == nil {
		clients = providerClients(cfg)
	}
	var expert llm.Client
	if client, cerr := clients(models.Tools); cerr == nil {
		expert = client
	} else {
		c.logger("cli").Warn("AiExpert unavailable: %v", cerr)
	}
	executor := c.executor
	if executor == nil {
		if executor, err = c.newExecutor(ctx, rt); err != nil {
			return err
		}
	}
	list, err := builtin.MakeTools(builtin.Config{
		Executor:       executor,
		PythonTimeout:  cfg.Kernel.ExecuteTimeout,
		ExpertLLM:      expert,
		TavilyAPIKey:   cfg.TavilyAPIKey,
		RXN4ChemAPIKey: cfg.RXN4ChemAPIKey,
		Include:        cfg.Tools.Include,
		Exclude:        cfg.Tools.Exclude,
		Logger:         c.logger("tools"),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, tool := range list {
		fmt.Fprintln(out, green(tool.Name()))
		if describe {
			fmt.Fprintf(out, "    %s\n", strings.ReplaceAll(strings.TrimSpace(tool.Description()), "\n", "\n    "))
		}
	}
	if v := toolregistry.VerifyCatalog(list, tools.ReferenceCatalog()); !v.OK() {
		fmt.Fprintln(out)
		printVerification(out, v, tools.Names(list))
	}
	return nil
}
