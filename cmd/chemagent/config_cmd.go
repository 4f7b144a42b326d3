package main

import (
	"fmt"

	"chemagent/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(state *cli) *cobra.Command {
	var sources bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if path := state.meta.ConfigFile(); path != "" {
				fmt.Fprintln(out, gray("# file: "+path))
			}
			if sources {
				for _, key := range state.meta.Keys() {
					if src := state.meta.Source(key); src != config.SourceDefault {
						fmt.Fprintf(out, "%s %s\n", gray("# "+key+":"), src)
					}
				}
			}
			data, err := yaml.Marshal(state.cfg.Redacted())
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&sources, "sources", false, "show where each non-default value came from")
	return cmd
}
