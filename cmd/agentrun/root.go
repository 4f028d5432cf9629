package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrun/config"
)

type rootFlags struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "agentrun",
		Short: "agentrun - run LLM agents with human-in-the-loop tool gating",
		Example: `  agentrun run "summarize the README"
  agentrun run --session s1 --user alice "remember that I like tea"
  agentrun sessions list --user alice`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			flags.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "agentrun.yaml", "Path to the configuration file")

	cmd.AddCommand(newRunCmd(&flags))
	cmd.AddCommand(newSessionsCmd(&flags))

	return cmd
}
