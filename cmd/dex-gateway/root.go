package main

import (
	"github.com/spf13/cobra"

	"github.com/EasterCompany/dex-discord-gateway/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "dex-gateway",
		Short:         "Sharded chat gateway client with an optional Redis event mirror",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default "+config.DefaultPath+" when present)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newVerifyConfigCmd(opts),
		newMessagesCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}
