package main

import (
	"fmt"
	"io"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
)

// ANSI color codes for formatted output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
)

// errVerifyFailed is returned after the problems were printed.
const errVerifyFailed = errors.Sentinel("configuration has problems")

const intentsPrivileged = int(discordgo.IntentsGuildMembers | discordgo.IntentsGuildPresences | discordgo.IntentsMessageContent)

func newVerifyConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-config",
		Short: "Load the configuration and report every problem found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return verifyConfig(cmd.OutOrStdout(), root)
		},
	}
}

func verifyConfig(out io.Writer, root *rootOptions) error {
	fmt.Fprintf(out, "%s--- Dexter Gateway Config Verifier ---%s\n", colorBlue, colorReset)

	cfg, err := root.load()
	if err != nil {
		fmt.Fprintf(out, "  %s[FAIL]%s %v\n", colorRed, colorReset, err)
		return errVerifyFailed
	}
	fmt.Fprintf(out, "  %s[OK]%s Configuration loaded.\n", colorGreen, colorReset)

	if err := cfg.Validate(); err != nil {
		for _, problem := range errors.GetErrors(err) {
			fmt.Fprintf(out, "  %s[FAIL]%s %v\n", colorRed, colorReset, problem)
		}
		return errVerifyFailed
	}
	fmt.Fprintf(out, "  %s[OK]%s All values are valid.\n", colorGreen, colorReset)

	if cfg.MaxShards == 0 {
		fmt.Fprintf(out, "  %s[OK]%s Shard count follows the gateway recommendation.\n", colorGreen, colorReset)
	} else {
		fmt.Fprintf(out, "  %s[OK]%s Running shards %d-%d of %d.\n", colorGreen, colorReset, cfg.FirstShardID, cfg.LastShardID, cfg.MaxShards)
	}
	if cfg.Redis.Addr == "" {
		fmt.Fprintf(out, "  %s[WARN]%s redis.addr is empty, the event mirror is disabled.\n", colorYellow, colorReset)
	}
	if cfg.MessageLimit == 0 {
		fmt.Fprintf(out, "  %s[WARN]%s message_limit is 0, messages are not cached.\n", colorYellow, colorReset)
	}
	if cfg.Intents&intentsPrivileged != 0 {
		fmt.Fprintf(out, "  %s[WARN]%s Privileged intents requested; enable them in the developer portal.\n", colorYellow, colorReset)
	}
	return nil
}
