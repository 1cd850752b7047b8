package main

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/spf13/cobra"

	"github.com/EasterCompany/dex-discord-gateway/cache"
)

func newMessagesCmd(root *rootOptions) *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "messages <channel-id>",
		Short: "Print the messages mirrored into Redis for a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return errors.New("redis.addr is not configured")
			}
			rdb, err := cache.NewClient(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			mirror := cache.NewMirror(rdb, cfg.Redis, nil, nil)
			defer mirror.Close()

			records, err := mirror.RecentMessages(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "--- Channel %s (%d messages) ---\n", args[0], len(records))
			for _, r := range records {
				fmt.Fprintf(out, "  - [%s] %s: %s\n", r.At.Format("15:04:05"), r.Username, r.Content)
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&limit, "limit", "n", 50, "maximum messages to print, newest first")
	return cmd
}
