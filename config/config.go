// Package config loads gateway settings from ~/Dexter/config/gateway.json
// and DEX_GATEWAY_* environment variables.
package config

import (
	"fmt"
	"time"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
)

// ErrInvalidConfig marks every validation failure.
const ErrInvalidConfig = errors.Sentinel("invalid config")

// Default returns the settings used for keys absent from file and env.
func Default() Config {
	return Config{
		Intents:              int(discordgo.IntentsAllWithoutPrivileged),
		MessageLimit:         100,
		LargeThreshold:       250,
		GuildCreateTimeout:   2 * time.Second,
		ConnectionTimeout:    30 * time.Second,
		ConnectCooldown:      5 * time.Second,
		InvalidSessionDelay:  5 * time.Second,
		MaxReconnectAttempts: -1,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redis: RedisConfig{
			Prefix:      "dexter:gateway:",
			MaxMessages: 50,
		},
	}
}

// Validate reports every problem found, combined into one error.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Token == "" {
		invalid("token is empty")
	}
	if c.FirstShardID < 0 || c.LastShardID < 0 || c.MaxShards < 0 {
		invalid("shard ids must not be negative")
	}
	if c.LastShardID < c.FirstShardID {
		invalid("last_shard_id %d is below first_shard_id %d", c.LastShardID, c.FirstShardID)
	}
	if c.MaxShards > 0 && c.LastShardID >= c.MaxShards {
		invalid("last_shard_id %d is outside max_shards %d", c.LastShardID, c.MaxShards)
	}
	if c.MessageLimit < 0 {
		invalid("message_limit must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		invalid("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		invalid("unknown log format %q", c.Log.Format)
	}
	return errors.Combine(errs...)
}

// Shards returns the shard ids this process owns and the total shard
// count. Without max_shards every shard of the recommended count is owned.
func (c *Config) Shards(recommended int) (ids []int, count int) {
	if c.MaxShards == 0 {
		count = max(recommended, 1)
		ids = make([]int, count)
		for i := range ids {
			ids[i] = i
		}
		return ids, count
	}
	for id := c.FirstShardID; id <= c.LastShardID; id++ {
		ids = append(ids, id)
	}
	return ids, c.MaxShards
}
