package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DEX_GATEWAY_REDIS_ADDR.
const EnvPrefix = "DEX_GATEWAY"

// DefaultPath is read when Load is given no explicit file.
const DefaultPath = "~/Dexter/config/gateway.json"

// expandPath resolves paths like "~/" to the user's home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// Load builds a Config from defaults, a JSON file and the environment, in
// increasing order of precedence. An empty path reads DefaultPath when it
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(resolved); statErr == nil || explicit {
		v.SetConfigFile(resolved)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file %s: %w", resolved, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// the file does not mention.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("token", d.Token)
	v.SetDefault("intents", d.Intents)
	v.SetDefault("first_shard_id", d.FirstShardID)
	v.SetDefault("last_shard_id", d.LastShardID)
	v.SetDefault("max_shards", d.MaxShards)
	v.SetDefault("message_limit", d.MessageLimit)
	v.SetDefault("large_threshold", d.LargeThreshold)
	v.SetDefault("compress", d.Compress)
	v.SetDefault("guild_create_timeout", d.GuildCreateTimeout)
	v.SetDefault("connection_timeout", d.ConnectionTimeout)
	v.SetDefault("connect_cooldown", d.ConnectCooldown)
	v.SetDefault("invalid_session_delay", d.InvalidSessionDelay)
	v.SetDefault("max_reconnect_attempts", d.MaxReconnectAttempts)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.username", d.Redis.Username)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
	v.SetDefault("redis.max_messages", d.Redis.MaxMessages)
}
