package config

import "time"

// Config holds everything the gateway needs to connect and cache.
type Config struct {
	Token   string `mapstructure:"token" json:"token"`
	Intents int    `mapstructure:"intents" json:"intents"`

	// Shard range owned by this process, inclusive. MaxShards of zero uses
	// the count recommended by the gateway.
	FirstShardID int `mapstructure:"first_shard_id" json:"first_shard_id"`
	LastShardID  int `mapstructure:"last_shard_id" json:"last_shard_id"`
	MaxShards    int `mapstructure:"max_shards" json:"max_shards"`

	// MessageLimit bounds every channel's message cache. Zero disables
	// message caching.
	MessageLimit   int  `mapstructure:"message_limit" json:"message_limit"`
	LargeThreshold int  `mapstructure:"large_threshold" json:"large_threshold"`
	Compress       bool `mapstructure:"compress" json:"compress"`

	GuildCreateTimeout   time.Duration `mapstructure:"guild_create_timeout" json:"guild_create_timeout"`
	ConnectionTimeout    time.Duration `mapstructure:"connection_timeout" json:"connection_timeout"`
	ConnectCooldown      time.Duration `mapstructure:"connect_cooldown" json:"connect_cooldown"`
	InvalidSessionDelay  time.Duration `mapstructure:"invalid_session_delay" json:"invalid_session_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" json:"max_reconnect_attempts"`

	Log   LogConfig   `mapstructure:"log" json:"log"`
	Redis RedisConfig `mapstructure:"redis" json:"redis"`
}

// LogConfig selects the log level (debug, info, warn, error) and format
// (text or json).
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// RedisConfig holds the connection to the optional event mirror. An empty
// Addr disables it.
type RedisConfig struct {
	Addr        string `mapstructure:"addr" json:"addr"`
	Username    string `mapstructure:"username" json:"username"`
	Password    string `mapstructure:"password" json:"password"`
	DB          int    `mapstructure:"db" json:"db"`
	Prefix      string `mapstructure:"prefix" json:"prefix"`
	MaxMessages int    `mapstructure:"max_messages" json:"max_messages"`
}
