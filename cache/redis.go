// Package cache mirrors gateway activity into Redis: every event is
// published on a pub/sub channel, created messages are kept in a capped
// list per channel and log lines can be captured in a capped list.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/redis/go-redis/v9"

	"github.com/EasterCompany/dex-discord-gateway/config"
	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/worker"
)

// Key suffixes under the configured prefix.
const (
	EventsChannel  = "events"
	MessagesPrefix = "messages:"
	LogsKey        = "logs"
)

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.WrapIff(err, "could not connect to cache at %s", cfg.Addr)
	}
	return rdb, nil
}

// addToList pushes value to the head of key and trims the list to
// maxLength entries.
func addToList(ctx context.Context, rdb redis.Cmdable, key, value string, maxLength int64) error {
	pipe := rdb.Pipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, maxLength-1)
	_, err := pipe.Exec(ctx)
	return err
}

// Mirror publishes bus events to Redis. Events are flattened on the event
// loop and written by the worker pool, so Redis latency never stalls the
// gateway. When the pool is saturated events are dropped and counted.
type Mirror struct {
	rdb         *redis.Client
	pool        *worker.Pool
	prefix      string
	maxMessages int64
	skip        map[events.Type]bool
	now         func() time.Time
	log         *slog.Logger

	dropped atomic.Int64
}

// MirrorOption customises a Mirror.
type MirrorOption func(*Mirror)

// WithSkip excludes event types from publishing.
func WithSkip(types ...events.Type) MirrorOption {
	return func(m *Mirror) {
		for _, t := range types {
			m.skip[t] = true
		}
	}
}

// WithNow replaces the clock stamping records.
func WithNow(now func() time.Time) MirrorOption { return func(m *Mirror) { m.now = now } }

// NewMirror returns a mirror writing through rdb. The pool must be started
// by the caller and outlive the mirror's subscription.
func NewMirror(rdb *redis.Client, cfg config.RedisConfig, pool *worker.Pool, logger *slog.Logger, opts ...MirrorOption) *Mirror {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Mirror{
		rdb:         rdb,
		pool:        pool,
		prefix:      cfg.Prefix,
		maxMessages: int64(max(cfg.MaxMessages, 1)),
		skip:        make(map[events.Type]bool),
		now:         time.Now,
		log:         logger.With(slog.String("component", "cache")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe starts mirroring bus events and returns a function that stops
// it.
func (m *Mirror) Subscribe(bus *events.Bus) func() {
	return bus.Subscribe(m.handle)
}

func (m *Mirror) handle(ev events.Event) {
	if m.skip[ev.Type()] {
		return
	}
	rec := NewRecord(ev, m.now())
	payload, err := json.Marshal(rec)
	if err != nil {
		m.log.Warn("could not encode event", "type", rec.Type, "error", err)
		return
	}

	_, isMessage := ev.(events.MessageCreate)
	job := func(ctx context.Context) error {
		if err := m.rdb.Publish(ctx, m.prefix+EventsChannel, string(payload)).Err(); err != nil {
			return errors.WrapIff(err, "publish %s", rec.Type)
		}
		if isMessage && rec.ChannelID != "" {
			return errors.WrapIf(addToList(ctx, m.rdb, m.messagesKey(rec.ChannelID), string(payload), m.maxMessages), "record message")
		}
		return nil
	}
	if !m.pool.TrySubmit(job) {
		if n := m.dropped.Add(1); n == 1 || n%100 == 0 {
			m.log.Warn("cache queue full, dropping events", "dropped", n)
		}
	}
}

func (m *Mirror) messagesKey(channelID string) string {
	return m.prefix + MessagesPrefix + channelID
}

// RecentMessages returns up to n messages recorded for a channel, newest
// first.
func (m *Mirror) RecentMessages(ctx context.Context, channelID string, n int64) ([]Record, error) {
	raw, err := m.rdb.LRange(ctx, m.messagesKey(channelID), 0, n-1).Result()
	if err != nil {
		return nil, errors.WrapIff(err, "could not read messages for %s", channelID)
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			m.log.Debug("skipping malformed message record", "channel", channelID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Dropped returns the number of events dropped on a full queue.
func (m *Mirror) Dropped() int64 { return m.dropped.Load() }

// Ping implements health.Pinger.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection. Stop the pool first so queued writes
// land.
func (m *Mirror) Close() error {
	return m.rdb.Close()
}
