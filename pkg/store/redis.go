package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

func InitRedis(ctx context.Context, url string, useTLS bool, logger *slog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if useTLS && opt.TLSConfig == nil {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	opt.PoolSize = 100
	opt.MinIdleConns = 10
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Redis connected successfully", "addr", opt.Addr)
	return client, nil
}

func userPresenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// CachePresence marks userID live for the presence TTL.
func (s *Store) CachePresence(ctx context.Context, userID string) error {
	return s.RDB.Set(ctx, userPresenceKey(userID), time.Now().UTC().Format(time.RFC3339), s.presenceTTL).Err()
}

// RefreshPresence extends a live presence key, creating it if missing.
func (s *Store) RefreshPresence(ctx context.Context, userID string) error {
	ok, err := s.RDB.Expire(ctx, userPresenceKey(userID), s.presenceTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return s.CachePresence(ctx, userID)
	}
	return nil
}

func (s *Store) DropPresence(ctx context.Context, userID string) error {
	return s.RDB.Del(ctx, userPresenceKey(userID)).Err()
}

// PresenceAlive reports which of userIDs hold an unexpired presence key.
func (s *Store) PresenceAlive(ctx context.Context, userIDs []string) (map[string]bool, error) {
	alive := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return alive, nil
	}

	pipe := s.RDB.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, userPresenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	for i, id := range userIDs {
		alive[id] = cmds[i].Val() > 0
	}
	return alive, nil
}
