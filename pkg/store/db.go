package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/multierr"
)

type Options struct {
	PostgresURL  string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration

	RedisURL    string
	RedisTLS    bool
	PresenceTTL time.Duration
}

type Store struct {
	DB  *sql.DB
	RDB *redis.Client

	presenceTTL time.Duration
	logger      *slog.Logger
}

func NewStore(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	var db *sql.DB
	var err error

	logger.Info("Initializing store", "postgres_conn", opts.PostgresURL[:min(len(opts.PostgresURL), 50)], "redis_addr", opts.RedisURL)

	// Retry Postgres connection 5 times
	for i := 0; i < 5; i++ {
		db, err = sql.Open("postgres", opts.PostgresURL)
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				logger.Info("PostgreSQL connection successful", "attempt", i+1)
				break
			}
		}
		logger.Warn("Waiting for PostgreSQL...", "attempt", i+1, "max_attempts", 5, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxIdleTime(opts.MaxIdleTime)

	logger.Debug("PostgreSQL connection pool configured",
		"max_open_conns", opts.MaxOpenConns, "max_idle_conns", opts.MaxIdleConns, "max_idle_time", opts.MaxIdleTime)

	rdb, err := InitRedis(ctx, opts.RedisURL, opts.RedisTLS, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Successfully connected to PostgreSQL and Redis")

	return &Store{
		DB:          db,
		RDB:         rdb,
		presenceTTL: opts.PresenceTTL,
		logger:      logger,
	}, nil
}

func (s *Store) InitSchema(ctx context.Context) error {
	s.logger.Info("Initializing database schema")

	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username VARCHAR(50) UNIQUE NOT NULL,
			full_name VARCHAR(100) NOT NULL,
			profile_pic TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			location VARCHAR(100) NOT NULL DEFAULT '',
			proficient_tech_stack TEXT[] NOT NULL DEFAULT '{}',
			learning_tech_stack TEXT[] NOT NULL DEFAULT '{}',
			is_online BOOLEAN NOT NULL DEFAULT FALSE,
			last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
		CREATE INDEX IF NOT EXISTS idx_users_is_online ON users(is_online);

		-- Friendships are stored once per direction
		CREATE TABLE IF NOT EXISTS friendships (
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			friend_id UUID REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, friend_id)
		);

		CREATE INDEX IF NOT EXISTS idx_friendships_friend_id ON friendships(friend_id);

		CREATE OR REPLACE FUNCTION update_updated_at_column()
		RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = CURRENT_TIMESTAMP;
			RETURN NEW;
		END;
		$$ language 'plpgsql';

		DROP TRIGGER IF EXISTS update_users_updated_at ON users;
		CREATE TRIGGER update_users_updated_at
			BEFORE UPDATE ON users
			FOR EACH ROW
			EXECUTE FUNCTION update_updated_at_column();
	`

	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		s.logger.Error("Failed to initialize schema", "error", err)
		return err
	}

	s.logger.Info("Database schema initialized successfully")
	return nil
}

func (s *Store) Close() error {
	s.logger.Info("Closing store connections")

	err := multierr.Combine(
		wrapClose("postgres", s.DB.Close()),
		wrapClose("redis", s.RDB.Close()),
	)
	if err != nil {
		s.logger.Error("Errors closing store", "error_count", len(multierr.Errors(err)), "error", err)
		return err
	}

	s.logger.Info("Store connections closed successfully")
	return nil
}

func wrapClose(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s close error: %w", what, err)
}

// StartCleanupWorker clears the online flag of users whose presence key has
// expired, so a client that vanished without going offline stops reading as
// online in listings that only look at the table.
func (s *Store) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	s.logger.Info("Starting cleanup worker", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Cleanup worker stopped")
			return
		case <-ticker.C:
		}

		s.logger.Debug("Running cleanup cycle")
		n, err := s.SweepStalePresence(ctx)
		if err != nil {
			s.logger.Error("Error sweeping stale presence", "error", err)
			continue
		}
		if n > 0 {
			s.logger.Debug("Marked stale users offline", "updated_rows", n)
		}
	}
}

// SweepStalePresence marks offline every user flagged online without a live
// presence key, recording their last-seen as now.
func (s *Store) SweepStalePresence(ctx context.Context) (int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM users WHERE is_online = TRUE`)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	alive, err := s.PresenceAlive(ctx, ids)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		if alive[id] {
			continue
		}
		if _, err := s.DB.ExecContext(ctx,
			`UPDATE users SET is_online = FALSE, last_seen = $2 WHERE id = $1 AND is_online = TRUE`,
			id, time.Now().UTC()); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}
