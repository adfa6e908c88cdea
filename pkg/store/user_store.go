package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/msniranjan18/chhavinity/pkg/models"
)

var ErrUserNotFound = errors.New("store: user not found")

const userColumns = `id, username, full_name, profile_pic, bio, location, is_online, last_seen, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.FullName, &user.ProfilePic, &user.Bio,
		&user.Location, &user.IsOnline, &user.LastSeen, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.logger.Info("Creating user", "username", user.Username, "full_name", user.FullName)

	now := time.Now().UTC()
	user.ID = uuid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LastSeen = now

	query := `
		INSERT INTO users (id, username, full_name, profile_pic, bio, location, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := s.DB.QueryRowContext(ctx, query,
		user.ID, user.Username, user.FullName, user.ProfilePic, user.Bio, user.Location,
		user.LastSeen, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		s.logger.Error("Failed to create user", "error", err, "username", user.Username)
		return err
	}

	s.logger.Info("User created successfully", "user_id", user.ID, "username", user.Username)
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	s.logger.Debug("Getting user by ID", "user_id", userID)

	user, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		s.logger.Error("Failed to get user by ID", "error", err, "user_id", userID)
	}
	return user, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.logger.Debug("Getting user by username", "username", username)

	user, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		s.logger.Error("Failed to get user by username", "error", err, "username", username)
	}
	return user, err
}

// SetOnlineStatus stores the flag and mirrors it in the presence cache.
// Going offline also records last-seen.
func (s *Store) SetOnlineStatus(ctx context.Context, userID string, online bool) error {
	s.logger.Debug("Setting online status", "user_id", userID, "is_online", online)

	var res sql.Result
	var err error
	if online {
		res, err = s.DB.ExecContext(ctx, `UPDATE users SET is_online = TRUE WHERE id = $1`, userID)
	} else {
		res, err = s.DB.ExecContext(ctx,
			`UPDATE users SET is_online = FALSE, last_seen = $2 WHERE id = $1`, userID, time.Now().UTC())
	}
	if err != nil {
		s.logger.Error("Failed to update online status", "error", err, "user_id", userID)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}

	if online {
		err = s.CachePresence(ctx, userID)
	} else {
		err = s.DropPresence(ctx, userID)
	}
	if err != nil {
		// the table is authoritative; a missing key only reads as offline
		s.logger.Warn("Failed to update presence cache", "error", err, "user_id", userID)
	}
	return nil
}

// TouchLastSeen is the heartbeat: it keeps the user online and refreshes
// the presence key. The stored last-seen is left alone.
func (s *Store) TouchLastSeen(ctx context.Context, userID string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET is_online = TRUE WHERE id = $1`, userID)
	if err != nil {
		s.logger.Error("Failed to confirm online status", "error", err, "user_id", userID)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	if err := s.RefreshPresence(ctx, userID); err != nil {
		s.logger.Warn("Failed to refresh presence cache", "error", err, "user_id", userID)
	}
	return nil
}

// AddFriend records a mutual friendship.
func (s *Store) AddFriend(ctx context.Context, userID, friendID string) error {
	s.logger.Info("Adding friend", "user_id", userID, "friend_id", friendID)

	query := `
		INSERT INTO friendships (user_id, friend_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT (user_id, friend_id) DO NOTHING`

	if _, err := s.DB.ExecContext(ctx, query, userID, friendID); err != nil {
		s.logger.Error("Failed to add friend", "error", err, "user_id", userID, "friend_id", friendID)
		return err
	}
	return nil
}

// GetFriends lists userID's friends. A friend is online only while both the
// stored flag is set and their presence key is live.
func (s *Store) GetFriends(ctx context.Context, userID string) ([]models.Friend, error) {
	s.logger.Debug("Getting friends", "user_id", userID)

	query := `
		SELECT u.id, u.full_name, u.username, u.profile_pic, u.bio, u.location,
			u.proficient_tech_stack, u.learning_tech_stack, u.is_online, u.last_seen, u.created_at
		FROM friendships f
		JOIN users u ON f.friend_id = u.id
		WHERE f.user_id = $1
		ORDER BY u.full_name`

	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		s.logger.Error("Failed to get friends", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	friends := []models.Friend{}
	for rows.Next() {
		var f models.Friend
		var lastSeen, createdAt sql.NullTime
		err := rows.Scan(
			&f.ID, &f.FullName, &f.Username, &f.ProfilePic, &f.Bio, &f.Location,
			pq.Array(&f.ProficientTechStack), pq.Array(&f.LearningTechStack),
			&f.IsOnline, &lastSeen, &createdAt,
		)
		if err != nil {
			s.logger.Error("Failed to scan friend row", "error", err, "user_id", userID)
			return nil, err
		}
		f.LastSeen = lastSeen.Time
		f.CreatedAt = createdAt.Time
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var flagged []string
	for _, f := range friends {
		if f.IsOnline {
			flagged = append(flagged, f.ID)
		}
	}
	alive, err := s.PresenceAlive(ctx, flagged)
	if err != nil {
		// without the cache nobody can be confirmed live
		s.logger.Warn("Failed to read presence cache", "error", err, "user_id", userID)
		alive = map[string]bool{}
	}
	for i := range friends {
		friends[i].IsOnline = friends[i].IsOnline && alive[friends[i].ID]
	}

	s.logger.Debug("Friends retrieved", "user_id", userID, "friend_count", len(friends))
	return friends, nil
}
