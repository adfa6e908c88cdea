package models

import (
	"time"
)

// User is the account record the agent logs in as and the service stores.
type User struct {
	ID         string    `json:"_id" db:"id"`
	FullName   string    `json:"fullName" db:"full_name"`
	Username   string    `json:"username,omitempty" db:"username"`
	ProfilePic string    `json:"profilePic,omitempty" db:"profile_pic"`
	Bio        string    `json:"bio,omitempty" db:"bio"`
	Location   string    `json:"location,omitempty" db:"location"`
	IsOnline   bool      `json:"isOnline" db:"is_online"`
	LastSeen   time.Time `json:"lastSeen" db:"last_seen"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// Friend is one entry of GET /api/users/friends.
type Friend struct {
	ID                  string    `json:"_id"`
	FullName            string    `json:"fullName"`
	Username            string    `json:"username,omitempty"`
	ProfilePic          string    `json:"profilePic,omitempty"`
	Bio                 string    `json:"bio,omitempty"`
	Location            string    `json:"location,omitempty"`
	ProficientTechStack []string  `json:"proficientTechStack,omitempty"`
	LearningTechStack   []string  `json:"learningTechStack,omitempty"`
	IsOnline            bool      `json:"isOnline"`
	LastSeen            time.Time `json:"lastSeen"`
	CreatedAt           time.Time `json:"createdAt,omitempty"`
}

type OnlineStatusRequest struct {
	IsOnline bool `json:"isOnline"`
}

type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type AuthRequest struct {
	Username string `json:"username"`
	FullName string `json:"fullName,omitempty"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AddFriendRequest struct {
	FriendID string `json:"friendId"`
}
