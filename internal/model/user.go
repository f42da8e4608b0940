// Package model defines the records habitquest persists.
//
// Records are plain structs. Business rules live in internal/gamify and
// internal/service; repositories only move these values in and out of storage.
package model

import "time"

// User is an account. XPPoints and Level change only through
// gamify.ApplyXP, never by direct assignment in the services.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullname"`
	PasswordHash string    `json:"-"`
	GoogleID     string    `json:"-"` // empty for password-only accounts
	AvatarURL    string    `json:"avatarUrl"`
	XPPoints     int       `json:"xpPoints"`
	Level        int       `json:"level"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicUser is the subset of a User shown to other users (friend lists,
// leaderboards).
type PublicUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullname"`
	AvatarURL string `json:"avatarUrl"`
	XPPoints  int    `json:"xpPoints"`
	Level     int    `json:"level"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		XPPoints:  u.XPPoints,
		Level:     u.Level,
	}
}
