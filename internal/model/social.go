package model

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "PENDING"
	FriendshipAccepted FriendshipStatus = "ACCEPTED"
	FriendshipDeclined FriendshipStatus = "DECLINED"
)

// Friendship links two users. UserID sent the request and FriendID received
// it, but an accepted friendship means the same thing from either side.
type Friendship struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	FriendID  string           `json:"friendId"`
	Status    FriendshipStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Other returns the id on the opposite side of the friendship from userID.
func (f *Friendship) Other(userID string) string {
	if f.UserID == userID {
		return f.FriendID
	}
	return f.UserID
}

// Involves reports whether userID is either side of the friendship.
func (f *Friendship) Involves(userID string) bool {
	return f.UserID == userID || f.FriendID == userID
}

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "PENDING"
	ParticipantAccepted ParticipantStatus = "ACCEPTED"
	ParticipantDeclined ParticipantStatus = "DECLINED"
	ParticipantRemoved  ParticipantStatus = "REMOVED"
)

// HabitParticipant is a user's membership in a competitive habit.
// JoinedAt is set once the invitation is accepted.
type HabitParticipant struct {
	ID        string            `json:"id"`
	HabitID   string            `json:"habitId"`
	UserID    string            `json:"userId"`
	Status    ParticipantStatus `json:"status"`
	InvitedAt time.Time         `json:"invitedAt"`
	JoinedAt  *time.Time        `json:"joinedAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"createdAt"`
}
