package model

import "time"

// Habit is a recurring activity owned by a user.
//
// RecurrenceMask is a 7-bit weekday set: bit 0 is Sunday, bit 6 is Saturday.
// Invariant: LongestStreak >= Streak >= 0.
type Habit struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	RecurrenceMask  int        `json:"recurrenceMask"`
	Points          int        `json:"points"`
	Difficulty      int        `json:"difficulty,omitempty"` // 1..5, 0 when unset
	Category        string     `json:"category,omitempty"`
	Streak          int        `json:"streak"`
	LongestStreak   int        `json:"longestStreak"`
	LastCompletedAt *time.Time `json:"lastCompletedAt"`
	IsActive        bool       `json:"isActive"`
	IsCompetitive   bool       `json:"isCompetitive"`
	MaxParticipants int        `json:"maxParticipants,omitempty"` // 0 means unlimited
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// HabitCompletion is one entry in the append-only completion log.
//
// CompletedOn is the calendar day (YYYY-MM-DD, in the server's configured
// time zone) the completion counts for; storage keeps it unique per
// (habit, user).
type HabitCompletion struct {
	ID            string    `json:"id"`
	HabitID       string    `json:"habitId"`
	UserID        string    `json:"userId"`
	ParticipantID string    `json:"participantId,omitempty"`
	CompletedAt   time.Time `json:"completedAt"`
	CompletedOn   string    `json:"completedOn"`
	Points        int       `json:"points"`
	Notes         string    `json:"notes,omitempty"`
}

// DayKeyLayout formats CompletedOn values.
const DayKeyLayout = "2006-01-02"

// DayKey returns the CompletedOn value for t, using t's location.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}
