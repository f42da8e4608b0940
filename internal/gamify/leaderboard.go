package gamify

import (
	"slices"
	"sort"
	"time"
)

// RecentWindow bounds the "recent completions" column of a leaderboard.
const RecentWindow = 30 * 24 * time.Hour

// Competitor is one accepted participant of a competitive habit with their
// completion times on it.
type Competitor struct {
	UserID        string
	ParticipantID string
	Completions   []time.Time
}

type Standing struct {
	UserID            string `json:"userId"`
	ParticipantID     string `json:"participantId"`
	TotalCompletions  int    `json:"totalCompletions"`
	RecentCompletions int    `json:"recentCompletions"`
	CurrentStreak     int    `json:"currentStreak"`
	Rank              int    `json:"rank"`
}

// Rank orders competitors by total completions, highest first. Ties keep
// their input order and ranks are 1-based positions, so tied competitors get
// consecutive ranks.
func Rank(competitors []Competitor, now time.Time) []Standing {
	standings := make([]Standing, len(competitors))
	cutoff := now.Add(-RecentWindow)

	for i, c := range competitors {
		recent := 0
		for _, t := range c.Completions {
			if !t.Before(cutoff) {
				recent++
			}
		}
		standings[i] = Standing{
			UserID:            c.UserID,
			ParticipantID:     c.ParticipantID,
			TotalCompletions:  len(c.Completions),
			RecentCompletions: recent,
			CurrentStreak:     chainLength(c.Completions),
		}
	}

	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].TotalCompletions > standings[j].TotalCompletions
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// chainLength counts, from the newest completion backwards, how many
// successive gaps are at most one day.
func chainLength(completions []time.Time) int {
	sorted := slices.Clone(completions)
	slices.SortFunc(sorted, func(a, b time.Time) int { return b.Compare(a) })

	n := 0
	for i := 0; i+1 < len(sorted); i++ {
		if sorted[i].Sub(sorted[i+1]) > 24*time.Hour {
			break
		}
		n++
	}
	return n
}

// RankOf returns userID's rank in standings, or 0 when absent.
func RankOf(standings []Standing, userID string) int {
	for _, s := range standings {
		if s.UserID == userID {
			return s.Rank
		}
	}
	return 0
}

// Winner returns the competitor with strictly the most completions. A tie
// for the lead, or fewer than two competitors, means nobody wins.
func Winner(competitors []Competitor) (string, bool) {
	if len(competitors) < 2 {
		return "", false
	}
	best, winner, tied := -1, "", false
	for _, c := range competitors {
		switch n := len(c.Completions); {
		case n > best:
			best, winner, tied = n, c.UserID, false
		case n == best:
			tied = true
		}
	}
	if tied {
		return "", false
	}
	return winner, true
}
