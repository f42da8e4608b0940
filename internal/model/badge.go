package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type BadgeType string

const (
	BadgeStreak      BadgeType = "STREAK"
	BadgeLevel       BadgeType = "LEVEL"
	BadgeHabitCount  BadgeType = "HABIT_COUNT"
	BadgeCategory    BadgeType = "CATEGORY"
	BadgeSocial      BadgeType = "SOCIAL"
	BadgeConsistency BadgeType = "CONSISTENCY"
	BadgeCompetitive BadgeType = "COMPETITIVE"
)

type BadgeRarity string

const (
	RarityCommon    BadgeRarity = "COMMON"
	RarityRare      BadgeRarity = "RARE"
	RarityEpic      BadgeRarity = "EPIC"
	RarityLegendary BadgeRarity = "LEGENDARY"
)

// Valid reports whether r is one of the known rarities.
func (r BadgeRarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// Badge is an achievement granted at most once per user.
type Badge struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        BadgeType   `json:"type"`
	Rarity      BadgeRarity `json:"rarity"`
	Criteria    Criteria    `json:"criteria"`
	Points      int         `json:"points"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// UserBadge records that a user earned a badge. Badge is populated on reads
// that join the badge row.
type UserBadge struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	BadgeID  string    `json:"badgeId"`
	EarnedAt time.Time `json:"earnedAt"`
	Badge    *Badge    `json:"badge,omitempty"`
}

// =========================================================================
// CRITERIA
// =========================================================================

// Criteria is the per-type parameter record of a badge. Each badge type has
// exactly one concrete criteria struct; values are always pointers.
type Criteria interface {
	BadgeType() BadgeType
	Validate() error
}

type StreakCriteria struct {
	TargetStreak int `json:"targetStreak" yaml:"targetStreak"`
}

type LevelCriteria struct {
	TargetLevel int `json:"targetLevel" yaml:"targetLevel"`
}

type HabitCountCriteria struct {
	TargetCount int `json:"targetCount" yaml:"targetCount"`
}

type CategoryCriteria struct {
	Category    string `json:"category" yaml:"category"`
	TargetCount int    `json:"targetCount" yaml:"targetCount"`
}

type SocialAction string

const SocialAddFriend SocialAction = "add_friend"

type SocialCriteria struct {
	Action      SocialAction `json:"action" yaml:"action"`
	TargetCount int          `json:"targetCount" yaml:"targetCount"`
}

type ConsistencyCriteria struct {
	TargetDays int `json:"targetDays" yaml:"targetDays"`
	WithinDays int `json:"withinDays" yaml:"withinDays"`
}

type CompetitiveAction string

const (
	CompetitiveFirst        CompetitiveAction = "first_competitive"
	CompetitiveFirstWin     CompetitiveAction = "first_win"
	CompetitiveMultipleWins CompetitiveAction = "multiple_wins"
)

type CompetitiveCriteria struct {
	Action     CompetitiveAction `json:"action" yaml:"action"`
	TargetWins int               `json:"targetWins,omitempty" yaml:"targetWins"`
}

func (*StreakCriteria) BadgeType() BadgeType      { return BadgeStreak }
func (*LevelCriteria) BadgeType() BadgeType       { return BadgeLevel }
func (*HabitCountCriteria) BadgeType() BadgeType  { return BadgeHabitCount }
func (*CategoryCriteria) BadgeType() BadgeType    { return BadgeCategory }
func (*SocialCriteria) BadgeType() BadgeType      { return BadgeSocial }
func (*ConsistencyCriteria) BadgeType() BadgeType { return BadgeConsistency }
func (*CompetitiveCriteria) BadgeType() BadgeType { return BadgeCompetitive }

var errNonPositive = errors.New("must be positive")

func positive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s %w", name, errNonPositive)
	}
	return nil
}

func (c *StreakCriteria) Validate() error     { return positive("targetStreak", c.TargetStreak) }
func (c *LevelCriteria) Validate() error      { return positive("targetLevel", c.TargetLevel) }
func (c *HabitCountCriteria) Validate() error { return positive("targetCount", c.TargetCount) }

func (c *CategoryCriteria) Validate() error {
	if strings.TrimSpace(c.Category) == "" {
		return errors.New("category is required")
	}
	return positive("targetCount", c.TargetCount)
}

func (c *SocialCriteria) Validate() error {
	if c.Action != SocialAddFriend {
		return fmt.Errorf("unknown social action %q", c.Action)
	}
	return positive("targetCount", c.TargetCount)
}

func (c *ConsistencyCriteria) Validate() error {
	if err := positive("targetDays", c.TargetDays); err != nil {
		return err
	}
	if err := positive("withinDays", c.WithinDays); err != nil {
		return err
	}
	if c.TargetDays > c.WithinDays {
		return errors.New("targetDays cannot exceed withinDays")
	}
	return nil
}

func (c *CompetitiveCriteria) Validate() error {
	switch c.Action {
	case CompetitiveFirst, CompetitiveFirstWin:
		return nil
	case CompetitiveMultipleWins:
		return positive("targetWins", c.TargetWins)
	}
	return fmt.Errorf("unknown competitive action %q", c.Action)
}

// NewCriteria returns an empty criteria record for t, ready to be decoded into.
func NewCriteria(t BadgeType) (Criteria, error) {
	switch t {
	case BadgeStreak:
		return &StreakCriteria{}, nil
	case BadgeLevel:
		return &LevelCriteria{}, nil
	case BadgeHabitCount:
		return &HabitCountCriteria{}, nil
	case BadgeCategory:
		return &CategoryCriteria{}, nil
	case BadgeSocial:
		return &SocialCriteria{}, nil
	case BadgeConsistency:
		return &ConsistencyCriteria{}, nil
	case BadgeCompetitive:
		return &CompetitiveCriteria{}, nil
	}
	return nil, fmt.Errorf("model: unknown badge type %q", t)
}

// DecodeCriteria parses the JSON criteria stored alongside a badge of type t.
func DecodeCriteria(t BadgeType, raw []byte) (Criteria, error) {
	c, err := NewCriteria(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("model: decoding %s criteria: %w", t, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("model: invalid %s criteria: %w", t, err)
	}
	return c, nil
}

// EncodeCriteria is the inverse of DecodeCriteria.
func EncodeCriteria(c Criteria) ([]byte, error) {
	if c == nil {
		return nil, errors.New("model: nil criteria")
	}
	return json.Marshal(c)
}
