package gamify

// XPPerLevel is the XP needed to climb one level. Level 1 starts at 0 XP.
const XPPerLevel = 100

// LevelFor maps accumulated XP to a level.
func LevelFor(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

type XPResult struct {
	XP        int  `json:"xpPoints"`
	Level     int  `json:"level"`
	Gained    int  `json:"xpGained"`
	LeveledUp bool `json:"leveledUp"`
}

// ApplyXP credits delta XP. Negative deltas are treated as zero, and the
// level never drops below currentLevel, so XP and level are monotonic.
func ApplyXP(currentXP, currentLevel, delta int) XPResult {
	if delta < 0 {
		delta = 0
	}
	xp := currentXP + delta
	level := max(LevelFor(xp), currentLevel)
	return XPResult{
		XP:        xp,
		Level:     level,
		Gained:    delta,
		LeveledUp: level > currentLevel,
	}
}

// LevelProgress describes how far a user is through their current level.
type LevelProgress struct {
	Level          int     `json:"currentLevel"`
	XP             int     `json:"currentXp"`
	LevelStartXP   int     `json:"xpForCurrentLevel"`
	NextLevelXP    int     `json:"xpForNextLevel"`
	XPIntoLevel    int     `json:"progressXp"`
	XPToNextLevel  int     `json:"xpNeeded"`
	PercentToLevel float64 `json:"progressPercentage"`
}

func ProgressFor(xp int) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := LevelFor(xp)
	start := (level - 1) * XPPerLevel
	next := level * XPPerLevel
	into := xp - start
	return LevelProgress{
		Level:          level,
		XP:             xp,
		LevelStartXP:   start,
		NextLevelXP:    next,
		XPIntoLevel:    into,
		XPToNextLevel:  next - xp,
		PercentToLevel: float64(into) * 100 / XPPerLevel,
	}
}
