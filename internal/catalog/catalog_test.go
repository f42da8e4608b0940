package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habitquest/internal/model"
)

func TestBadges_DefaultCatalog(t *testing.T) {
	badges, err := Badges()
	require.NoError(t, err)
	require.Len(t, badges, 16)

	byName := make(map[string]model.Badge)
	perType := make(map[model.BadgeType]int)
	for _, b := range badges {
		byName[b.Name] = b
		perType[b.Type]++
		assert.Equal(t, b.Type, b.Criteria.BadgeType(), "badge %s", b.Name)
		assert.Positive(t, b.Points, "badge %s", b.Name)
	}

	assert.Equal(t, 3, perType[model.BadgeStreak])
	assert.Equal(t, 3, perType[model.BadgeLevel])
	assert.Equal(t, 3, perType[model.BadgeCompetitive])

	assert.Equal(t, &model.StreakCriteria{TargetStreak: 7}, byName["First Steps"].Criteria)
	assert.Equal(t, &model.CategoryCriteria{Category: "health", TargetCount: 3}, byName["Health Enthusiast"].Criteria)
	assert.Equal(t, &model.ConsistencyCriteria{TargetDays: 25, WithinDays: 30}, byName["Unstoppable"].Criteria)
	assert.Equal(t,
		&model.CompetitiveCriteria{Action: model.CompetitiveMultipleWins, TargetWins: 5},
		byName["Competition Master"].Criteria)
	assert.Equal(t, model.RarityLegendary, byName["Legend"].Rarity)
}

func TestParseBadges_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown type", `
badges:
  - name: X
    type: MYSTERY
    rarity: COMMON
    criteria: {}
`},
		{"bad rarity", `
badges:
  - name: X
    type: LEVEL
    rarity: SHINY
    criteria: { targetLevel: 2 }
`},
		{"invalid criteria", `
badges:
  - name: X
    type: STREAK
    rarity: COMMON
    criteria: { targetStreak: 0 }
`},
		{"duplicate name", `
badges:
  - { name: X, type: LEVEL, rarity: COMMON, criteria: { targetLevel: 2 } }
  - { name: X, type: LEVEL, rarity: COMMON, criteria: { targetLevel: 3 } }
`},
		{"not yaml", `badges: [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBadges([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestCategories_DefaultList(t *testing.T) {
	cats, err := Categories()
	require.NoError(t, err)
	require.Len(t, cats, 11)

	assert.Equal(t, "Health", cats[0].Name)
	assert.Equal(t, "Religion", cats[10].Name)
	for _, c := range cats {
		assert.NotEmpty(t, c.Icon, "category %s", c.Name)
	}
}
