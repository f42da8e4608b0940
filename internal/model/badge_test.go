package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCriteria(t *testing.T) {
	c, err := DecodeCriteria(BadgeCategory, []byte(`{"category":"health","targetCount":3}`))
	require.NoError(t, err)

	cat, ok := c.(*CategoryCriteria)
	require.True(t, ok, "expected *CategoryCriteria, got %T", c)
	assert.Equal(t, "health", cat.Category)
	assert.Equal(t, 3, cat.TargetCount)
	assert.Equal(t, BadgeCategory, c.BadgeType())
}

func TestDecodeCriteria_Rejects(t *testing.T) {
	tests := []struct {
		name string
		typ  BadgeType
		raw  string
	}{
		{"unknown type", BadgeType("MYSTERY"), `{}`},
		{"malformed json", BadgeStreak, `{"targetStreak":`},
		{"zero target", BadgeStreak, `{"targetStreak":0}`},
		{"unknown social action", BadgeSocial, `{"action":"poke","targetCount":1}`},
		{"window smaller than target", BadgeConsistency, `{"targetDays":10,"withinDays":5}`},
		{"multiple wins without target", BadgeCompetitive, `{"action":"multiple_wins"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCriteria(tt.typ, []byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestEncodeCriteria_MatchesDecode(t *testing.T) {
	raw, err := EncodeCriteria(&CompetitiveCriteria{Action: CompetitiveMultipleWins, TargetWins: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"multiple_wins","targetWins":5}`, string(raw))

	_, err = EncodeCriteria(nil)
	assert.Error(t, err)
}

func TestFriendshipOther(t *testing.T) {
	f := &Friendship{UserID: "alice", FriendID: "bob"}

	assert.Equal(t, "bob", f.Other("alice"))
	assert.Equal(t, "alice", f.Other("bob"))
	assert.True(t, f.Involves("bob"))
	assert.False(t, f.Involves("carol"))
}
