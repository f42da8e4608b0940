package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
)

func TestFriendSendRequest_Validation(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	ctx := context.Background()

	_, err := s.friends.SendRequest(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = s.friends.SendRequest(ctx, alice.ID, "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = s.friends.SendRequest(ctx, alice.ID, "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestFriendSendRequest_DuplicatesConflict(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	ctx := context.Background()

	f, err := s.friends.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendshipPending, f.Status)

	// Either direction counts as the same pair.
	_, err = s.friends.SendRequest(ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, _, err = s.friends.Accept(ctx, bob.ID, f.ID)
	require.NoError(t, err)

	_, err = s.friends.SendRequest(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestFriendSendRequest_ReopensDeclined(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	ctx := context.Background()

	f, err := s.friends.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = s.friends.Decline(ctx, bob.ID, f.ID)
	require.NoError(t, err)

	again, err := s.friends.SendRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, f.ID, again.ID)
	assert.Equal(t, bob.ID, again.UserID)
	assert.Equal(t, alice.ID, again.FriendID)
	assert.Equal(t, model.FriendshipPending, again.Status)
}

func TestFriendAnswer_OnlyRecipient(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	carol := createUser(t, s.store, "carol")
	ctx := context.Background()

	f, err := s.friends.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, _, err = s.friends.Accept(ctx, alice.ID, f.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = s.friends.Decline(ctx, carol.ID, f.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = s.friends.Decline(ctx, bob.ID, f.ID)
	require.NoError(t, err)

	_, _, err = s.friends.Accept(ctx, bob.ID, f.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestFriendAccept_EvaluatesSocialBadgesForBoth(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	addBadge(t, s.store, "Buddy", &model.SocialCriteria{Action: model.SocialAddFriend, TargetCount: 1}, 10)
	ctx := context.Background()

	f, err := s.friends.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	accepted, rewards, err := s.friends.Accept(ctx, bob.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendshipAccepted, accepted.Status)

	require.Len(t, rewards, 2)
	for _, r := range rewards {
		assert.Equal(t, RewardsApplied, r.Status)
		require.Len(t, r.Badges, 1)
		assert.Equal(t, "Buddy", r.Badges[0].Name)
	}

	for _, id := range []string{alice.ID, bob.ID} {
		u, err := s.store.Users().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 10, u.XPPoints)
	}
}

func TestFriendListsAndStats(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	carol := createUser(t, s.store, "carol")
	dave := createUser(t, s.store, "dave")
	ctx := context.Background()

	befriend(t, s, alice.ID, bob.ID)
	_, err := s.friends.SendRequest(ctx, carol.ID, alice.ID)
	require.NoError(t, err)
	_, err = s.friends.SendRequest(ctx, alice.ID, dave.ID)
	require.NoError(t, err)

	friends, err := s.friends.Friends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].Username)

	incoming, err := s.friends.IncomingRequests(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.NotNil(t, incoming[0].User)
	assert.Equal(t, "carol", incoming[0].User.Username)

	outgoing, err := s.friends.OutgoingRequests(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "dave", outgoing[0].User.Username)

	stats, err := s.friends.Stats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, FriendStats{TotalFriends: 1, PendingIncoming: 1, PendingOutgoing: 1}, *stats)
}

func TestFriendRemove(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	carol := createUser(t, s.store, "carol")
	ctx := context.Background()

	befriend(t, s, alice.ID, bob.ID)
	_, err := s.friends.SendRequest(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	// A pending request is not a friendship.
	err = s.friends.Remove(ctx, alice.ID, carol.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, s.friends.Remove(ctx, bob.ID, alice.ID))

	n, err := s.store.Friendships().CountAccepted(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = s.friends.Remove(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
