package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/gamify"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// FriendshipService manages friend requests between users.
type FriendshipService struct {
	store  repository.Store
	badges *BadgeService
	logger *slog.Logger
}

func NewFriendshipService(store repository.Store, badges *BadgeService, logger *slog.Logger) *FriendshipService {
	return &FriendshipService{
		store:  store,
		badges: badges,
		logger: logger,
	}
}

// FriendRequest is a pending friendship with the user on the other side.
type FriendRequest struct {
	model.Friendship
	User *model.PublicUser `json:"user"`
}

type FriendStats struct {
	TotalFriends    int `json:"totalFriends"`
	PendingIncoming int `json:"pendingIncoming"`
	PendingOutgoing int `json:"pendingOutgoing"`
}

// SendRequest asks toID to become fromID's friend. A previously declined
// request between the two is reopened with fromID as the requester.
func (s *FriendshipService) SendRequest(ctx context.Context, fromID, toID string) (*model.Friendship, error) {
	toID = strings.TrimSpace(toID)
	if toID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	if toID == fromID {
		return nil, apperror.ValidationFailed("userId", "you cannot send a friend request to yourself")
	}

	var f *model.Friendship
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Users().GetByID(ctx, toID); err != nil {
			return err
		}

		existing, err := tx.Friendships().FindBetween(ctx, fromID, toID)
		switch {
		case err == nil:
			switch existing.Status {
			case model.FriendshipPending:
				return apperror.ConflictMsg("a friend request between these users is already pending")
			case model.FriendshipAccepted:
				return apperror.ConflictMsg("you are already friends")
			}
			existing.UserID = fromID
			existing.FriendID = toID
			existing.Status = model.FriendshipPending
			f = existing
			return tx.Friendships().Update(ctx, f)
		case errors.Is(err, apperror.ErrNotFound):
		default:
			return fmt.Errorf("looking up friendship: %w", err)
		}

		f = &model.Friendship{
			UserID:   fromID,
			FriendID: toID,
			Status:   model.FriendshipPending,
		}
		return tx.Friendships().Create(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("friend request sent",
		slog.String("from", fromID),
		slog.String("to", toID),
	)
	return f, nil
}

// Accept turns a pending request addressed to userID into a friendship and
// evaluates friend_added badges for both sides.
func (s *FriendshipService) Accept(ctx context.Context, userID, requestID string) (*model.Friendship, []Rewards, error) {
	f, err := s.answer(ctx, userID, requestID, model.FriendshipAccepted)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("friend request accepted", slog.String("id", f.ID))

	rewards := []Rewards{
		s.badges.Evaluate(ctx, f.FriendID, gamify.TriggerFriendAdded),
		s.badges.Evaluate(ctx, f.UserID, gamify.TriggerFriendAdded),
	}
	return f, rewards, nil
}

func (s *FriendshipService) Decline(ctx context.Context, userID, requestID string) (*model.Friendship, error) {
	f, err := s.answer(ctx, userID, requestID, model.FriendshipDeclined)
	if err != nil {
		return nil, err
	}
	s.logger.Info("friend request declined", slog.String("id", f.ID))
	return f, nil
}

// answer settles a pending request. Only its recipient may answer it.
func (s *FriendshipService) answer(ctx context.Context, userID, requestID string, status model.FriendshipStatus) (*model.Friendship, error) {
	var f *model.Friendship
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		f, err = tx.Friendships().GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if f.FriendID != userID {
			if f.UserID == userID {
				return apperror.Forbidden("only the recipient can answer a friend request")
			}
			return apperror.NotFound("friend request", requestID)
		}
		if f.Status != model.FriendshipPending {
			return apperror.ConflictMsg("friend request has already been answered")
		}
		f.Status = status
		return tx.Friendships().Update(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Friends lists userID's accepted friends, highest XP first.
func (s *FriendshipService) Friends(ctx context.Context, userID string) ([]model.PublicUser, error) {
	friendships, err := s.store.Friendships().ListForUser(ctx, userID, model.FriendshipAccepted)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	ids := make([]string, len(friendships))
	for i := range friendships {
		ids[i] = friendships[i].Other(userID)
	}
	users, err := s.store.Users().ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading friends: %w", err)
	}
	out := make([]model.PublicUser, len(users))
	for i := range users {
		out[i] = users[i].Public()
	}
	return out, nil
}

// IncomingRequests lists pending requests sent to userID.
func (s *FriendshipService) IncomingRequests(ctx context.Context, userID string) ([]FriendRequest, error) {
	return s.pending(ctx, userID, func(f model.Friendship) bool { return f.FriendID == userID })
}

// OutgoingRequests lists pending requests userID sent.
func (s *FriendshipService) OutgoingRequests(ctx context.Context, userID string) ([]FriendRequest, error) {
	return s.pending(ctx, userID, func(f model.Friendship) bool { return f.UserID == userID })
}

func (s *FriendshipService) pending(ctx context.Context, userID string, keep func(model.Friendship) bool) ([]FriendRequest, error) {
	friendships, err := s.store.Friendships().ListForUser(ctx, userID, model.FriendshipPending)
	if err != nil {
		return nil, fmt.Errorf("listing friend requests: %w", err)
	}

	var ids []string
	var kept []model.Friendship
	for _, f := range friendships {
		if keep(f) {
			kept = append(kept, f)
			ids = append(ids, f.Other(userID))
		}
	}
	users, err := publicUsers(ctx, s.store, ids)
	if err != nil {
		return nil, err
	}

	out := make([]FriendRequest, len(kept))
	for i, f := range kept {
		out[i] = FriendRequest{Friendship: f, User: users[f.Other(userID)]}
	}
	return out, nil
}

// Remove ends the accepted friendship between userID and friendID.
func (s *FriendshipService) Remove(ctx context.Context, userID, friendID string) error {
	f, err := s.store.Friendships().FindBetween(ctx, userID, friendID)
	if err != nil {
		return err
	}
	if f.Status != model.FriendshipAccepted {
		return apperror.NotFound("friend", friendID)
	}
	if err := s.store.Friendships().Delete(ctx, f.ID); err != nil {
		return err
	}

	s.logger.Info("friend removed",
		slog.String("userID", userID),
		slog.String("friendID", friendID),
	)
	return nil
}

func (s *FriendshipService) Stats(ctx context.Context, userID string) (*FriendStats, error) {
	total, err := s.store.Friendships().CountAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting friends: %w", err)
	}
	pending, err := s.store.Friendships().ListForUser(ctx, userID, model.FriendshipPending)
	if err != nil {
		return nil, fmt.Errorf("listing friend requests: %w", err)
	}

	stats := &FriendStats{TotalFriends: total}
	for _, f := range pending {
		if f.FriendID == userID {
			stats.PendingIncoming++
		} else {
			stats.PendingOutgoing++
		}
	}
	return stats, nil
}
