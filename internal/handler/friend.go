package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/service"
)

// FriendHandler serves friend requests and the friend list.
type FriendHandler struct {
	friends *service.FriendshipService
	logger  *slog.Logger
}

func NewFriendHandler(friends *service.FriendshipService, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, logger: logger}
}

type userIDRequest struct {
	UserID string `json:"userId"`
}

type friendAcceptedResponse struct {
	Friendship *model.Friendship `json:"friendship"`
	Rewards    []service.Rewards `json:"rewards"`
}

// HTTP: GET /api/friends
func (h *FriendHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	friends, err := h.friends.Friends(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

// HandleSendRequest asks another user to be friends.
//
// HTTP: POST /api/friends/requests
// REQUEST BODY: {"userId": "..."}
func (h *FriendHandler) HandleSendRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in userIDRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	f, err := h.friends.SendRequest(r.Context(), userID, in.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// HTTP: GET /api/friends/requests/incoming
func (h *FriendHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	requests, err := h.friends.IncomingRequests(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// HTTP: GET /api/friends/requests/outgoing
func (h *FriendHandler) HandleOutgoing(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	requests, err := h.friends.OutgoingRequests(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// HTTP: POST /api/friends/requests/{id}/accept
func (h *FriendHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f, rewards, err := h.friends.Accept(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friendAcceptedResponse{Friendship: f, Rewards: rewards})
}

// HTTP: POST /api/friends/requests/{id}/decline
func (h *FriendHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := h.friends.Decline(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HTTP: DELETE /api/friends/{friendId}
func (h *FriendHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.friends.Remove(r.Context(), userID, chi.URLParam(r, "friendId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/friends/stats
func (h *FriendHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.friends.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
