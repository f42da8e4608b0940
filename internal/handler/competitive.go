package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/service"
)

// CompetitiveHandler serves competitive habits under /api/competitive.
type CompetitiveHandler struct {
	competitive *service.CompetitiveService
	logger      *slog.Logger
}

func NewCompetitiveHandler(competitive *service.CompetitiveService, logger *slog.Logger) *CompetitiveHandler {
	return &CompetitiveHandler{competitive: competitive, logger: logger}
}

type competitiveCreatedResponse struct {
	Habit   *service.CompetitiveHabit `json:"habit"`
	Rewards service.Rewards           `json:"rewards"`
}

type invitationAcceptedResponse struct {
	Participant *model.HabitParticipant `json:"participant"`
	Rewards     service.Rewards         `json:"rewards"`
}

// HandleCreate starts a competitive habit owned by the caller.
//
// HTTP: POST /api/competitive
// REQUEST BODY: {"title": "...", "recurrenceMask": 127, "points": 10, "maxParticipants": 5}
func (h *CompetitiveHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.CreateCompetitiveInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	habit, rewards, err := h.competitive.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, competitiveCreatedResponse{Habit: habit, Rewards: rewards})
}

// HTTP: GET /api/competitive
func (h *CompetitiveHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	habits, err := h.competitive.MyHabits(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

// HTTP: GET /api/competitive/invitations
func (h *CompetitiveHandler) HandleInvitations(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	invitations, err := h.competitive.PendingInvitations(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invitations)
}

// HTTP: POST /api/competitive/invitations/{id}/accept
func (h *CompetitiveHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, rewards, err := h.competitive.Accept(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invitationAcceptedResponse{Participant: p, Rewards: rewards})
}

// HTTP: POST /api/competitive/invitations/{id}/decline
func (h *CompetitiveHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.competitive.Decline(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleInvite invites one of the owner's friends.
//
// HTTP: POST /api/competitive/{id}/invite
// REQUEST BODY: {"userId": "..."}
func (h *CompetitiveHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
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

	p, err := h.competitive.Invite(r.Context(), userID, chi.URLParam(r, "id"), in.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HTTP: DELETE /api/competitive/{id}/participants/{participantId}
func (h *CompetitiveHandler) HandleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.competitive.RemoveParticipant(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "participantId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HTTP: GET /api/competitive/{id}/leaderboard
func (h *CompetitiveHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	board, err := h.competitive.Leaderboard(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HTTP: POST /api/competitive/{id}/complete
func (h *CompetitiveHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in completeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.competitive.Complete(r.Context(), userID, chi.URLParam(r, "id"), in.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HTTP: GET /api/competitive/{id}/winner
func (h *CompetitiveHandler) HandleWinner(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	check, err := h.competitive.CheckWinner(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// HTTP: GET /api/competitive/progress
func (h *CompetitiveHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	progress, err := h.competitive.Progress(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
