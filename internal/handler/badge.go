package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/gamify"
	"github.com/sakif/habitquest/internal/service"
)

// BadgeHandler serves the badge catalog and the caller's badges.
type BadgeHandler struct {
	badges *service.BadgeService
	logger *slog.Logger
}

func NewBadgeHandler(badges *service.BadgeService, logger *slog.Logger) *BadgeHandler {
	return &BadgeHandler{badges: badges, logger: logger}
}

type checkRequest struct {
	Trigger string `json:"trigger"`
}

// clientTriggers are the triggers a client may ask for. The competitive
// ones only fire from the operation that earns them.
var clientTriggers = map[gamify.Trigger]bool{
	gamify.TriggerHabitCompletion: true,
	gamify.TriggerLevelUp:         true,
	gamify.TriggerHabitCreated:    true,
	gamify.TriggerFriendAdded:     true,
}

// HTTP: GET /api/badges
func (h *BadgeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	badges, err := h.badges.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

// HTTP: GET /api/badges/mine
func (h *BadgeHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	earned, err := h.badges.Earned(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, earned)
}

// HTTP: GET /api/badges/progress
func (h *BadgeHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	progress, err := h.badges.Progress(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// HandleCheck re-evaluates the caller's badges on demand.
//
// HTTP: POST /api/badges/check
// REQUEST BODY (optional): {"trigger": "habit_completion"}
//
// Without a trigger the habit_completion and level_up rules run, which
// covers every badge that does not depend on a one-off event.
func (h *BadgeHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in checkRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	triggers := []gamify.Trigger{gamify.TriggerHabitCompletion, gamify.TriggerLevelUp}
	if in.Trigger != "" {
		t, err := gamify.ParseTrigger(in.Trigger)
		if err != nil || !clientTriggers[t] {
			writeError(w, apperror.ValidationFailed("trigger", "unsupported trigger "+in.Trigger))
			return
		}
		triggers = []gamify.Trigger{t}
	}

	award, err := h.badges.Check(r.Context(), userID, triggers...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

// HandleSeed installs the default badge catalog. Running it again only
// reports the badges as existing.
//
// HTTP: POST /api/badges/seed
func (h *BadgeHandler) HandleSeed(w http.ResponseWriter, r *http.Request) {
	res, err := h.badges.Seed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
