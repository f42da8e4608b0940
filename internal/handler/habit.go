package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/service"
)

// HabitHandler serves the personal habit endpoints under /api/habits.
type HabitHandler struct {
	habits *service.HabitService
	logger *slog.Logger
}

func NewHabitHandler(habits *service.HabitService, logger *slog.Logger) *HabitHandler {
	return &HabitHandler{habits: habits, logger: logger}
}

// habitCreatedResponse carries the new habit and any badge it unlocked.
type habitCreatedResponse struct {
	Habit   *model.Habit    `json:"habit"`
	Rewards service.Rewards `json:"rewards"`
}

type completeRequest struct {
	Notes string `json:"notes"`
}

// HandleList returns the caller's habits.
//
// HTTP: GET /api/habits
func (h *HabitHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	habits, err := h.habits.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

// HandleCreate adds a habit.
//
// HTTP: POST /api/habits
// REQUEST BODY: {"title": "Read", "recurrenceMask": 62, "points": 10, "difficulty": 2, "category": "Learning"}
func (h *HabitHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.CreateHabitInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	habit, rewards, err := h.habits.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, habitCreatedResponse{Habit: habit, Rewards: rewards})
}

// HandleGet returns one habit.
//
// HTTP: GET /api/habits/{id}
func (h *HabitHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	habit, err := h.habits.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// HandleUpdate applies a partial update.
//
// HTTP: PATCH /api/habits/{id} (PUT is accepted too)
func (h *HabitHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.UpdateHabitInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	habit, err := h.habits.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// HandleDelete removes a habit with its history.
//
// HTTP: DELETE /api/habits/{id}
func (h *HabitHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.habits.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleComplete records today's completion.
//
// HTTP: POST /api/habits/{id}/complete
// REQUEST BODY (optional): {"notes": "..."}
//
// A second completion on the same day is a 409. The response carries the
// streak, the XP result and the badges the completion unlocked.
func (h *HabitHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.habits.Complete(r.Context(), userID, chi.URLParam(r, "id"), in.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HTTP: GET /api/habits/{id}/streak
func (h *HabitHandler) HandleStreak(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := h.habits.Streak(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HTTP: GET /api/habits/streaks/total
func (h *HabitHandler) HandleTotalStreaks(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	totals, err := h.habits.TotalStreaks(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// HandleCompletions lists a habit's completions, optionally between two days.
//
// HTTP: GET /api/habits/{id}/completions?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *HabitHandler) HandleCompletions(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	completions, err := h.habits.Completions(r.Context(), userID, chi.URLParam(r, "id"), q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completions)
}

// HTTP: GET /api/habits/stats/completion?days=30
func (h *HabitHandler) HandleCompletionStats(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.habits.CompletionStats(r.Context(), userID, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HTTP: GET /api/habits/calendar/{year}/{month}
func (h *HabitHandler) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	year, err := pathInt(r, "year")
	if err != nil {
		writeError(w, err)
		return
	}
	month, err := pathInt(r, "month")
	if err != nil {
		writeError(w, err)
		return
	}

	cal, err := h.habits.Calendar(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}
