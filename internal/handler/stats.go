package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/habitquest/internal/service"
)

// StatsHandler serves the read-only summaries under /api/stats and the
// category list.
type StatsHandler struct {
	stats      *service.StatsService
	categories *service.CategoryService
	logger     *slog.Logger
}

func NewStatsHandler(stats *service.StatsService, categories *service.CategoryService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, categories: categories, logger: logger}
}

// HTTP: GET /api/stats/leaderboard
func (h *StatsHandler) HandleFriendsLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	board, err := h.stats.FriendsLeaderboard(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HTTP: GET /api/stats/me
func (h *StatsHandler) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.stats.UserStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HTTP: GET /api/stats/level
func (h *StatsHandler) HandleLevelProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	progress, err := h.stats.LevelProgress(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// HTTP: GET /api/categories
func (h *StatsHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// HTTP: POST /api/categories/seed
func (h *StatsHandler) HandleSeedCategories(w http.ResponseWriter, r *http.Request) {
	res, err := h.categories.Seed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
