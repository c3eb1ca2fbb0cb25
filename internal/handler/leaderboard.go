package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"homeworkpoints/internal/service"
)

type LeaderboardHandler struct {
	Service *service.LeaderboardService
}

func (h *LeaderboardHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/leaderboard")
	g.GET("/all-time", h.allTime)
	g.GET("/:yearMonth", h.monthly)
}

func (h *LeaderboardHandler) monthly(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	board, err := h.Service.GetLeaderboard(c.Request.Context(), c.Param("yearMonth"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, board, nil)
}

func (h *LeaderboardHandler) allTime(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	page := intQuery(c, "page", 1)
	if page <= 0 {
		page = 1
	}
	limit := intQuery(c, "limit", 20)
	if limit <= 0 {
		limit = 20
	}
	rows, total, err := h.Service.GetAllTimeRanking(c.Request.Context(), c.Query("search"), page, limit)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, rows, paginationMeta(limit, (page-1)*limit, total))
}
