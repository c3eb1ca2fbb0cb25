package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"homeworkpoints/internal/repository"
	"homeworkpoints/internal/service"
)

// PointsHandler is the write surface for the submission-approval collaborator
// plus the admin ledger view.
type PointsHandler struct {
	Service *service.PointsService
}

func (h *PointsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/points")
	g.POST("", h.record)
	g.GET("/history", h.history)
}

func (h *PointsHandler) record(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var input service.RecordPointsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Service.RecordPoints(c.Request.Context(), input); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

func (h *PointsHandler) history(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListPointsHistoryParams{
		Limit:  limit,
		Offset: offset,
	}
	if v := strings.TrimSpace(c.Query("year_month")); v != "" {
		params.YearMonth = &v
	}
	if v := strings.TrimSpace(c.Query("nickname")); v != "" {
		params.Nickname = &v
	}
	items, total, err := h.Service.ListHistory(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
