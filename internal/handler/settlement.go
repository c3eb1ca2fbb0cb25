package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"homeworkpoints/internal/repository"
	"homeworkpoints/internal/service"
)

// SettlementHandler exposes the settle/cancel state transitions, pool reads,
// and the auto-trigger admin surface.
type SettlementHandler struct {
	Settlement *service.SettlementService
	AutoSettle *service.AutoSettleService
}

func (h *SettlementHandler) Register(r *gin.Engine) {
	pools := r.Group("/api/v1/prize-pool")
	pools.GET("", h.listPools)
	pools.GET("/:yearMonth", h.getPool)

	g := r.Group("/api/v1/settlement")
	g.POST("/:yearMonth/settle", h.settle)
	g.POST("/:yearMonth/cancel", h.cancel)
	g.GET("/:yearMonth/result", h.result)
	g.GET("/auto-config", h.getAutoConfig)
	g.PUT("/auto-config", h.putAutoConfig)
	g.GET("/auto-status", h.autoStatus)
}

func (h *SettlementHandler) getPool(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	pool, err := h.Settlement.GetOrCreatePool(c.Request.Context(), c.Param("yearMonth"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, pool, nil)
}

func (h *SettlementHandler) listPools(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	params := repository.ListPoolsParams{
		Limit:  intQuery(c, "limit", 24),
		Offset: intQuery(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("is_settled")); v != "" {
		if settled, err := strconv.ParseBool(v); err == nil {
			params.IsSettled = &settled
		}
	}
	items, err := h.Settlement.ListPools(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

func (h *SettlementHandler) settle(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Settlement.Settle(c.Request.Context(), c.Param("yearMonth"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, result, nil)
}

func (h *SettlementHandler) cancel(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	summary, err := h.Settlement.Cancel(c.Request.Context(), c.Param("yearMonth"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, summary, nil)
}

func (h *SettlementHandler) result(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Settlement.GetSettlementResult(c.Request.Context(), c.Param("yearMonth"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, result, nil)
}

func (h *SettlementHandler) getAutoConfig(c *gin.Context) {
	if h.AutoSettle == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	cfg, err := h.AutoSettle.GetConfig(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, cfg, nil)
}

func (h *SettlementHandler) putAutoConfig(c *gin.Context) {
	if h.AutoSettle == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var input service.AutoSettleConfigInput
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	cfg, err := h.AutoSettle.UpdateConfig(c.Request.Context(), input)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, cfg, nil)
}

func (h *SettlementHandler) autoStatus(c *gin.Context) {
	if h.AutoSettle == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	status, err := h.AutoSettle.Status(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, status, nil)
}
