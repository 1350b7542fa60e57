package v1

import (
	"context"
	"net/http"
	"strconv"

	"airmonitor/internal/domain/entity"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type AlertUseCase interface {
	Scan(ctx context.Context) (*entity.ScanResult, error)
	History(ctx context.Context, limit int) ([]entity.AlertRecord, error)
}

type AlertHandler struct {
	UseCase AlertUseCase
}

func NewAlertHandler(u AlertUseCase) *AlertHandler {
	return &AlertHandler{UseCase: u}
}

// GetAlert scans the logs that arrived since the previous call.
func (h *AlertHandler) GetAlert(c *gin.Context) {
	result, err := h.UseCase.Scan(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetHistory lists recorded violations, newest first.
func (h *AlertHandler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	alerts, err := h.UseCase.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// Register mounts the alert routes at the root and under /api/v1.
func (h *AlertHandler) Register(r gin.IRouter, mw ...gin.HandlerFunc) {
	r.GET("/", append(mw, h.GetAlert)...)

	v1Group := r.Group("/api/v1", mw...)
	{
		v1Group.GET("/alert", h.GetAlert)
		v1Group.GET("/alerts", h.GetHistory)
	}
}
