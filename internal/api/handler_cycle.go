package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lenstracker-reminders/internal/model"
	"lenstracker-reminders/internal/store"
)

type upsertCycleRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	Eye      string `json:"eye" binding:"required,oneof=LEFT RIGHT"`
	DueAt    string `json:"dueAt" binding:"required"`
}

type cycleRefRequest struct {
	DeviceID string `json:"deviceId" form:"deviceId" binding:"required"`
	Eye      string `json:"eye" form:"eye" binding:"required,oneof=LEFT RIGHT"`
}

// dueAtLayouts are the ISO-8601 shapes accepted for dueAt. Values without a
// zone are read as UTC.
var dueAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

func parseDueAt(s string) (time.Time, error) {
	for _, layout := range dueAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("dueAt %q is not an ISO-8601 timestamp", s)
}

// UpsertCycle starts a new wear cycle for (deviceId, eye), replacing any
// existing one.
func (h *Handler) UpsertCycle(c *gin.Context) {
	var req upsertCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId, eye (LEFT|RIGHT) and dueAt are required"})
		return
	}
	dueAt, err := parseDueAt(req.DueAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cycle, err := h.store.UpsertCycle(c.Request.Context(), req.DeviceID, model.Eye(req.Eye), dueAt, h.now())
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{"device": req.DeviceID, "eye": req.Eye}).Error("Failed to upsert cycle")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "cycle": cycle})
}

// ClearCycle deletes the wear cycle for (deviceId, eye). Clearing a missing
// cycle succeeds.
func (h *Handler) ClearCycle(c *gin.Context) {
	var req cycleRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId and eye (LEFT|RIGHT) are required"})
		return
	}

	if err := h.store.ClearCycle(c.Request.Context(), req.DeviceID, model.Eye(req.Eye)); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{"device": req.DeviceID, "eye": req.Eye}).Error("Failed to clear cycle")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetCycle returns the stored wear cycle for (deviceId, eye).
func (h *Handler) GetCycle(c *gin.Context) {
	var req cycleRefRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId and eye (LEFT|RIGHT) are required"})
		return
	}

	cycle, err := h.store.GetCycle(c.Request.Context(), req.DeviceID, model.Eye(req.Eye))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cycle not found"})
	case err != nil:
		h.log.WithError(err).WithFields(logrus.Fields{"device": req.DeviceID, "eye": req.Eye}).Error("Failed to load cycle")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, cycle)
	}
}
