package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lenstracker-reminders/internal/sweep"
)

// RunSweep triggers a sweep synchronously and returns its statistics.
// Authorization is enforced by mw.AdminAuth on the route.
func (h *Handler) RunSweep(c *gin.Context) {
	stats, err := h.sweeper.RunSweep(c.Request.Context(), h.now())
	switch {
	case errors.Is(err, sweep.ErrSweepInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "sweep already in progress"})
	case err != nil:
		h.log.WithError(err).Error("Manual sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true, "stats": stats})
	}
}
