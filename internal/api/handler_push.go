package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lenstracker-reminders/internal/model"
	"lenstracker-reminders/internal/notification"
	"lenstracker-reminders/internal/store"
)

type registerRequest struct {
	DeviceID     string          `json:"deviceId" binding:"required"`
	Subscription json.RawMessage `json:"subscription" binding:"required"`
	Email        string          `json:"email" binding:"omitempty,email"`
}

// RegisterPush stores or replaces the push subscription (and optional email)
// for a device.
func (h *Handler) RegisterPush(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sub := model.Subscription{Subscription: req.Subscription, Email: req.Email}
	if sub.Endpoint() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription.endpoint is required"})
		return
	}

	if err := h.store.PutSubscription(c.Request.Context(), req.DeviceID, sub); err != nil {
		h.log.WithError(err).WithField("device", req.DeviceID).Error("Failed to store subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type testPushRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// TestPush sends a single push to a device so users can verify delivery.
func (h *Handler) TestPush(c *gin.Context) {
	var req testPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}

	ctx := c.Request.Context()
	sub, err := h.store.GetSubscription(ctx, req.DeviceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no subscription for deviceId"})
		return
	case err != nil:
		h.log.WithError(err).WithField("device", req.DeviceID).Error("Failed to load subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	payload, err := notification.ManualPush(req.Title, req.Body, h.clickURL).Marshal()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := h.push.Send(ctx, sub.Subscription, payload); err != nil {
		entry := h.log.WithError(err).WithField("device", req.DeviceID)
		if errors.Is(err, notification.ErrSubscriptionGone) {
			entry.Warn("Test push rejected: subscription gone")
			c.JSON(http.StatusGone, gin.H{"ok": false, "error": "subscription is no longer valid"})
			return
		}
		entry.Error("Test push failed")
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "push delivery failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
