package api

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"lenstracker-reminders/internal/notification"
	"lenstracker-reminders/internal/store"
	"lenstracker-reminders/internal/sweep"
)

// Sweeper runs one reminder sweep on demand.
type Sweeper interface {
	RunSweep(ctx context.Context, now time.Time) (sweep.Stats, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          store.Store
	sweeper        Sweeper
	push           notification.PushSender
	vapidPublicKey string
	clickURL       string
	log            logrus.FieldLogger
	now            func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, sweeper Sweeper, push notification.PushSender, vapidPublicKey, clickURL string, log logrus.FieldLogger) *Handler {
	if clickURL == "" {
		clickURL = "/"
	}
	return &Handler{
		store:          s,
		sweeper:        sweeper,
		push:           push,
		vapidPublicKey: vapidPublicKey,
		clickURL:       clickURL,
		log:            log,
		now:            time.Now,
	}
}
