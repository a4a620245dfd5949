package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"lenstracker-reminders/config"
	"lenstracker-reminders/internal/api"
	"lenstracker-reminders/internal/kv"
	"lenstracker-reminders/internal/model"
	"lenstracker-reminders/internal/notification"
	"lenstracker-reminders/internal/store"
	"lenstracker-reminders/internal/sweep"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notification.Email
}

func (m *recordingMailer) Send(_ context.Context, msg notification.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// clock is a settable time source shared by the API and the sweeps.
type clock struct{ now time.Time }

// TestReminderLifecycle drives a device from registration through two days of
// sweeps and a clear, checking the stored cycle at each step.
func TestReminderLifecycle(t *testing.T) {
	// --- Test Setup ---
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	ctx := context.Background()

	// 1. Setup an in-memory SQLite database for testing.
	testDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, testDB.AutoMigrate(&model.KVEntry{}))
	appStore := store.New(kv.NewGormStore(testDB))

	// 2. Mock push service recording every delivery.
	var (
		pushMu   sync.Mutex
		pushHits int
	)
	pushServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushMu.Lock()
		pushHits++
		pushMu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushServer.Close()

	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	pushSender := notification.NewWebPushSender(&webpush.Options{
		VAPIDPublicKey:  public,
		VAPIDPrivateKey: private,
		Subscriber:      "ops@lenstracker.test",
		TTL:             60,
	})
	mailer := &recordingMailer{}

	// 3. Wire the engine and the router.
	engine := sweep.NewEngine(appStore, pushSender, mailer, log, sweep.Options{Workers: 2})
	clk := &clock{now: time.Date(2024, 1, 9, 20, 0, 0, 0, time.UTC)}
	sweeper := sweeperFunc(func(ctx context.Context, _ time.Time) (sweep.Stats, error) {
		return engine.RunSweep(ctx, clk.now)
	})
	handler := api.NewHandler(appStore, sweeper, pushSender, public, "/", log)
	router := api.NewRouter(handler, config.ServerConfig{RateLimitPerSec: 100, RateLimitBurst: 100}, "secret")

	call := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Admin-Secret", "secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
	runSweep := func(at time.Time) sweep.Stats {
		clk.now = at
		w := call(http.MethodPost, "/admin/sweep", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp struct {
			Stats sweep.Stats `json:"stats"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Stats
	}
	storedCycle := func() model.Cycle {
		c, err := appStore.GetCycle(ctx, "device-1", model.EyeRight)
		require.NoError(t, err)
		return c
	}

	// --- Test Execution & Assertions ---

	// Step 1: register the device and start a cycle due at midnight.
	w := call(http.MethodPost, "/push/register", map[string]any{
		"deviceId":     "device-1",
		"subscription": browserSubscription(t, pushServer.URL+"/push/device-1"),
		"email":        "wearer@lenstracker.test",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = call(http.MethodPost, "/cycle/upsert", map[string]string{
		"deviceId": "device-1",
		"eye":      "RIGHT",
		"dueAt":    "2024-01-10T00:00:00.000Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Step 2: before dueAt nothing happens.
	stats := runSweep(time.Date(2024, 1, 9, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, sweep.Stats{Total: 1}, stats)
	assert.Zero(t, storedCycle().SentCount)

	// Step 3: just after dueAt, one push and the due-today email.
	first := time.Date(2024, 1, 10, 0, 0, 1, 0, time.UTC)
	stats = runSweep(first)
	assert.Equal(t, sweep.Stats{Total: 1, DueOrOverdue: 1, Eligible: 1, Sent: 1, Emailed: 1}, stats)
	c := storedCycle()
	assert.Equal(t, 1, c.SentCount)
	require.NotNil(t, c.LastSentAt)
	assert.True(t, first.Equal(*c.LastSentAt))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Lens Replacement Reminder: RIGHT Eye", mailer.sent[0].Subject)

	// Step 4: later the same day, nothing new.
	stats = runSweep(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, sweep.Stats{Total: 1, DueOrOverdue: 1}, stats)

	// Step 5: the next day the second nag goes out, but no email.
	stats = runSweep(time.Date(2024, 1, 11, 1, 0, 0, 0, time.UTC))
	assert.Equal(t, sweep.Stats{Total: 1, DueOrOverdue: 1, Eligible: 1, Sent: 1}, stats)
	assert.Equal(t, 2, storedCycle().SentCount)
	assert.Len(t, mailer.sent, 1)

	pushMu.Lock()
	assert.Equal(t, 2, pushHits)
	pushMu.Unlock()

	// Step 6: a new due date resets the cycle.
	w = call(http.MethodPost, "/cycle/upsert", map[string]string{
		"deviceId": "device-1",
		"eye":      "RIGHT",
		"dueAt":    "2024-02-10T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code)
	c = storedCycle()
	assert.Zero(t, c.SentCount)
	assert.Nil(t, c.LastSentAt)
	assert.Nil(t, c.LastEmailSentAt)

	// Step 7: clearing removes it from future sweeps.
	w = call(http.MethodPost, "/cycle/clear", map[string]string{"deviceId": "device-1", "eye": "RIGHT"})
	require.Equal(t, http.StatusOK, w.Code)
	stats = runSweep(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, sweep.Stats{}, stats)
}

type sweeperFunc func(ctx context.Context, now time.Time) (sweep.Stats, error)

func (f sweeperFunc) RunSweep(ctx context.Context, now time.Time) (sweep.Stats, error) {
	return f(ctx, now)
}

// browserSubscription builds a descriptor with real P-256 keys so payload
// encryption succeeds.
func browserSubscription(t *testing.T, endpoint string) map[string]any {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return map[string]any{
		"endpoint": endpoint,
		"keys": map[string]string{
			"p256dh": base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			"auth":   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
}
