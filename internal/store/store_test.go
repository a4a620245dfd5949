package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lenstracker-reminders/internal/kv"
	"lenstracker-reminders/internal/model"
)

func newTestStore(t *testing.T) (*kvStore, kv.Store) {
	t.Helper()
	backend := kv.NewMemoryStore()
	s := New(backend).(*kvStore)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("cycle-%d", n)
	}
	return s, backend
}

func TestUpsertCycle_ReplacesPriorCycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	first, err := s.UpsertCycle(ctx, "dev-1", model.EyeLeft, due, now)
	require.NoError(t, err)

	// Simulate a sweep having nagged this cycle.
	sent := due.Add(time.Hour)
	first.SentCount = 3
	first.LastSentAt = &sent
	first.LastEmailSentAt = &sent
	require.NoError(t, s.PutCycleByKey(ctx, CycleKey("dev-1", model.EyeLeft), first))

	newDue := time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC)
	second, err := s.UpsertCycle(ctx, "dev-1", model.EyeLeft, newDue, now.Add(24*time.Hour))
	require.NoError(t, err)

	got, err := s.GetCycle(ctx, "dev-1", model.EyeLeft)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.NotEqual(t, first.CycleID, got.CycleID)
	assert.Zero(t, got.SentCount)
	assert.Nil(t, got.LastSentAt)
	assert.Nil(t, got.LastEmailSentAt)
	assert.True(t, newDue.Equal(got.DueAt))
}

func TestUpsertCycle_NormalizesToUTC(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	loc := time.FixedZone("UTC+2", 2*60*60)
	due := time.Date(2024, 1, 10, 2, 0, 0, 0, loc)
	_, err := s.UpsertCycle(ctx, "dev-1", model.EyeRight, due, due)
	require.NoError(t, err)

	raw, err := backend.Get(ctx, "cycle:dev-1:RIGHT")
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &fields))
	assert.Equal(t, "2024-01-10T00:00:00Z", fields["dueAt"])
	assert.Equal(t, "RIGHT", fields["eye"])
	assert.EqualValues(t, 0, fields["sentCount"])
	assert.NotContains(t, fields, "lastSentAt")
}

func TestClearCycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.UpsertCycle(ctx, "dev-1", model.EyeLeft, time.Now(), time.Now())
	require.NoError(t, err)
	require.NoError(t, s.ClearCycle(ctx, "dev-1", model.EyeLeft))

	_, err = s.GetCycle(ctx, "dev-1", model.EyeLeft)
	assert.ErrorIs(t, err, ErrNotFound)

	// Clearing twice is fine.
	assert.NoError(t, s.ClearCycle(ctx, "dev-1", model.EyeLeft))
}

func TestGetCycleByKey_Malformed(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	testCases := map[string]string{
		"not json":     `{{`,
		"missing due":  `{"cycleId":"x","eye":"LEFT","sentCount":0}`,
		"bad eye":      `{"cycleId":"x","eye":"MIDDLE","dueAt":"2024-01-10T00:00:00Z"}`,
		"negative":     `{"cycleId":"x","eye":"LEFT","dueAt":"2024-01-10T00:00:00Z","sentCount":-1}`,
		"bad due date": `{"cycleId":"x","eye":"LEFT","dueAt":"tomorrow"}`,
	}
	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, backend.Put(ctx, "cycle:dev:LEFT", raw))
			_, err := s.GetCycleByKey(ctx, "cycle:dev:LEFT")
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestGetCycleByKey_AcceptsClientTimestamps(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	// Millisecond precision as produced by browsers' toISOString.
	require.NoError(t, backend.Put(ctx, "cycle:dev:LEFT",
		`{"cycleId":"x","eye":"LEFT","dueAt":"2024-01-10T00:00:00.000Z","createdAt":"2024-01-01T00:00:00.000Z","sentCount":2,"lastSentAt":"2024-01-11T01:00:00.000Z"}`))

	c, err := s.GetCycleByKey(ctx, "cycle:dev:LEFT")
	require.NoError(t, err)
	assert.Equal(t, 2, c.SentCount)
	require.NotNil(t, c.LastSentAt)
	assert.True(t, time.Date(2024, 1, 11, 1, 0, 0, 0, time.UTC).Equal(*c.LastSentAt))
	assert.Nil(t, c.LastEmailSentAt)
}

func TestParseCycleKey(t *testing.T) {
	testCases := []struct {
		key     string
		device  string
		eye     model.Eye
		wantErr bool
	}{
		{key: "cycle:dev-1:LEFT", device: "dev-1", eye: model.EyeLeft},
		{key: "cycle:a:b:RIGHT", device: "a:b", eye: model.EyeRight},
		{key: "cycle:dev-1:left", wantErr: true},
		{key: "cycle::LEFT", wantErr: true},
		{key: "cycle:LEFT", wantErr: true},
		{key: "sub:dev-1", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			device, eye, err := ParseCycleKey(tc.key)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.device, device)
			assert.Equal(t, tc.eye, eye)
		})
	}
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.GetSubscription(ctx, "dev-1")
	assert.ErrorIs(t, err, ErrNotFound)

	first := model.Subscription{
		Subscription: json.RawMessage(`{"endpoint":"https://push.example/1","keys":{"p256dh":"k","auth":"a"}}`),
		Email:        "a@b.com",
	}
	require.NoError(t, s.PutSubscription(ctx, "dev-1", first))

	// Re-registering without an email drops the old address.
	second := model.Subscription{
		Subscription: json.RawMessage(`{"endpoint":"https://push.example/2","keys":{"p256dh":"k2","auth":"a2"}}`),
	}
	require.NoError(t, s.PutSubscription(ctx, "dev-1", second))

	got, err := s.GetSubscription(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/2", got.Endpoint())
	assert.Empty(t, got.Email)
	assert.JSONEq(t, string(second.Subscription), string(got.Subscription))
}

func TestListCycleKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	now := time.Now()
	_, err := s.UpsertCycle(ctx, "dev-1", model.EyeLeft, now, now)
	require.NoError(t, err)
	_, err = s.UpsertCycle(ctx, "dev-2", model.EyeRight, now, now)
	require.NoError(t, err)
	require.NoError(t, s.PutSubscription(ctx, "dev-1", model.Subscription{Subscription: json.RawMessage(`{}`)}))

	keys, err := s.ListCycleKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cycle:dev-1:LEFT", "cycle:dev-2:RIGHT"}, keys)
}
