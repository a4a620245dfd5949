package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lenstracker-reminders/internal/kv"
	"lenstracker-reminders/internal/model"
)

const (
	// CyclePrefix namespaces wear-cycle records: cycle:<deviceId>:<eye>.
	CyclePrefix = "cycle:"
	// SubscriptionPrefix namespaces subscription records: sub:<deviceId>.
	SubscriptionPrefix = "sub:"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrMalformed is returned when a stored value cannot be decoded into a
	// valid record.
	ErrMalformed = errors.New("malformed record")
)

// Store defines the record-level operations on top of the key-value backend.
type Store interface {
	ListCycleKeys(ctx context.Context) ([]string, error)
	GetCycleByKey(ctx context.Context, key string) (model.Cycle, error)
	PutCycleByKey(ctx context.Context, key string, c model.Cycle) error

	GetCycle(ctx context.Context, deviceID string, eye model.Eye) (model.Cycle, error)
	UpsertCycle(ctx context.Context, deviceID string, eye model.Eye, dueAt, now time.Time) (model.Cycle, error)
	ClearCycle(ctx context.Context, deviceID string, eye model.Eye) error

	GetSubscription(ctx context.Context, deviceID string) (model.Subscription, error)
	PutSubscription(ctx context.Context, deviceID string, sub model.Subscription) error
}

// kvStore implements Store on any kv.Store.
type kvStore struct {
	kv    kv.Store
	newID func() string
}

// New creates a record store over the given key-value backend.
func New(backend kv.Store) Store {
	return &kvStore{kv: backend, newID: uuid.NewString}
}

// CycleKey builds the key for a (device, eye) pair.
func CycleKey(deviceID string, eye model.Eye) string {
	return CyclePrefix + deviceID + ":" + string(eye)
}

// SubscriptionKey builds the key for a device's subscription.
func SubscriptionKey(deviceID string) string {
	return SubscriptionPrefix + deviceID
}

// ParseCycleKey splits cycle:<deviceId>:<eye>. Device ids may themselves
// contain colons, so the eye is taken from the last segment.
func ParseCycleKey(key string) (string, model.Eye, error) {
	rest, ok := strings.CutPrefix(key, CyclePrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: key %q lacks %q prefix", ErrMalformed, key, CyclePrefix)
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", "", fmt.Errorf("%w: key %q has no device id", ErrMalformed, key)
	}
	eye, err := model.ParseEye(rest[i+1:])
	if err != nil {
		return "", "", fmt.Errorf("%w: key %q: %v", ErrMalformed, key, err)
	}
	return rest[:i], eye, nil
}

func (s *kvStore) ListCycleKeys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.List(ctx, CyclePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle keys: %w", err)
	}
	return keys, nil
}

func (s *kvStore) GetCycleByKey(ctx context.Context, key string) (model.Cycle, error) {
	var c model.Cycle
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, fmt.Errorf("failed to read cycle %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("%w: cycle %q: %v", ErrMalformed, key, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%w: cycle %q: %v", ErrMalformed, key, err)
	}
	return c, nil
}

func (s *kvStore) PutCycleByKey(ctx context.Context, key string, c model.Cycle) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cycle %q: %w", key, err)
	}
	if err := s.kv.Put(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("failed to write cycle %q: %w", key, err)
	}
	return nil
}

func (s *kvStore) GetCycle(ctx context.Context, deviceID string, eye model.Eye) (model.Cycle, error) {
	return s.GetCycleByKey(ctx, CycleKey(deviceID, eye))
}

// UpsertCycle replaces whatever cycle the pair had with a fresh one.
func (s *kvStore) UpsertCycle(ctx context.Context, deviceID string, eye model.Eye, dueAt, now time.Time) (model.Cycle, error) {
	c := model.Cycle{
		CycleID:   s.newID(),
		Eye:       eye,
		DueAt:     dueAt.UTC(),
		CreatedAt: now.UTC(),
		SentCount: 0,
	}
	if err := s.PutCycleByKey(ctx, CycleKey(deviceID, eye), c); err != nil {
		return model.Cycle{}, err
	}
	return c, nil
}

func (s *kvStore) ClearCycle(ctx context.Context, deviceID string, eye model.Eye) error {
	key := CycleKey(deviceID, eye)
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to clear cycle %q: %w", key, err)
	}
	return nil
}

func (s *kvStore) GetSubscription(ctx context.Context, deviceID string) (model.Subscription, error) {
	var sub model.Subscription
	key := SubscriptionKey(deviceID)
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return sub, ErrNotFound
	}
	if err != nil {
		return sub, fmt.Errorf("failed to read subscription %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return sub, fmt.Errorf("%w: subscription %q: %v", ErrMalformed, key, err)
	}
	return sub, nil
}

// PutSubscription overwrites the device's record in full; nothing is merged.
func (s *kvStore) PutSubscription(ctx context.Context, deviceID string, sub model.Subscription) error {
	key := SubscriptionKey(deviceID)
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to encode subscription %q: %w", key, err)
	}
	if err := s.kv.Put(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("failed to write subscription %q: %w", key, err)
	}
	return nil
}
