package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Eye identifies which lens a wear-cycle belongs to.
type Eye string

const (
	EyeLeft  Eye = "LEFT"
	EyeRight Eye = "RIGHT"
)

// ErrInvalidEye is returned when an eye value is neither LEFT nor RIGHT.
var ErrInvalidEye = errors.New("eye must be LEFT or RIGHT")

// Valid reports whether e is one of the two known eyes.
func (e Eye) Valid() bool {
	return e == EyeLeft || e == EyeRight
}

// Lower returns the lowercase form used in notification tags.
func (e Eye) Lower() string {
	return strings.ToLower(string(e))
}

// ParseEye accepts exactly "LEFT" or "RIGHT".
func ParseEye(s string) (Eye, error) {
	e := Eye(s)
	if !e.Valid() {
		return "", fmt.Errorf("%w: got %q", ErrInvalidEye, s)
	}
	return e, nil
}

// Cycle is the wear-cycle state stored under cycle:<deviceId>:<eye>.
type Cycle struct {
	CycleID         string     `json:"cycleId"`
	Eye             Eye        `json:"eye"`
	DueAt           time.Time  `json:"dueAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	SentCount       int        `json:"sentCount"`
	LastSentAt      *time.Time `json:"lastSentAt,omitempty"`
	LastEmailSentAt *time.Time `json:"lastEmailSentAt,omitempty"`
}

// Validate rejects records the sweep cannot reason about.
func (c Cycle) Validate() error {
	if !c.Eye.Valid() {
		return fmt.Errorf("%w: got %q", ErrInvalidEye, c.Eye)
	}
	if c.DueAt.IsZero() {
		return errors.New("dueAt is missing")
	}
	if c.SentCount < 0 {
		return fmt.Errorf("sentCount is negative: %d", c.SentCount)
	}
	return nil
}
