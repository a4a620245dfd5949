// Package sweep implements the reminder sweep: one pass over every stored
// wear-cycle that decides which reminders are due, sends them and writes the
// updated cycle back.
//
// Eligibility is recomputed from absolute timestamps on every pass, so a late,
// repeated or skipped sweep corrects itself. The decision helpers in this file
// are pure; Engine does all the I/O.
package sweep

import (
	"time"

	"lenstracker-reminders/internal/model"
	"lenstracker-reminders/internal/notification"
)

// Cadence holds the day offsets, measured from dueAt, at which successive
// nags become due. The last entry repeats once sentCount runs past the table.
// Because the offset is from dueAt and not from the previous nag, a cycle
// with sentCount >= 6 stays eligible from day 13 on and is nagged on every
// sweep.
var Cadence = [...]int{0, 1, 2, 3, 5, 8, 13}

const day = 24 * time.Hour

// NextSendAt is the earliest time the next nag may go out for a cycle that
// has already sent sentCount nags.
func NextSendAt(dueAt time.Time, sentCount int) time.Time {
	i := min(max(sentCount, 0), len(Cadence)-1)
	return dueAt.Add(time.Duration(Cadence[i]) * day)
}

// IsDue reports whether the lens is due (or overdue) at now.
func IsDue(c model.Cycle, now time.Time) bool {
	return !now.Before(c.DueAt)
}

// PushEligible reports whether enough time has passed since dueAt, given how
// many nags already went out, to send another one.
func PushEligible(c model.Cycle, now time.Time) bool {
	return !now.Before(NextSendAt(c.DueAt, c.SentCount))
}

// EmailEligible reports whether the "due today" email should go out: only on
// dueAt's UTC calendar day, only with an address, and only once that day.
func EmailEligible(c model.Cycle, email string, now time.Time) bool {
	if email == "" || !sameDay(now, c.DueAt) {
		return false
	}
	return c.LastEmailSentAt == nil || !sameDay(*c.LastEmailSentAt, now)
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Format(time.DateOnly) == b.UTC().Format(time.DateOnly)
}

// ActionKind names a side effect the engine performs for a cycle.
type ActionKind string

const (
	ActionPush  ActionKind = "push"
	ActionEmail ActionKind = "email"
)

// Action is one notification to send. Exactly one of Push or EmailTo is set,
// according to Kind.
type Action struct {
	Kind    ActionKind
	Push    notification.PushPayload
	EmailTo string
}

// Policy carries the knobs that shape actions but not eligibility.
type Policy struct {
	// ClickURL is opened by the client when the notification is tapped.
	ClickURL string
	// EmailEnabled is false when no email sender is configured.
	EmailEnabled bool
}

// Plan lists the notifications a due cycle should get this sweep. The caller
// has already checked IsDue and found a subscription.
func Plan(c model.Cycle, sub model.Subscription, now time.Time, p Policy) []Action {
	var actions []Action
	if PushEligible(c, now) {
		actions = append(actions, Action{
			Kind: ActionPush,
			Push: notification.ReminderPush(c.Eye, c.SentCount == 0, p.ClickURL),
		})
	}
	if p.EmailEnabled && EmailEligible(c, sub.Email, now) {
		actions = append(actions, Action{Kind: ActionEmail, EmailTo: sub.Email})
	}
	return actions
}

// Apply records a successful action on the cycle. Failed actions are never
// applied, which is what makes the next sweep retry them.
func Apply(c model.Cycle, a Action, now time.Time) model.Cycle {
	at := now.UTC()
	switch a.Kind {
	case ActionPush:
		c.SentCount++
		c.LastSentAt = &at
	case ActionEmail:
		c.LastEmailSentAt = &at
	}
	return c
}
