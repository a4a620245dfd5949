package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"lenstracker-reminders/internal/model"
)

// AppTitle is the notification title clients display.
const AppTitle = "LensTracker"

// PushPayload is the JSON object the service worker reads. Field names and
// order are part of the client contract.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	URL   string `json:"url"`
}

// Marshal encodes the payload for the push sender.
func (p PushPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ReminderTag groups notifications per eye so a newer nag replaces the
// previous one on the device.
func ReminderTag(eye model.Eye) string {
	return "lenstracker-" + eye.Lower()
}

// ReminderPush builds the nag for a cycle. The first nag says the lens is due,
// later ones say it is overdue.
func ReminderPush(eye model.Eye, first bool, url string) PushPayload {
	body := fmt.Sprintf("%s lens is overdue. Please change it.", eye)
	if first {
		body = fmt.Sprintf("%s lens due now. Please change it.", eye)
	}
	return PushPayload{
		Title: AppTitle,
		Body:  body,
		Tag:   ReminderTag(eye),
		URL:   url,
	}
}

const dueTodayTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
</head>
<body style="margin:0;padding:24px;font-family:Arial,Helvetica,sans-serif;color:#1f2933;">
    <h2 style="margin:0 0 16px;">LensTracker</h2>
    <p>Your <strong>{{.Eye}}</strong> lens is due for replacement today ({{.DueDate}}).</p>
    <p>Please change it.</p>
</body>
</html>
`

var dueToday = template.Must(template.New("due-today").Parse(dueTodayTemplate))

// DueTodayEmail renders the once-per-cycle "due today" email.
func DueTodayEmail(to string, eye model.Eye, dueAt time.Time) (Email, error) {
	var buf bytes.Buffer
	err := dueToday.Execute(&buf, struct {
		Eye     model.Eye
		DueDate string
	}{
		Eye:     eye,
		DueDate: dueAt.UTC().Format(time.DateOnly),
	})
	if err != nil {
		return Email{}, fmt.Errorf("failed to render email template: %w", err)
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("Lens Replacement Reminder: %s Eye", eye),
		HTML:    buf.String(),
	}, nil
}

// ManualPush builds the one-off push sent by the manual test endpoint. Empty
// title and body fall back to defaults.
func ManualPush(title, body, url string) PushPayload {
	if title == "" {
		title = AppTitle
	}
	if body == "" {
		body = "Test push"
	}
	return PushPayload{
		Title: title,
		Body:  body,
		Tag:   "lenstracker-test",
		URL:   url,
	}
}
