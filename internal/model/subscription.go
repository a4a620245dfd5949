package model

import "encoding/json"

// Subscription is the per-device record stored under sub:<deviceId>.
// The push descriptor is kept verbatim and handed to the push sender as-is.
type Subscription struct {
	Subscription json.RawMessage `json:"subscription"`
	Email        string          `json:"email,omitempty"`
}

// Endpoint extracts the push endpoint URL from the descriptor, or "" if the
// descriptor does not carry one.
func (s Subscription) Endpoint() string {
	var desc struct {
		Endpoint string `json:"endpoint"`
	}
	if len(s.Subscription) == 0 {
		return ""
	}
	if err := json.Unmarshal(s.Subscription, &desc); err != nil {
		return ""
	}
	return desc.Endpoint
}
