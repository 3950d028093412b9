package dispatch

import (
	"errors"
	"time"

	"github.com/sideshow/apns2/payload"
	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
)

// PushRequest is the JSON message accepted from Pub/Sub and the HTTP API.
type PushRequest struct {
	DeviceTokens     []string       `json:"device_tokens"`
	Alert            string         `json:"alert,omitempty"`
	Title            string         `json:"title,omitempty"`
	Badge            *int           `json:"badge,omitempty"`
	Sound            string         `json:"sound,omitempty"`
	ContentAvailable bool           `json:"content_available,omitempty"`
	Custom           map[string]any `json:"custom,omitempty"`
	// RegisteredAt is when the tokens were last registered by the app.
	// Feedback older than this no longer applies.
	RegisteredAt time.Time `json:"registered_at,omitempty"`
}

func (r *PushRequest) Validate() error {
	if len(r.DeviceTokens) == 0 {
		return errors.New("device_tokens is required")
	}
	if r.Alert == "" && r.Title == "" && r.Badge == nil && r.Sound == "" && !r.ContentAvailable && len(r.Custom) == 0 {
		return errors.New("request carries no payload")
	}
	return nil
}

// Payload builds the aps dictionary plus custom keys.
func (r *PushRequest) Payload() *payload.Payload {
	p := payload.NewPayload()
	switch {
	case r.Title != "":
		p.AlertTitle(r.Title).AlertBody(r.Alert)
	case r.Alert != "":
		p.Alert(r.Alert)
	}
	if r.Badge != nil {
		p.Badge(*r.Badge)
	}
	if r.Sound != "" {
		p.Sound(r.Sound)
	}
	if r.ContentAvailable {
		p.ContentAvailable()
	}
	for k, v := range r.Custom {
		p.Custom(k, v)
	}
	return p
}

// Notifications fans the request out to one notification per token.
func (r *PushRequest) Notifications(tokens []string) []apns.Notification {
	body := r.Payload()
	out := make([]apns.Notification, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, apns.Notification{DeviceToken: apns.NormalizeToken(t), Payload: body})
	}
	return out
}
