// Package lineapi is the chat-platform boundary: webhook signature
// verification and event parsing on the inbound side, the reply/push
// messaging client on the outbound side.
package lineapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/polyrelay/go-translate-backend/internal/domain"
)

// ErrBadSignature is returned when the webhook signature does not match the
// request body under the channel secret.
var ErrBadSignature = errors.New("webhook signature mismatch")

// VerifySignature checks the X-Line-Signature header value against the raw
// request body. The signature is base64(HMAC-SHA256(channelSecret, body)).
func VerifySignature(channelSecret string, body []byte, signature string) error {
	if signature == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := mac.Sum(nil)
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(expected, got) {
		return ErrBadSignature
	}
	return nil
}

// webhookBody mirrors the platform's webhook payload shape. Only the fields
// the orchestrator consumes are decoded.
type webhookBody struct {
	Events []struct {
		Type       string `json:"type"`
		ReplyToken string `json:"replyToken"`
		Timestamp  int64  `json:"timestamp"` // milliseconds since epoch
		Source     struct {
			Type    string `json:"type"`
			GroupID string `json:"groupId"`
			RoomID  string `json:"roomId"`
			UserID  string `json:"userId"`
		} `json:"source"`
		Message struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"message"`
		Postback struct {
			Data string `json:"data"`
		} `json:"postback"`
	} `json:"events"`
}

// ParseEvents decodes a verified webhook body into inbound events.
// Non-text messages keep their event but carry an empty Text, letting the
// orchestrator skip them without special transport knowledge.
func ParseEvents(body []byte) ([]domain.InboundEvent, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, err
	}
	out := make([]domain.InboundEvent, 0, len(wb.Events))
	for _, e := range wb.Events {
		ev := domain.InboundEvent{
			Type:       e.Type,
			ReplyToken: e.ReplyToken,
			UserID:     e.Source.UserID,
			SourceType: e.Source.Type,
			Timestamp:  time.UnixMilli(e.Timestamp).UTC(),
		}
		switch e.Source.Type {
		case domain.SourceGroup:
			ev.GroupID = e.Source.GroupID
		case domain.SourceRoom:
			ev.GroupID = e.Source.RoomID
		}
		switch e.Type {
		case domain.EventTypeMessage:
			if e.Message.Type == "text" {
				ev.Text = e.Message.Text
			}
		case domain.EventTypePostback:
			ev.PostbackData = e.Postback.Data
		}
		out = append(out, ev)
	}
	return out, nil
}
