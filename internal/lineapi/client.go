package lineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultAPIBase = "https://api.line.me/v2/bot"

// Platform caps on outbound messaging.
const (
	// MaxMessagesPerReply is the platform cap on messages per reply call.
	MaxMessagesPerReply = 5
	// MaxTextLength is the platform cap on characters per text message.
	MaxTextLength = 5000
)

// Message is one outbound message object. Text messages carry Text; the
// confirm template used for language prompts carries Template.
type Message struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	AltText  string    `json:"altText,omitempty"`
	Template *Template `json:"template,omitempty"`
}

// Template is a confirm-style interactive prompt with two postback actions.
type Template struct {
	Type    string   `json:"type"`
	Text    string   `json:"text"`
	Actions []Action `json:"actions"`
}

// Action is one tappable button inside a template.
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Data  string `json:"data,omitempty"`
}

// TextMessage builds a text message, truncated to the platform cap.
func TextMessage(text string) Message {
	runes := []rune(text)
	if len(runes) > MaxTextLength {
		text = string(runes[:MaxTextLength])
	}
	return Message{Type: "text", Text: text}
}

// ConfirmMessage builds a two-button confirm prompt. The postback data
// strings round-trip through the platform untouched.
func ConfirmMessage(altText, promptText, okLabel, okData, cancelLabel, cancelData string) Message {
	return Message{
		Type:    "template",
		AltText: altText,
		Template: &Template{
			Type: "confirm",
			Text: promptText,
			Actions: []Action{
				{Type: "postback", Label: okLabel, Data: okData},
				{Type: "postback", Label: cancelLabel, Data: cancelData},
			},
		},
	}
}

// Client sends reply and push messages to the chat platform.
type Client struct {
	accessToken string
	baseURL     string
	http        *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithAPIBase overrides the messaging endpoint (tests point this at a local
// server).
func WithAPIBase(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// NewClient builds a messaging client with a hard per-call timeout.
func NewClient(accessToken string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		accessToken: accessToken,
		baseURL:     defaultAPIBase,
		http:        &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Reply answers a webhook event using its one-shot reply token. At most
// MaxMessagesPerReply messages are sent; extras are dropped with a warning
// rather than failing the whole reply.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	if len(messages) > MaxMessagesPerReply {
		log.Warn().Int("dropped", len(messages)-MaxMessagesPerReply).Msg("reply exceeds message cap")
		messages = messages[:MaxMessagesPerReply]
	}
	return c.post(ctx, "/message/reply", map[string]any{
		"replyToken": replyToken,
		"messages":   messages,
	})
}

// Push sends messages to a conversation without a reply token. Used for the
// payment confirmation, which arrives outside any chat event.
func (c *Client) Push(ctx context.Context, to string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	if len(messages) > MaxMessagesPerReply {
		messages = messages[:MaxMessagesPerReply]
	}
	return c.post(ctx, "/message/push", map[string]any{
		"to":       to,
		"messages": messages,
	})
}

// MemberName resolves a group member's display name, falling back to the
// user's own profile when the member lookup fails (e.g. the user left the
// group between sending and processing).
func (c *Client) MemberName(ctx context.Context, groupID, userID string) (string, error) {
	var profile struct {
		DisplayName string `json:"displayName"`
	}
	err := c.get(ctx, fmt.Sprintf("/group/%s/member/%s", groupID, userID), &profile)
	if err != nil || profile.DisplayName == "" {
		if perr := c.get(ctx, "/profile/"+userID, &profile); perr != nil {
			if err == nil {
				err = perr
			}
			return "", err
		}
	}
	return profile.DisplayName, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("messaging API %s returned %d: %s", path, resp.StatusCode, excerpt)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("messaging API %s returned %d: %s", path, resp.StatusCode, excerpt)
	}
	return nil
}
