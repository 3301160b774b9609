// Chat-platform webhook handler.
//
// The chat platform posts a batch of events per delivery and only cares
// about the HTTP status: non-2xx responses trigger redelivery of the whole
// batch. Signature failures are rejected with 400; once the signature
// checks out the handler acknowledges with 200 even when individual events
// fail, because a batch-level retry would replay the events that already
// succeeded. Per-event failures are logged and counted instead.
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/http/middleware"
	"github.com/polyrelay/go-translate-backend/internal/lineapi"
)

// EventDispatcher routes one parsed chat event to the application layer.
// Satisfied by *services.Orchestrator.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev domain.InboundEvent) error
}

// ChatWebhook handles POST deliveries from the chat platform.
type ChatWebhook struct {
	ChannelSecret string
	Dispatcher    EventDispatcher
}

// NewChatWebhook constructs the handler bound to the given dispatcher.
func NewChatWebhook(channelSecret string, d EventDispatcher) *ChatWebhook {
	return &ChatWebhook{ChannelSecret: channelSecret, Dispatcher: d}
}

// Handle verifies the delivery signature, parses the event batch, and
// dispatches each event in order.
func (h *ChatWebhook) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}

	sig := c.GetHeader("X-Line-Signature")
	if err := lineapi.VerifySignature(h.ChannelSecret, body, sig); err != nil {
		middleware.WebhookEvents.WithLabelValues("chat", "delivery", "bad_signature").Inc()
		fail(c, http.StatusBadRequest, ErrCodeBadSignature, "signature verification failed")
		return
	}

	events, err := lineapi.ParseEvents(body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed webhook payload")
		return
	}

	lg := middleware.LoggerFrom(c)
	ctx := c.Request.Context()
	for _, ev := range events {
		outcome := "ok"
		if err := h.Dispatcher.Dispatch(ctx, ev); err != nil {
			outcome = "error"
			lg.Error().Err(err).
				Str("event_type", ev.Type).
				Str("group_id", ev.GroupID).
				Msg("chat event dispatch failed")
		}
		middleware.WebhookEvents.WithLabelValues("chat", ev.Type, outcome).Inc()
	}

	ok(c, http.StatusOK, gin.H{"events": len(events)})
}
