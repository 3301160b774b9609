package lineapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReplyCapsMessages(t *testing.T) {
	var got struct {
		ReplyToken string    `json:"replyToken"`
		Messages   []Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/message/reply" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}))
	defer srv.Close()

	c := NewClient("tok", time.Second, WithAPIBase(srv.URL))
	msgs := make([]Message, 0, 7)
	for i := 0; i < 7; i++ {
		msgs = append(msgs, TextMessage("m"))
	}
	if err := c.Reply(context.Background(), "rt", msgs...); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got.ReplyToken != "rt" {
		t.Errorf("replyToken = %q", got.ReplyToken)
	}
	if len(got.Messages) != MaxMessagesPerReply {
		t.Errorf("sent %d messages, want %d", len(got.Messages), MaxMessagesPerReply)
	}
}

func TestReplyNoMessagesSkipsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no call expected for empty reply")
	}))
	defer srv.Close()

	c := NewClient("tok", time.Second, WithAPIBase(srv.URL))
	if err := c.Reply(context.Background(), "rt"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
}

func TestPushErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid to"}`))
	}))
	defer srv.Close()

	c := NewClient("tok", time.Second, WithAPIBase(srv.URL))
	err := c.Push(context.Background(), "G1", TextMessage("hi"))
	if err == nil {
		t.Fatal("expected error on 400")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error should mention status: %v", err)
	}
}

func TestTextMessageTruncates(t *testing.T) {
	long := strings.Repeat("あ", MaxTextLength+10)
	m := TextMessage(long)
	if n := len([]rune(m.Text)); n != MaxTextLength {
		t.Errorf("text length = %d, want %d", n, MaxTextLength)
	}
}

func TestConfirmMessageShape(t *testing.T) {
	m := ConfirmMessage("alt", "Apply these languages?", "OK", "action=confirm&token=x", "Cancel", "action=cancel&token=x")
	if m.Type != "template" || m.Template == nil {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.Template.Type != "confirm" || len(m.Template.Actions) != 2 {
		t.Errorf("unexpected template: %+v", m.Template)
	}
	if m.Template.Actions[0].Type != "postback" {
		t.Errorf("action type = %q", m.Template.Actions[0].Type)
	}
}
