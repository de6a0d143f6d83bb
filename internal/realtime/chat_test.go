package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamcart/streamcart/internal/models"
)

type fakeLimiter struct {
	allow bool
	err   error
	calls int
}

func (l *fakeLimiter) AllowSend(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return l.allow, l.err
}

func newChatRelay(db *fakeStore, limiter SendLimiter) (*ChatRelay, *Registry) {
	reg := NewRegistry(testLogger())
	return NewChatRelay(reg, db, limiter, testLogger()), reg
}

func TestSendValidation(t *testing.T) {
	relay, _ := newChatRelay(newFakeStore(), nil)
	ann := buyer("u-ann", "Ann")

	cases := []struct {
		name string
		cmd  ChatSendCmd
	}{
		{"empty content", ChatSendCmd{RecipientID: "u-bob"}},
		{"missing recipient", ChatSendCmd{Content: "hi"}},
		{"self recipient", ChatSendCmd{RecipientID: "u-ann", Content: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := relay.Send(context.Background(), ann, tc.cmd); !IsKind(err, KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSendDeliversToEveryOpenConnection(t *testing.T) {
	db := newFakeStore()
	relay, reg := newChatRelay(db, nil)
	ann := buyer("u-ann", "Ann")
	bob := buyer("u-bob", "Bob")

	phone := newFakeConn("c-phone", bob)
	laptop := newFakeConn("c-laptop", bob)
	reg.Register(phone)
	reg.Register(laptop)

	msg, err := relay.Send(context.Background(), ann, ChatSendCmd{RecipientID: "u-bob", Content: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !msg.Delivered {
		t.Error("message to an online recipient must be stored delivered")
	}
	if msg.ConversationID == "" {
		t.Error("send without conversationId must resolve one")
	}

	for _, c := range []*fakeConn{phone, laptop} {
		events := c.pushed()
		if len(events) != 1 {
			t.Fatalf("%s: expected 1 event, got %d", c.ConnID(), len(events))
		}
		ev, ok := events[0].(ChatMessageEvent)
		if !ok {
			t.Fatalf("%s: expected ChatMessageEvent, got %T", c.ConnID(), events[0])
		}
		if ev.Content != "hello" || ev.SenderID != "u-ann" {
			t.Errorf("%s: bad event %+v", c.ConnID(), ev)
		}
	}
}

func TestSendQueuesForOfflineRecipient(t *testing.T) {
	db := newFakeStore()
	relay, _ := newChatRelay(db, nil)
	ann := buyer("u-ann", "Ann")

	msg, err := relay.Send(context.Background(), ann, ChatSendCmd{RecipientID: "u-bob", Content: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Delivered {
		t.Error("message to an offline recipient must be stored undelivered")
	}

	queued, err := db.UndeliveredMessages(context.Background(), "u-bob")
	if err != nil {
		t.Fatalf("undelivered: %v", err)
	}
	if len(queued) != 1 || queued[0].Content != "hello" {
		t.Fatalf("expected the message queued for u-bob, got %v", queued)
	}
}

func TestSendReusesExistingConversation(t *testing.T) {
	db := newFakeStore()
	relay, _ := newChatRelay(db, nil)
	ann := buyer("u-ann", "Ann")

	first, err := relay.Send(context.Background(), ann, ChatSendCmd{RecipientID: "u-bob", Content: "one"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	second, err := relay.Send(context.Background(), ann, ChatSendCmd{RecipientID: "u-bob", Content: "two"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.ConversationID != second.ConversationID {
		t.Errorf("same pair resolved to different conversations: %s vs %s",
			first.ConversationID, second.ConversationID)
	}
}

func TestSendRejectsForeignConversation(t *testing.T) {
	db := newFakeStore()
	db.addConversation("conv-x", "u-bob", "u-eve")
	relay, _ := newChatRelay(db, nil)
	ann := buyer("u-ann", "Ann")

	_, err := relay.Send(context.Background(), ann, ChatSendCmd{
		ConversationID: "conv-x", RecipientID: "u-bob", Content: "hi",
	})
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for non-member sender, got %v", err)
	}

	_, err = relay.Send(context.Background(), ann, ChatSendCmd{
		ConversationID: "conv-missing", RecipientID: "u-bob", Content: "hi",
	})
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for unknown conversation, got %v", err)
	}
}

func TestSendRateLimited(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	relay, _ := newChatRelay(newFakeStore(), limiter)

	_, err := relay.Send(context.Background(), buyer("u-ann", "Ann"),
		ChatSendCmd{RecipientID: "u-bob", Content: "hi"})
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error when rate limited, got %v", err)
	}
	if limiter.calls != 1 {
		t.Errorf("expected 1 limiter call, got %d", limiter.calls)
	}
}

func TestSendSurvivesBrokenLimiter(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	relay, _ := newChatRelay(newFakeStore(), limiter)

	if _, err := relay.Send(context.Background(), buyer("u-ann", "Ann"),
		ChatSendCmd{RecipientID: "u-bob", Content: "hi"}); err != nil {
		t.Fatalf("a broken limiter must not block chat: %v", err)
	}
}

func TestFlushUndeliveredOrderAndMark(t *testing.T) {
	db := newFakeStore()
	db.UpsertUser(context.Background(), streamer("u-shop", "Sam", "Sam's Shop"))
	relay, _ := newChatRelay(db, nil)

	base := time.Now().UnixMilli()
	for i, content := range []string{"first", "second", "third"} {
		db.AppendMessage(context.Background(), &models.Message{
			ConversationID: "conv-1",
			SenderID:       "u-shop",
			RecipientID:    "u-bob",
			Content:        content,
			Timestamp:      base + int64(i),
		})
	}

	conn := newFakeConn("c-bob", buyer("u-bob", "Bob"))
	if err := relay.FlushUndelivered(context.Background(), conn); err != nil {
		t.Fatalf("flush: %v", err)
	}

	events := conn.pushed()
	if len(events) != 3 {
		t.Fatalf("expected 3 flushed messages, got %d", len(events))
	}
	want := []string{"first", "second", "third"}
	for i, ev := range events {
		cm := ev.(ChatMessageEvent)
		if cm.Content != want[i] {
			t.Errorf("flush out of order at %d: got %q want %q", i, cm.Content, want[i])
		}
		if cm.SenderName != "Sam's Shop" {
			t.Errorf("streamer sender must surface shop name, got %q", cm.SenderName)
		}
	}

	left, _ := db.UndeliveredMessages(context.Background(), "u-bob")
	if len(left) != 0 {
		t.Errorf("flushed messages still queued: %v", left)
	}

	// A second flush is a no-op.
	conn.reset()
	if err := relay.FlushUndelivered(context.Background(), conn); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if got := conn.pushedTypes(); len(got) != 0 {
		t.Errorf("second flush re-pushed messages: %v", got)
	}
}

func TestHistory(t *testing.T) {
	db := newFakeStore()
	db.UpsertUser(context.Background(), buyer("u-ann", "Ann"))
	db.UpsertUser(context.Background(), streamer("u-shop", "Sam", "Sam's Shop"))
	db.addConversation("conv-1", "u-ann", "u-shop")
	db.AppendMessage(context.Background(), &models.Message{
		ConversationID: "conv-1",
		SenderID:       "u-shop",
		RecipientID:    "u-ann",
		Content:        "hi there",
		Timestamp:      time.Now().UnixMilli(),
	})
	relay, _ := newChatRelay(db, nil)

	hist, err := relay.History(context.Background(), buyer("u-ann", "Ann"), "conv-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist.Messages) != 1 || hist.Messages[0].Content != "hi there" {
		t.Fatalf("unexpected messages: %v", hist.Messages)
	}
	if hist.RecipientID != "u-shop" || hist.RecipientName != "Sam's Shop" {
		t.Errorf("peer not resolved: %+v", hist)
	}
}

func TestHistoryErrors(t *testing.T) {
	db := newFakeStore()
	db.addConversation("conv-1", "u-ann", "u-bob")
	relay, _ := newChatRelay(db, nil)

	if _, err := relay.History(context.Background(), buyer("u-ann", "Ann"), "conv-missing"); !IsKind(err, KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
	if _, err := relay.History(context.Background(), buyer("u-eve", "Eve"), "conv-1"); !IsKind(err, KindAuthorization) {
		t.Errorf("expected authorization error for non-member, got %v", err)
	}
}
