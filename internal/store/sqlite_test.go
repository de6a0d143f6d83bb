package store

import (
	"context"
	"testing"

	"github.com/streamcart/streamcart/internal/models"
)

func memStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteUpsertAndGetUser(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	u := &models.User{ID: "u-1", Name: "Sam", Role: models.RoleStreamer, ShopName: "Sam's Shop"}
	if err := s.UpsertUser(ctx, u); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "Sam" || got.ShopName != "Sam's Shop" || got.Role != models.RoleStreamer {
		t.Fatalf("got %+v", got)
	}

	// Upsert again with refreshed display data.
	u.Name = "Samuel"
	if err := s.UpsertUser(ctx, u); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = s.GetUser(ctx, "u-1")
	if got.Name != "Samuel" {
		t.Errorf("upsert did not refresh name: %q", got.Name)
	}

	missing, err := s.GetUser(ctx, "u-ghost")
	if err != nil || missing != nil {
		t.Errorf("missing user: got %v, %v", missing, err)
	}
}

func TestSQLiteFindOrCreateConversation(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	first, err := s.FindOrCreateConversation(ctx, "u-ann", "u-bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(first.Members) != 2 || !first.HasMember("u-ann") || !first.HasMember("u-bob") {
		t.Fatalf("bad members: %v", first.Members)
	}

	// Same pair in either order resolves the same conversation.
	second, err := s.FindOrCreateConversation(ctx, "u-bob", "u-ann")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("pair resolved to two conversations: %s vs %s", first.ID, second.ID)
	}

	// The ID is derived from the pair, so two creators racing to send
	// the first message insert the same row rather than duplicates.
	// Separate stores stand in for the racing writers.
	fresh := memStore(t)
	parallel, err := fresh.FindOrCreateConversation(ctx, "u-bob", "u-ann")
	if err != nil {
		t.Fatalf("parallel create: %v", err)
	}
	if parallel.ID != first.ID {
		t.Errorf("pair derived two conversation IDs: %s vs %s", first.ID, parallel.ID)
	}

	other, err := s.FindOrCreateConversation(ctx, "u-ann", "u-eve")
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	if other.ID == first.ID {
		t.Error("different pair reused the conversation")
	}

	missing, err := s.GetConversation(ctx, "conv-ghost")
	if err != nil || missing != nil {
		t.Errorf("missing conversation: got %v, %v", missing, err)
	}
}

func TestSQLiteMessageQueue(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "u-ann", "u-bob")
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}

	for i, content := range []string{"first", "second", "third"} {
		msg := &models.Message{
			ConversationID: conv.ID,
			SenderID:       "u-ann",
			RecipientID:    "u-bob",
			Content:        content,
			Timestamp:      int64(1000 + i),
		}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
		if msg.ID == "" {
			t.Fatal("append must assign an ID")
		}
	}
	// One already-delivered message must not show up in the queue.
	if err := s.AppendMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		SenderID:       "u-ann",
		RecipientID:    "u-bob",
		Content:        "seen",
		Timestamp:      999,
		Delivered:      true,
	}); err != nil {
		t.Fatalf("append delivered: %v", err)
	}

	queued, err := s.UndeliveredMessages(ctx, "u-bob")
	if err != nil {
		t.Fatalf("undelivered: %v", err)
	}
	if len(queued) != 3 {
		t.Fatalf("expected 3 queued, got %d", len(queued))
	}
	for i, want := range []string{"first", "second", "third"} {
		if queued[i].Content != want {
			t.Errorf("queue out of order at %d: %q", i, queued[i].Content)
		}
	}

	ids := []string{queued[0].ID, queued[1].ID, queued[2].ID}
	if err := s.MarkDelivered(ctx, ids); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	left, _ := s.UndeliveredMessages(ctx, "u-bob")
	if len(left) != 0 {
		t.Errorf("queue not drained: %v", left)
	}

	all, err := s.ConversationMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(all))
	}
	for _, m := range all {
		if !m.Delivered {
			t.Errorf("message %s still undelivered", m.ID)
		}
	}
	if all[0].Content != "seen" {
		t.Errorf("history out of timestamp order: %q first", all[0].Content)
	}

	if err := s.MarkDelivered(ctx, nil); err != nil {
		t.Errorf("empty mark delivered: %v", err)
	}
}

func TestSQLiteStreamLifecycle(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	st := &models.Stream{StreamerID: "u-str", Title: "flash sale"}
	if err := s.CreateStream(ctx, st); err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.ID == "" || st.Status != models.StreamScheduled {
		t.Fatalf("bad created stream: %+v", st)
	}

	if err := s.SetStreamStatus(ctx, st.ID, models.StreamLive); err != nil {
		t.Fatalf("go live: %v", err)
	}
	live, _ := s.GetStream(ctx, st.ID)
	if live.Status != models.StreamLive || live.StartedAt == nil {
		t.Errorf("live stream: %+v", live)
	}

	if err := s.SetStreamStatus(ctx, st.ID, models.StreamEnded); err != nil {
		t.Fatalf("end: %v", err)
	}
	ended, _ := s.GetStream(ctx, st.ID)
	if ended == nil {
		t.Fatal("ended stream record must be retained")
	}
	if ended.Status != models.StreamEnded || ended.EndedAt == nil {
		t.Errorf("ended stream: %+v", ended)
	}

	missing, err := s.GetStream(ctx, "s-ghost")
	if err != nil || missing != nil {
		t.Errorf("missing stream: got %v, %v", missing, err)
	}
}
