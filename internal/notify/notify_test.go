package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEvent_JSONShape(t *testing.T) {
	ev := Event{
		Type:        EventFriendRequested,
		RecipientID: 42,
		Title:       "Alice sent you a friend request",
		Template:    "push_up",
		Payload:     map[string]any{"friendId": 7},
		OccurredAt:  time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != EventFriendRequested || m["recipientId"] != float64(42) {
		t.Fatalf("unexpected shape: %v", m)
	}
}

func TestNop_Publish(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), Event{Type: EventAccountDeleted}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}
