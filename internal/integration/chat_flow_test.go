package integration

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"chathub/pkg/types"
)

func decode[T any](t *testing.T, env types.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("Bad %s payload %s: %v", env.Event, env.Data, err)
	}
	return v
}

func TestChatFlow_DirectMessageReceipts(t *testing.T) {
	s := startServer(t)
	s.register(t, "alice")
	s.register(t, "bob")

	alice := connectClient(t, s, "alice")
	alice.WaitForOnline(t, "alice")
	bob := connectClient(t, s, "bob")
	alice.WaitForOnline(t, "alice", "bob")
	bob.WaitForOnline(t, "alice", "bob")

	sent := s.sendDirect(t, "alice", "bob", "hi bob")

	got := decode[types.Message](t, bob.WaitFor(t, types.EventNewMessage))
	if got.ID != sent.ID || got.Text != "hi bob" || got.SenderID != "alice" {
		t.Fatalf("Unexpected message %+v", got)
	}

	bob.Emit(t, types.EventMessageDelivered, map[string]string{"messageId": sent.ID})
	delivered := decode[types.DeliveredReceipt](t, alice.Next(t, types.EventGetOnlineUsers))
	if delivered.MessageID != sent.ID || !delivered.Delivered {
		t.Errorf("Unexpected delivered receipt %+v", delivered)
	}

	// A repeated ack is absorbed; the next receipt alice sees is the read one.
	bob.Emit(t, types.EventMessageDelivered, map[string]string{"messageId": sent.ID})
	bob.Emit(t, types.EventMessageRead, map[string]string{"messageId": sent.ID})
	next := alice.Next(t, types.EventGetOnlineUsers)
	if next.Event != types.EventMessageRead {
		t.Fatalf("Expected %s, got %s", types.EventMessageRead, next.Event)
	}

	var stored types.Message
	if code := s.request(t, http.MethodGet, "/api/messages/"+sent.ID, "bob", nil, &stored); code != http.StatusOK {
		t.Fatalf("GET message status %d", code)
	}
	if !stored.Delivered || !stored.Read || stored.DeliveredAt == nil || stored.ReadAt == nil {
		t.Errorf("Delivery state not persisted: %+v", stored)
	}
}

func TestChatFlow_GroupFanOut(t *testing.T) {
	s := startServer(t)
	for _, id := range []string{"alice", "bob", "carol"} {
		s.register(t, id)
	}

	alice := connectClient(t, s, "alice")
	bob := connectClient(t, s, "bob")
	carol := connectClient(t, s, "carol")
	carol.WaitForOnline(t, "alice", "bob", "carol")

	// Events on one connection are handled in order, so the typing
	// notification proves the join before it was applied.
	alice.Emit(t, types.EventJoinGroup, map[string]string{"groupId": "g1"})
	alice.Emit(t, types.EventStartTyping, map[string]string{"receiverId": "carol"})
	bob.Emit(t, types.EventJoinGroup, "g1")
	bob.Emit(t, types.EventStartTyping, map[string]string{"receiverId": "carol"})
	carol.WaitFor(t, types.EventUserTyping)
	carol.WaitFor(t, types.EventUserTyping)

	var message types.Message
	body := map[string]string{"groupId": "g1", "text": "hello room"}
	if code := s.request(t, http.MethodPost, "/api/messages", "carol", body, &message); code != http.StatusCreated {
		t.Fatalf("Group message status %d", code)
	}

	for _, member := range []*testClient{alice, bob} {
		got := decode[types.Message](t, member.WaitFor(t, types.EventNewGroupMessage))
		if got.ID != message.ID || got.GroupID == nil || *got.GroupID != "g1" {
			t.Errorf("%s got unexpected group message %+v", member.UserID, got)
		}
	}

	// carol is not a member; the next thing she sees is a direct message.
	s.sendDirect(t, "alice", "carol", "ping")
	next := carol.Next(t, types.EventGetOnlineUsers, types.EventUserTyping)
	if next.Event != types.EventNewMessage {
		t.Errorf("Non-member received %s", next.Event)
	}
}

func TestChatFlow_DisconnectCleansUp(t *testing.T) {
	s := startServer(t)
	s.register(t, "alice")
	s.register(t, "bob")

	alice := connectClient(t, s, "alice")
	bob := connectClient(t, s, "bob")
	alice.WaitForOnline(t, "alice", "bob")

	bob.Emit(t, types.EventStartTyping, map[string]string{"receiverId": "alice"})
	alice.WaitFor(t, types.EventUserTyping)

	bob.Close()

	// Typing ends before presence is announced.
	first := alice.Next(t)
	if first.Event != types.EventUserStopTyping {
		t.Fatalf("Expected %s first, got %s", types.EventUserStopTyping, first.Event)
	}
	if stop := decode[types.UserEvent](t, first); stop.UserID != "bob" {
		t.Errorf("Expected stop typing from bob, got %+v", stop)
	}
	second := alice.Next(t)
	if second.Event != types.EventGetOnlineUsers {
		t.Fatalf("Expected %s second, got %s", types.EventGetOnlineUsers, second.Event)
	}
	if online := decode[[]string](t, second); len(online) != 1 || online[0] != "alice" {
		t.Errorf("Expected only alice online, got %v", online)
	}

	deadline := time.Now().Add(eventTimeout)
	for {
		var user types.User
		s.request(t, http.MethodGet, "/api/users/me", "bob", nil, &user)
		if user.LastSeen != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("lastSeen was never stamped for bob")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestChatFlow_BlockedTypingSuppressed(t *testing.T) {
	s := startServer(t)
	s.register(t, "alice")
	s.register(t, "bob")
	s.register(t, "carol")

	if code := s.request(t, http.MethodPost, "/api/users/me/blocks/alice", "bob", nil, nil); code != http.StatusOK {
		t.Fatalf("Block status %d", code)
	}

	alice := connectClient(t, s, "alice")
	bob := connectClient(t, s, "bob")
	carol := connectClient(t, s, "carol")
	bob.WaitForOnline(t, "alice", "bob", "carol")

	// Switching to carol would stop typing towards bob; both are suppressed.
	alice.Emit(t, types.EventStartTyping, map[string]string{"receiverId": "bob"})
	alice.Emit(t, types.EventStartTyping, map[string]string{"receiverId": "carol"})
	if got := decode[types.UserEvent](t, carol.WaitFor(t, types.EventUserTyping)); got.UserID != "alice" {
		t.Errorf("Unexpected typing event %+v", got)
	}

	// Direct messages are not subject to typing suppression.
	s.sendDirect(t, "alice", "bob", "can you see this")
	next := bob.Next(t, types.EventGetOnlineUsers)
	if next.Event != types.EventNewMessage {
		t.Errorf("Blocked user's typing leaked: got %s", next.Event)
	}
}

func TestChatFlow_AnonymousObserver(t *testing.T) {
	s := startServer(t)

	observer := connectClient(t, s, "")
	observer.WaitForOnline(t)

	alice := connectClient(t, s, "alice")
	observer.WaitForOnline(t, "alice")

	var presence struct {
		OnlineUsers []string `json:"onlineUsers"`
	}
	if code := s.request(t, http.MethodGet, "/api/presence", "alice", nil, &presence); code != http.StatusOK {
		t.Fatalf("Presence status %d", code)
	}
	if len(presence.OnlineUsers) != 1 || presence.OnlineUsers[0] != "alice" {
		t.Errorf("Unexpected presence %v", presence.OnlineUsers)
	}

	alice.Close()
	observer.WaitForOnline(t)
}
