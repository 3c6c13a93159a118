package websocket

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"chathub/internal/hubtest"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	c1 := hubtest.NewFakeConnection("c1", "u1")
	c2 := hubtest.NewFakeConnection("c2", "u1")

	for _, c := range []*hubtest.FakeConnection{c1, c2} {
		if err := registry.Register(c); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	conns := registry.ConnectionsFor("u1")
	if len(conns) != 2 {
		t.Fatalf("Expected 2 connections for u1, got %d", len(conns))
	}
	if !registry.IsOnline("u1") {
		t.Error("u1 should be online")
	}
	if got, ok := registry.Connection("c2"); !ok || got != c2 {
		t.Error("Connection lookup by id failed")
	}
	if len(registry.ConnectionsFor("nobody")) != 0 {
		t.Error("Unknown user should have no connections")
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}

	_ = registry.Register(hubtest.NewFakeConnection("c1", "u1"))
	if err := registry.Register(hubtest.NewFakeConnection("c1", "u2")); err != ErrDuplicateConnection {
		t.Errorf("Expected ErrDuplicateConnection, got %v", err)
	}
}

func TestRegistry_AnonymousConnections(t *testing.T) {
	registry := NewRegistry()
	anon := hubtest.NewFakeConnection("c1", "")

	if err := registry.Register(anon); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if len(registry.OnlineUsers()) != 0 {
		t.Errorf("Anonymous connection must not appear online, got %v", registry.OnlineUsers())
	}
	if len(registry.All()) != 1 {
		t.Error("Anonymous connection should be reachable for broadcasts")
	}
	if len(registry.ConnectionsFor("")) != 0 {
		t.Error("Empty user id should never resolve to connections")
	}

	stats := registry.GetStats()
	if stats["anonymous_connections"] != 1 || stats["online_users"] != 0 {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestRegistry_UnregisterKeepsOtherConnections(t *testing.T) {
	registry := NewRegistry()
	c1 := hubtest.NewFakeConnection("c1", "u1")
	c2 := hubtest.NewFakeConnection("c2", "u1")
	_ = registry.Register(c1)
	_ = registry.Register(c2)

	if !registry.Unregister(c1) {
		t.Fatal("Unregister should report removal")
	}
	if !registry.IsOnline("u1") {
		t.Error("u1 still has c2 and must stay online")
	}

	if !registry.Unregister(c2) {
		t.Fatal("Unregister should report removal")
	}
	if registry.IsOnline("u1") {
		t.Error("u1 should be offline after last connection closes")
	}
	if len(registry.OnlineUsers()) != 0 {
		t.Error("Online set should be empty")
	}
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	c1 := hubtest.NewFakeConnection("c1", "u1")
	_ = registry.Register(c1)

	if !registry.Unregister(c1) {
		t.Fatal("First unregister should remove")
	}
	if registry.Unregister(c1) {
		t.Error("Second unregister should be a no-op")
	}
	if registry.Unregister(hubtest.NewFakeConnection("never", "u1")) {
		t.Error("Unknown connection should not be removed")
	}
}

func TestRegistry_UnregisterIgnoresDifferentInstance(t *testing.T) {
	registry := NewRegistry()
	original := hubtest.NewFakeConnection("c1", "u1")
	_ = registry.Register(original)

	if registry.Unregister(hubtest.NewFakeConnection("c1", "u1")) {
		t.Error("A different instance with the same id must not remove the registered one")
	}
	if !registry.IsOnline("u1") {
		t.Error("u1 should still be online")
	}
}

func TestRegistry_OnlineUsersSorted(t *testing.T) {
	registry := NewRegistry()
	for i, u := range []string{"carol", "alice", "bob", "alice"} {
		_ = registry.Register(hubtest.NewFakeConnection(fmt.Sprintf("c%d", i), u))
	}

	want := []string{"alice", "bob", "carol"}
	if got := registry.OnlineUsers(); !reflect.DeepEqual(got, want) {
		t.Errorf("OnlineUsers() = %v, want %v", got, want)
	}

	stats := registry.GetStats()
	if stats["total_connections"] != 4 || stats["online_users"] != 3 {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := hubtest.NewFakeConnection(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i%5))
			_ = registry.Register(c)
			_ = registry.OnlineUsers()
			_ = registry.ConnectionsFor(c.UserID())
			registry.Unregister(c)
		}(i)
	}
	wg.Wait()

	if len(registry.All()) != 0 || len(registry.OnlineUsers()) != 0 {
		t.Errorf("Registry should be empty, stats %v", registry.GetStats())
	}
}
