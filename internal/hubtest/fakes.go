// Package hubtest provides in-memory fakes of the hub's collaborators for tests.
package hubtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

var errClosed = errors.New("fake connection closed")

var (
	_ interfaces.Connection        = (*FakeConnection)(nil)
	_ interfaces.MessageRepository = (*FakeRepository)(nil)
	_ interfaces.UserDirectory     = (*FakeDirectory)(nil)
)

// FakeConnection records every event sent to it.
type FakeConnection struct {
	id     string
	userID string

	mu      sync.Mutex
	events  []*types.Outbound
	closed  bool
	sendErr error
}

func NewFakeConnection(id, userID string) *FakeConnection {
	return &FakeConnection{id: id, userID: userID}
}

func (c *FakeConnection) ID() string     { return c.id }
func (c *FakeConnection) UserID() string { return c.userID }

func (c *FakeConnection) Send(event *types.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, event)
	return nil
}

func (c *FakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// FailSends makes every later Send return err.
func (c *FakeConnection) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *FakeConnection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns a copy of the recorded events.
func (c *FakeConnection) Events() []*types.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Outbound, len(c.events))
	copy(out, c.events)
	return out
}

// EventsNamed returns the recorded events with the given name.
func (c *FakeConnection) EventsNamed(name string) []*types.Outbound {
	var out []*types.Outbound
	for _, ev := range c.Events() {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *FakeConnection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// WaitFor polls until an event named name has been recorded or timeout elapses.
func (c *FakeConnection) WaitFor(name string, timeout time.Duration) (*types.Outbound, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if evs := c.EventsNamed(name); len(evs) > 0 {
			return evs[len(evs)-1], true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// FakeDirectory is an in-memory UserDirectory.
type FakeDirectory struct {
	mu       sync.Mutex
	blocks   map[string][]string
	lastSeen map[string]time.Time
	failFor  map[string]error
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		blocks:   make(map[string][]string),
		lastSeen: make(map[string]time.Time),
		failFor:  make(map[string]error),
	}
}

// Block records that blocker blocks blocked.
func (d *FakeDirectory) Block(blocker, blocked string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocks[blocker] = append(d.blocks[blocker], blocked)
}

// Fail makes lookups for userID return err.
func (d *FakeDirectory) Fail(userID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFor[userID] = err
}

func (d *FakeDirectory) GetBlockList(ctx context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failFor[userID]; err != nil {
		return nil, err
	}
	out := make([]string, len(d.blocks[userID]))
	copy(out, d.blocks[userID])
	return out, nil
}

func (d *FakeDirectory) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failFor[userID]; err != nil {
		return err
	}
	d.lastSeen[userID] = at
	return nil
}

// LastSeen returns the stamped last-seen time of userID, if any.
func (d *FakeDirectory) LastSeen(userID string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.lastSeen[userID]
	return at, ok
}

// FakeRepository is an in-memory MessageRepository.
type FakeRepository struct {
	mu       sync.Mutex
	messages map[string]*types.Message
	err      error
}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{messages: make(map[string]*types.Message)}
}

// FailWith makes every call return err.
func (r *FakeRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *FakeRepository) StoreMessage(ctx context.Context, msg *types.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	if _, exists := r.messages[msg.ID]; exists {
		return fmt.Errorf("message %s already stored", msg.ID)
	}
	cp := *msg
	r.messages[msg.ID] = &cp
	return nil
}

func (r *FakeRepository) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	msg, ok := r.messages[messageID]
	if !ok {
		return nil, interfaces.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (r *FakeRepository) UpdateDeliveryState(ctx context.Context, messageID string, field types.DeliveryField, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return false, r.err
	}
	msg, ok := r.messages[messageID]
	if !ok {
		return false, interfaces.ErrMessageNotFound
	}

	stamp := at
	switch field {
	case types.FieldDelivered:
		if msg.Delivered {
			return false, nil
		}
		msg.Delivered, msg.DeliveredAt = true, &stamp
	case types.FieldRead:
		if msg.Read {
			return false, nil
		}
		msg.Read, msg.ReadAt = true, &stamp
	default:
		return false, fmt.Errorf("unknown delivery field %q", field)
	}
	return true, nil
}
