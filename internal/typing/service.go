package typing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// ErrAnonymousSender is returned when an unidentified connection emits a typing event.
var ErrAnonymousSender = errors.New("typing events require an identified sender")

// Notifier delivers an event to every open connection of a user and reports
// how many connections accepted it.
type Notifier interface {
	NotifyUser(userID string, event *types.Outbound) int
}

// Service applies typing transitions and emits notifications.
type Service struct {
	state     *State
	directory interfaces.UserDirectory
	notifier  Notifier
}

func NewService(directory interfaces.UserDirectory, notifier Notifier) *Service {
	return &Service{
		state:     NewState(),
		directory: directory,
		notifier:  notifier,
	}
}

// State exposes the underlying typing table.
func (s *Service) State() *State { return s.state }

// StartTyping marks sender as typing to recipient and, unless a block exists
// in either direction, tells the recipient. Switching to a new recipient tells
// the previous one that typing stopped.
func (s *Service) StartTyping(ctx context.Context, sender, recipient string) error {
	if sender == "" {
		return ErrAnonymousSender
	}

	previous, switched := s.state.Start(sender, recipient)
	if switched {
		if _, err := s.notifyIfAllowed(ctx, sender, previous, types.StopTypingEvent(sender)); err != nil {
			log.Printf("Typing: failed to notify %s that %s stopped: %v", previous, sender, err)
		}
	}

	_, err := s.notifyIfAllowed(ctx, sender, recipient, types.TypingEvent(sender))
	return err
}

// StopTyping clears the entry if it points at recipient and notifies the
// recipient under the same block rule.
func (s *Service) StopTyping(ctx context.Context, sender, recipient string) error {
	if sender == "" {
		return ErrAnonymousSender
	}

	if !s.state.Stop(sender, recipient) {
		return nil
	}

	_, err := s.notifyIfAllowed(ctx, sender, recipient, types.StopTypingEvent(sender))
	return err
}

// Disconnect clears sender's entry after a disconnect and tells the recipient
// typing stopped. No block check is applied.
func (s *Service) Disconnect(sender string) {
	if sender == "" {
		return
	}

	recipient, ok := s.state.Clear(sender)
	if !ok {
		return
	}
	s.notifier.NotifyUser(recipient, types.StopTypingEvent(sender))
}

// notifyIfAllowed sends event to recipient unless either user blocks the
// other. Any directory failure suppresses the event.
func (s *Service) notifyIfAllowed(ctx context.Context, sender, recipient string, event *types.Outbound) (bool, error) {
	blocked, err := s.blocked(ctx, sender, recipient)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}

	s.notifier.NotifyUser(recipient, event)
	return true, nil
}

func (s *Service) blocked(ctx context.Context, sender, recipient string) (bool, error) {
	senderBlocks, err := s.directory.GetBlockList(ctx, sender)
	if err != nil {
		return false, fmt.Errorf("block list for %s: %w", sender, err)
	}
	recipientBlocks, err := s.directory.GetBlockList(ctx, recipient)
	if err != nil {
		return false, fmt.Errorf("block list for %s: %w", recipient, err)
	}

	return slices.Contains(senderBlocks, recipient) || slices.Contains(recipientBlocks, sender), nil
}
