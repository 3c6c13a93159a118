// Package receipts implements delivered/read acknowledgements: the first
// acknowledgement of each kind is persisted and reported back to the sender.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// Notifier delivers an event to every open connection of a user.
type Notifier interface {
	NotifyUser(userID string, event *types.Outbound) int
}

// Outcome describes what an acknowledgement did.
type Outcome int

const (
	// OutcomeApplied means the flag transitioned and the sender was told.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadySet means the flag was already true.
	OutcomeAlreadySet
	// OutcomeNotFound means no message has the id.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadySet:
		return "already_set"
	case OutcomeNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Service processes acknowledgements against the message repository.
type Service struct {
	repo     interfaces.MessageRepository
	notifier Notifier
	now      func() time.Time
}

func NewService(repo interfaces.MessageRepository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AcknowledgeDelivered marks a message delivered.
func (s *Service) AcknowledgeDelivered(ctx context.Context, messageID string) (Outcome, error) {
	return s.acknowledge(ctx, messageID, types.FieldDelivered)
}

// AcknowledgeRead marks a message read. It does not imply delivered.
func (s *Service) AcknowledgeRead(ctx context.Context, messageID string) (Outcome, error) {
	return s.acknowledge(ctx, messageID, types.FieldRead)
}

func (s *Service) acknowledge(ctx context.Context, messageID string, field types.DeliveryField) (Outcome, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, interfaces.ErrMessageNotFound) {
			log.Printf("Receipts: %s ack for unknown message %s", field, messageID)
			return OutcomeNotFound, nil
		}
		return 0, fmt.Errorf("load message %s: %w", messageID, err)
	}

	if msg.Flag(field) {
		return OutcomeAlreadySet, nil
	}

	at := s.now()
	applied, err := s.repo.UpdateDeliveryState(ctx, messageID, field, at)
	if err != nil {
		if errors.Is(err, interfaces.ErrMessageNotFound) {
			return OutcomeNotFound, nil
		}
		return 0, fmt.Errorf("update %s state of %s: %w", field, messageID, err)
	}
	if !applied {
		return OutcomeAlreadySet, nil
	}

	s.notifier.NotifyUser(msg.SenderID, types.NewReceipt(messageID, field, at))
	return OutcomeApplied, nil
}
