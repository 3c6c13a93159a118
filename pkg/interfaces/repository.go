package interfaces

import (
	"context"
	"time"

	"chathub/pkg/types"
)

// MessageRepository persists messages and their delivery state.
type MessageRepository interface {
	// StoreMessage persists a new message.
	StoreMessage(ctx context.Context, message *types.Message) error

	// GetMessage returns ErrMessageNotFound when no message has the id.
	GetMessage(ctx context.Context, messageID string) (*types.Message, error)

	// UpdateDeliveryState sets field to true and stamps its timestamp, but
	// only while the field is still false. applied reports whether this call
	// performed the transition.
	UpdateDeliveryState(ctx context.Context, messageID string, field types.DeliveryField, at time.Time) (applied bool, err error)
}

// UserDirectory resolves block relationships and presence bookkeeping.
type UserDirectory interface {
	// GetBlockList returns the ids blocked by userID, or ErrUserNotFound.
	GetBlockList(ctx context.Context, userID string) ([]string, error)

	// UpdateLastSeen stamps the user's last-seen time.
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}
