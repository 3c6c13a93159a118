// Package router ingests chat messages: it validates them, applies per-sender
// rate limits, persists them and hands them to the hub for fan-out.
package router

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

// Dispatcher queues a persisted message for delivery.
type Dispatcher interface {
	SendMessage(message *types.Message) error
}

type Router struct {
	repo        interfaces.MessageRepository
	dispatcher  Dispatcher
	rateLimiter *RateLimiter
	now         func() time.Time
}

// NewRouter creates a router. perMinute bounds messages per sender; zero disables it.
func NewRouter(repo interfaces.MessageRepository, dispatcher Dispatcher, perMinute int) *Router {
	return &Router{
		repo:        repo,
		dispatcher:  dispatcher,
		rateLimiter: NewRateLimiter(perMinute),
		now:         time.Now,
	}
}

// RouteMessage assigns the server-side id and timestamp, validates, persists
// and dispatches message. Client-supplied ids and delivery state are ignored.
func (r *Router) RouteMessage(ctx context.Context, message *types.Message) error {
	if message == nil {
		return ErrNilMessage
	}

	message.ID = uuid.New().String()
	message.CreatedAt = r.now().UTC()
	message.Delivered, message.DeliveredAt = false, nil
	message.Read, message.ReadAt = false, nil

	if err := message.Validate(); err != nil {
		return err
	}

	if !r.rateLimiter.Allow(message.SenderID) {
		return ErrRateLimitExceeded
	}

	if err := r.repo.StoreMessage(ctx, message); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	if err := r.dispatcher.SendMessage(message); err != nil {
		log.Printf("Message %s stored but not dispatched: %v", message.ID, err)
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	return nil
}

// CleanupRateLimits drops idle rate limiter state.
func (r *Router) CleanupRateLimits() int {
	return r.rateLimiter.Cleanup()
}

// RunCleanup calls CleanupRateLimits every interval until ctx is done.
func (r *Router) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.CleanupRateLimits(); n > 0 {
				log.Printf("Rate limiter dropped %d idle senders", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
