package ports

import (
	"context"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

// AuthEventPublisher forwards audit events to the message broker.
// Publish must not wait on the broker; events are best-effort.
type AuthEventPublisher interface {
	Publish(ctx context.Context, event domain.AuthEvent) error
}
