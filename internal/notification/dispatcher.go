package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/project-access/internal/core/events"
)

// Dispatcher is a Notifier that hands notifications to the event bus, so the
// caller returns before delivery happens. Delivery runs through the wrapped
// Notifier on a bus goroutine; its failures are logged by the bus.
type Dispatcher struct {
	bus    *events.EventBus
	logger *slog.Logger
}

func NewDispatcher(bus *events.EventBus, delivery Notifier, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{bus: bus, logger: logger}
	d.register(delivery)
	return d
}

func (d *Dispatcher) register(delivery Notifier) {
	d.bus.Subscribe(events.EventTypeTeamAssigned, func(ctx context.Context, e events.Event) error {
		c, err := teamChangeFrom(e)
		if err != nil {
			return err
		}
		return delivery.NotifyTeamAssignment(ctx, c)
	})
	d.bus.Subscribe(events.EventTypeTeamRemoved, func(ctx context.Context, e events.Event) error {
		c, err := teamChangeFrom(e)
		if err != nil {
			return err
		}
		return delivery.NotifyTeamRemoval(ctx, c)
	})
	d.bus.Subscribe(events.EventTypePasswordResetRequested, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(*events.PasswordResetRequestedEvent)
		if !ok {
			return fmt.Errorf("expected PasswordResetRequestedEvent, got %T", e)
		}
		r, ok := ev.Subject.(PasswordReset)
		if !ok {
			return fmt.Errorf("unexpected password reset subject %T", ev.Subject)
		}
		return delivery.NotifyPasswordReset(ctx, r)
	})
}

func (d *Dispatcher) NotifyTeamAssignment(ctx context.Context, c TeamChange) error {
	return d.bus.Publish(ctx, events.NewTeamMembershipEvent(events.EventTypeTeamAssigned, c.User.UserID, c.ServiceID, c))
}

func (d *Dispatcher) NotifyTeamRemoval(ctx context.Context, c TeamChange) error {
	return d.bus.Publish(ctx, events.NewTeamMembershipEvent(events.EventTypeTeamRemoved, c.User.UserID, c.ServiceID, c))
}

func (d *Dispatcher) NotifyPasswordReset(ctx context.Context, r PasswordReset) error {
	return d.bus.Publish(ctx, events.NewPasswordResetRequestedEvent(r.User.UserID, r))
}

func teamChangeFrom(e events.Event) (TeamChange, error) {
	ev, ok := e.(*events.TeamMembershipEvent)
	if !ok {
		return TeamChange{}, fmt.Errorf("expected TeamMembershipEvent, got %T", e)
	}
	c, ok := ev.Subject.(TeamChange)
	if !ok {
		return TeamChange{}, fmt.Errorf("unexpected team change subject %T", ev.Subject)
	}
	return c, nil
}
