package alerting

import (
	"context"
	"errors"
	"fmt"
)

// Named pairs a notifier with the channel name used in logs and errors.
type Named struct {
	Channel  string
	Notifier Notifier
}

// Multi fans an alert out to every channel. A failing channel does not stop the rest.
type Multi struct {
	targets []Named
}

// NewMulti returns a fan-out notifier, or nil when there is nothing to notify.
func NewMulti(targets ...Named) Notifier {
	kept := make([]Named, 0, len(targets))
	for _, t := range targets {
		if t.Notifier != nil {
			kept = append(kept, t)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0].Notifier
	}
	return &Multi{targets: kept}
}

// Notify delivers to all channels and joins their errors.
func (m *Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Notifier.Notify(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Channel, err))
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Multi)(nil)
