package events

import (
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/standards-console/pkg/commsutil"
)

const subscriberLogPrefix = "events:subscriber"

// Subscribe delivers the change events published on subject to fn. An empty
// subject subscribes to every granular change subject, which sees each event
// once. Undecodable messages are logged and skipped.
func Subscribe(nc *comms.Conn, subject string, fn func(*ConfigChangedEvent)) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectChangeEvent + ".>"
	}
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event ConfigChangedEvent
		if err := commsutil.DecodePayload(msg.Data, &event); err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping malformed event on %s: %v", subscriberLogPrefix, msg.Subject, err))
			return
		}
		if event.Kind == "" {
			event.Kind = msg.Header.Get(HeaderKind)
		}
		fn(&event)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", subscriberLogPrefix, subject, err)
	}
	return sub, nil
}
