package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/standards-console/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// Header names set on every change event message.
const (
	HeaderKind  = "Console-Kind"
	HeaderMsgID = comms.MsgIdHdr
)

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalChangeSubject overrides the global change event subject (CONSOLE_CHANGE_EVENT_SUBJECT).
	GlobalChangeSubject string
}

// CommsPublisher publishes configuration change events to COMMS subjects.
type CommsPublisher struct {
	nc                  *comms.Conn
	globalChangeSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc, globalChangeSubject: commsutil.SubjectChangeEvent}
	if opts != nil && opts.GlobalChangeSubject != "" {
		p.globalChangeSubject = opts.GlobalChangeSubject
	}
	return p
}

// MessageID identifies one revision of one resource; stream consumers use it
// to drop duplicates.
func MessageID(event *ConfigChangedEvent) string {
	return fmt.Sprintf("%s:%s:%d", event.Kind, event.ID, event.Revision)
}

// PublishChanged publishes the event to the per-resource subject and to the
// global change subject. Both publishes are attempted.
func (p *CommsPublisher) PublishChanged(_ context.Context, event *ConfigChangedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	var errs []error
	for _, subject := range []string{commsutil.BuildChangeSubject(event.Kind, event.ID), p.globalChangeSubject} {
		msg := comms.NewMsg(subject)
		msg.Data = data
		msg.Header.Set(HeaderKind, event.Kind)
		msg.Header.Set(HeaderMsgID, MessageID(event))
		if err := p.nc.PublishMsg(msg); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			errs = append(errs, fmt.Errorf("%s: %w", subject, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s - publish %s change: %w", commsPublisherLogPrefix, event.Kind, errors.Join(errs...))
	}

	slog.Debug(fmt.Sprintf("%s - Published %s change for %s", commsPublisherLogPrefix, event.Kind, event.ID))
	return nil
}
