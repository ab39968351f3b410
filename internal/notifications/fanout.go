package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// Fanout publishes request events. With Redis every instance, this one
// included, receives them through its subscriber; without Redis the local hub
// is the only audience.
type Fanout struct {
	hub      *RequestHub
	notifier *Notifier
}

// NewFanout returns a Fanout. notifier may be nil.
func NewFanout(hub *RequestHub, notifier *Notifier) *Fanout {
	return &Fanout{hub: hub, notifier: notifier}
}

// Publish delivers event to requestID's channel. A Redis failure falls back
// to local delivery.
func (f *Fanout) Publish(ctx context.Context, requestID uint, event ChatEvent) error {
	event.RequestID = requestID
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	if f.notifier.Enabled() {
		err := f.notifier.PublishRequestEvent(ctx, requestID, string(payload))
		if err == nil {
			return nil
		}
		log.Printf("Fanout: redis publish for request %d failed, delivering locally: %v", requestID, err)
	}

	f.hub.BroadcastRaw(requestID, payload)
	return nil
}
