// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package sensing

import (
	"context"
	"log/slog"

	"github.com/pheromon/antagent/lib/schema"
)

// Sender queues an outbound message. *reply.Port satisfies it.
type Sender interface {
	Send(topic string, payload []byte, options schema.DeliveryOptions)
}

// Appender persists a measurement fragment. *measurelog.Log satisfies
// it.
type Appender interface {
	Append(fragment []byte) error
}

// Pump publishes engine events as telemetry for one agent identity.
type Pump struct {
	identity string
	sender   Sender
	log      Appender
	logger   *slog.Logger
}

// NewPump creates a Pump. log may be nil to skip local persistence.
func NewPump(identity string, sender Sender, log Appender, logger *slog.Logger) *Pump {
	return &Pump{identity: identity, sender: sender, log: log, logger: logger}
}

// Run handles events until the channel closes or ctx is cancelled.
func (p *Pump) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			p.Handle(event)
		}
	}
}

// Handle publishes one event.
func (p *Pump) Handle(event Event) {
	switch event.Type {
	case EventProcessed:
		p.logger.Info("wifi measurements received", "devices", event.Devices)
		payload := schema.EncodeMeasurement(event.Devices, event.Observed)
		if p.log != nil {
			if err := p.log.Append(payload); err != nil {
				p.logger.Error("writing measurement to file", "error", err)
			}
		}
		p.sender.Send(schema.MeasurementTopic(p.identity), payload, schema.AtLeastOnce)

	case EventMACDetected:
		p.logger.Debug("tracked address detected", "address", event.Address, "signal", event.Signal)
		payload := schema.EncodeSighting(event.Address, event.Signal, event.Observed)
		p.sender.Send(schema.TrackingTopic(p.identity), payload, schema.AtLeastOnce)

	case EventTransition:
		p.logger.Debug("wifi state transition", "from", event.From, "to", event.To)
		p.sender.Send(schema.WifiStatusTopic(p.identity), []byte(event.To), schema.DeliveryOptions{})

	case EventMonitorError:
		p.logger.Error("wifi detection error", "message", event.Message)
	}
}
