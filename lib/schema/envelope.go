// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// DeliveryOptions control how the transport publishes an envelope.
type DeliveryOptions struct {
	// QoS is the MQTT quality of service level (0, 1, or 2).
	QoS byte

	// Retained asks the broker to keep the message for late
	// subscribers.
	Retained bool
}

// AtLeastOnce is the delivery used for telemetry the queen must not
// miss.
var AtLeastOnce = DeliveryOptions{QoS: 1}

// Envelope is one outbound message. Payload is owned by the envelope
// once queued; callers must not modify it afterwards.
type Envelope struct {
	Topic   string
	Payload []byte
	Options DeliveryOptions
}

// Size is the number of bytes the envelope accounts for in a bounded
// queue: the topic plus the payload.
func (e Envelope) Size() int {
	return len(e.Topic) + len(e.Payload)
}
