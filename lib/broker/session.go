// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pheromon/antagent/lib/reply"
	"github.com/pheromon/antagent/lib/schema"
	"github.com/pheromon/antagent/lib/secret"
)

// disconnectQuiesce is how long Disconnect lets in-flight work finish,
// in milliseconds.
const disconnectQuiesce = 250

// Handler runs one command. *router.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, raw, replyTopic string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, raw, replyTopic string)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, raw, replyTopic string) { f(ctx, raw, replyTopic) }

// Sender queues an outbound message. *reply.Port satisfies it.
type Sender interface {
	Send(topic string, payload []byte, options schema.DeliveryOptions)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(topic string, payload []byte, options schema.DeliveryOptions)

// Send calls f.
func (f SenderFunc) Send(topic string, payload []byte, options schema.DeliveryOptions) {
	f(topic, payload, options)
}

// Config describes the broker and the session.
type Config struct {
	// URL is the broker, e.g. tcp://queen.local:1883.
	URL string

	// Identity is the ant id, used as client id and in topics.
	Identity string

	Username string

	// Password is read on every connect attempt and never copied
	// into the options.
	Password *secret.Buffer

	KeepAlive            time.Duration
	MaxReconnectInterval time.Duration
	ConnectTimeout       time.Duration
}

// client is the part of mqtt.Client the session uses.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token
}

// Session owns the MQTT connection.
type Session struct {
	client    client
	identity  string
	handler   Handler
	sender    Sender
	logger    *slog.Logger
	announced atomic.Bool

	// base is the context handed to command handlers. It is set by
	// Run. Once stopped is set no new handler starts.
	mu      sync.Mutex
	base    context.Context
	stopped bool

	inflight sync.WaitGroup
}

// New builds a Session on a paho client. Nothing connects until Run.
func New(config Config, handler Handler, sender Sender, logger *slog.Logger) *Session {
	session := newSession(nil, config.Identity, handler, sender, logger)

	options := mqtt.NewClientOptions().
		AddBroker(config.URL).
		SetClientID(config.Identity).
		SetCleanSession(false).
		SetKeepAlive(config.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(config.MaxReconnectInterval).
		SetMaxReconnectInterval(config.MaxReconnectInterval).
		SetConnectTimeout(config.ConnectTimeout).
		SetOrderMatters(false).
		SetCredentialsProvider(func() (string, string) {
			if config.Password == nil {
				return config.Username, ""
			}
			return config.Username, config.Password.String()
		}).
		SetOnConnectHandler(func(mqtt.Client) { session.onConnect() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("offline", "error", err)
		}).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			logger.Debug("reconnecting to broker")
		})

	session.client = mqtt.NewClient(options)
	return session
}

func newSession(client client, identity string, handler Handler, sender Sender, logger *slog.Logger) *Session {
	return &Session{
		client:   client,
		identity: identity,
		handler:  handler,
		sender:   sender,
		logger:   logger,
		base:     context.Background(),
	}
}

// Run connects, then holds the session until ctx is cancelled. It
// waits for in-flight command handlers before disconnecting.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	// With connect retry on, the token completes only once the first
	// connection succeeds.
	token := s.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connecting to broker: %w", err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.inflight.Wait()
	s.client.Disconnect(disconnectQuiesce)
	s.logger.Info("disconnected from broker")
	return nil
}

// Connected reports whether the session is up.
func (s *Session) Connected() bool {
	return s.client.IsConnectionOpen()
}

// Publish sends one envelope and waits for the broker's
// acknowledgement (QoS 1) or the write (QoS 0).
func (s *Session) Publish(ctx context.Context, envelope schema.Envelope) error {
	if !s.client.IsConnectionOpen() {
		return reply.ErrNotConnected
	}
	token := s.client.Publish(envelope.Topic, envelope.Options.QoS, envelope.Options.Retained, envelope.Payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onConnect subscribes and, once per process, announces the ant.
func (s *Session) onConnect() {
	s.logger.Info("connected to the broker", "id", s.identity)

	filters := map[string]byte{
		schema.BroadcastFilter:          schema.AtLeastOnce.QoS,
		schema.DirectFilter(s.identity): schema.AtLeastOnce.QoS,
	}
	token := s.client.SubscribeMultiple(filters, func(_ mqtt.Client, message mqtt.Message) {
		s.onMessage(message.Topic(), message.Payload())
	})
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.logger.Error("subscribing", "error", err)
		}
	}()

	if s.announced.CompareAndSwap(false, true) {
		s.sender.Send(schema.InitTopic(s.identity), nil, schema.DeliveryOptions{})
	}
}

// onMessage dispatches one command on its own goroutine.
func (s *Session) onMessage(topic string, payload []byte) {
	raw := string(payload)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Debug("dropping command after shutdown", "topic", topic, "command", raw)
		return
	}
	ctx := s.base
	s.inflight.Add(1)
	s.mu.Unlock()

	s.logger.Debug("command received", "topic", topic, "command", raw)
	go func() {
		defer s.inflight.Done()
		s.handler.Handle(ctx, raw, schema.CommandResultTopic(s.identity))
	}()
}
