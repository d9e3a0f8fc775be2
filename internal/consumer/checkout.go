// Package consumer reacts to checkout-completed events from the checkout collaborator.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CheckoutHandler clears the cart after a completed checkout.
type CheckoutHandler interface {
	CompleteCheckout(ev model.CheckoutEvent) bool
}

// CheckoutConsumer reads checkout-completed events and hands them to the cart.
type CheckoutConsumer struct {
	reader  MessageReader
	handler CheckoutHandler
	log     logrus.FieldLogger
}

// NewCheckoutReader creates a group reader on topic. A new group starts at the
// newest offset so events from before the agent started are not replayed.
func NewCheckoutReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MaxBytes:    1e6,
	})
}

// AgentGroupID returns the consumer group for one agent. Members of a group
// split the partitions between them, and every agent must see every event, so
// each agent joins a group of its own.
func AgentGroupID(prefix, sessionID string) string {
	if sessionID == "" {
		return prefix
	}
	return prefix + "-" + sessionID
}

// NewCheckoutConsumer creates a consumer over reader.
func NewCheckoutConsumer(reader MessageReader, handler CheckoutHandler, log logrus.FieldLogger) *CheckoutConsumer {
	return &CheckoutConsumer{reader: reader, handler: handler, log: log}
}

// Run consumes until ctx is done.
func (c *CheckoutConsumer) Run(ctx context.Context) error {
	c.log.Info("Checkout consumer started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.processMessage(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.log.WithError(err).Warn("error reading checkout event")

			// back off so a dead broker does not spin the loop
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// Close closes the reader.
func (c *CheckoutConsumer) Close() error {
	return c.reader.Close()
}

func (c *CheckoutConsumer) processMessage(ctx context.Context) error {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	var event model.CheckoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.WithError(err).WithField("offset", m.Offset).Warn("error parsing checkout event")
		return nil
	}
	if event.UserID == "" && event.SessionID == "" {
		c.log.WithField("offset", m.Offset).Warn("checkout event without user or session, skipping")
		return nil
	}

	cleared := c.handler.CompleteCheckout(event)
	c.log.WithFields(logrus.Fields{
		"user_id":    event.UserID,
		"session_id": event.SessionID,
		"cleared":    cleared,
	}).Debug("checkout event handled")
	return nil
}
