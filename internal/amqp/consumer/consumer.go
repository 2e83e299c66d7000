package simpleconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Fuchsoria/formula-bandit/internal/bandit"
	"github.com/streadway/amqp"
)

var (
	ErrBadMessage     = errors.New("bad reward message")
	ErrChannelClosed  = errors.New("deliveries channel closed")
	ErrMissingFormula = fmt.Errorf("%w: formula is required", ErrBadMessage)
)

// RewardMessage is the body of a reward queue message.
type RewardMessage struct {
	ContextKey string                 `json:"context_key"`
	Formula    string                 `json:"formula"`
	Reward     float64                `json:"reward"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type Updater interface {
	UpdateModel(ctx context.Context, contextKey string, formula string, reward float64, metadata map[string]interface{}) bandit.UpdateResult
}

// Consumer applies rewards read from a queue to the bandit.
type Consumer struct {
	name    string
	conn    *amqp.Connection
	logger  Logger
	updater Updater
}

func New(name string, conn *amqp.Connection, logger Logger, updater Updater) *Consumer {
	return &Consumer{name: name, conn: conn, logger: logger, updater: updater}
}

// Handle decodes one message body and applies it.
func (c *Consumer) Handle(ctx context.Context, body []byte) (bandit.UpdateResult, error) {
	var msg RewardMessage

	if err := json.Unmarshal(body, &msg); err != nil {
		return bandit.UpdateResult{}, fmt.Errorf("%w: %s", ErrBadMessage, err.Error())
	}

	if msg.Formula == "" {
		return bandit.UpdateResult{}, ErrMissingFormula
	}

	if msg.ContextKey == "" {
		msg.ContextKey = bandit.DefaultContextKey
	}

	return c.updater.UpdateModel(ctx, msg.ContextKey, msg.Formula, msg.Reward, msg.Metadata), nil
}

// Run consumes until ctx is done or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("cannot open amqp channel, %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("cannot declare queue %s, %w", c.name, err)
	}

	deliveries, err := ch.Consume(c.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("cannot consume queue %s, %w", c.name, err)
	}

	c.logger.Info("reward consumer started", "queue", c.name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrChannelClosed
			}

			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	res, err := c.Handle(ctx, d.Body)
	if err != nil {
		c.logger.Warn("dropping reward message", "queue", c.name, "error", err)

		if nerr := d.Nack(false, false); nerr != nil {
			c.logger.Error("cannot nack reward message", "error", nerr)
		}

		return
	}

	c.logger.Info("reward applied", "model", res.Model, "alpha", res.Alpha, "beta", res.Beta)

	if err := d.Ack(false); err != nil {
		c.logger.Error("cannot ack reward message", "error", err)
	}
}
