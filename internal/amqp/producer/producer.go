package simpleproducer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Fuchsoria/formula-bandit/internal/storage"
	"github.com/streadway/amqp"
)

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Producer publishes audit entries to a durable queue.
type Producer struct {
	name    string
	conn    *amqp.Connection
	channel channel
}

func New(name string, conn *amqp.Connection) *Producer {
	return &Producer{name: name, conn: conn}
}

func (p *Producer) Connect() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("cannot open amqp channel, %w", err)
	}

	if _, err := ch.QueueDeclare(p.name, true, false, false, false, nil); err != nil {
		_ = ch.Close()

		return fmt.Errorf("cannot declare queue %s, %w", p.name, err)
	}

	p.channel = ch

	return nil
}

func (p *Producer) Publish(body []byte) error {
	if p.channel == nil {
		return fmt.Errorf("producer %s is not connected", p.name)
	}

	err := p.channel.Publish("", p.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("cannot publish to %s, %w", p.name, err)
	}

	return nil
}

// InsertAuditLog lets the producer act as an audit sink.
func (p *Producer) InsertAuditLog(ctx context.Context, entry storage.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cannot encode audit entry, %w", err)
	}

	return p.Publish(body)
}

func (p *Producer) Close() error {
	if p.channel == nil {
		return nil
	}

	return p.channel.Close()
}
