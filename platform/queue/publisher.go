package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/DedS3t/monopoly-arena/platform/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const QueueName = "game.events"

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialer func() (channel, func() error, error)

// Publisher writes game events to a durable RabbitMQ queue. The connection
// is opened on first use and reopened after a failure.
type Publisher struct {
	mu      sync.Mutex
	dial    dialer
	ch      channel
	close   func() error
	timeout time.Duration
	log     *logrus.Entry
}

func NewPublisher(url string) *Publisher {
	return newPublisher(func() (channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return ch, conn.Close, nil
	})
}

func newPublisher(d dialer) *Publisher {
	return &Publisher{
		dial:    d,
		timeout: 5 * time.Second,
		log:     logrus.WithField("component", "queue"),
	}
}

func (p *Publisher) connect() error {
	if p.ch != nil {
		return nil
	}
	ch, closeConn, err := p.dial()
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = closeConn()
		return fmt.Errorf("queue declare: %w", err)
	}
	p.ch, p.close = ch, closeConn
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.close != nil {
		_ = p.close()
	}
	p.ch, p.close = nil, nil
}

// Broadcast publishes e as a persistent JSON message.
func (p *Publisher) Broadcast(e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		p.log.WithError(err).Warn("publish skipped")
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, "", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At.UTC(),
		Type:         e.Name,
		Body:         body,
	})
	if err != nil {
		p.log.WithFields(logrus.Fields{"event": e.Name, "game_id": e.GameID}).WithError(err).Warn("publish failed")
		p.reset()
		return err
	}
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
