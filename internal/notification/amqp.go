package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func dial(raw string) (*amqp.Connection, error) {
	clean, err := sanitizeAMQPURL(raw)
	if err != nil {
		return nil, err
	}
	return amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}

// AMQPTransport publishes messages to a durable topic exchange.
type AMQPTransport struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
}

func NewAMQPTransport(amqpURL, exchange string, log *zap.Logger) (*AMQPTransport, error) {
	conn, err := dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPTransport{conn: conn, channel: ch, exchange: exchange, log: log.Named("notification.amqp")}, nil
}

func (t *AMQPTransport) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	err = t.channel.PublishWithContext(ctx, t.exchange, RoutingKeyEmail, false, false, publishing)
	if err == nil {
		return nil
	}

	// One reopen-and-retry for a channel closed by the broker.
	t.log.Warn("publish failed, reopening channel", zap.Error(err))
	ch, chErr := t.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("publish: %w", err)
	}
	t.channel = ch
	if err := declareExchange(ch, t.exchange); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return t.channel.PublishWithContext(ctx, t.exchange, RoutingKeyEmail, false, false, publishing)
}

func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.channel != nil {
		_ = t.channel.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
