package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer drains the notification queue into a delivering transport, usually
// a DirectTransport.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	next     Transport
	log      *zap.Logger

	wg   sync.WaitGroup
	stop context.CancelFunc
}

func NewConsumer(amqpURL, exchange, queue string, next Transport, log *zap.Logger) (*Consumer, error) {
	conn, err := dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &Consumer{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    queue,
		next:     next,
		log:      log.Named("notification.consumer"),
	}, nil
}

func (c *Consumer) Start() error {
	if err := declareExchange(c.ch, c.exchange); err != nil {
		return err
	}
	q, err := c.ch.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return err
	}
	if err := c.ch.QueueBind(q.Name, RoutingKeyEmail, c.exchange, false, nil); err != nil {
		return err
	}
	if err := c.ch.Qos(10, 0, false); err != nil {
		return err
	}
	deliveries, err := c.ch.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					c.log.Warn("delivery channel closed")
					return
				}
				c.dispatch(ctx, d)
			}
		}
	}()
	c.log.Info("notification consumer started", zap.String("queue", q.Name))
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	ack, requeue := c.Handle(ctx, d.Body)
	if ack {
		_ = d.Ack(false)
		return
	}
	_ = d.Nack(false, requeue)
}

// Handle reports whether the message is done. Undecodable messages are dropped;
// send failures are requeued.
func (c *Consumer) Handle(ctx context.Context, body []byte) (ack bool, requeue bool) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil || msg.Template == "" || len(msg.To) == 0 {
		c.log.Error("dropping malformed notification", zap.Error(err))
		return false, false
	}
	if err := c.next.Deliver(ctx, msg); err != nil {
		c.log.Warn("notification delivery failed, requeueing", zap.String("template", msg.Template), zap.Error(err))
		return false, true
	}
	return true, false
}

func (c *Consumer) Close() error {
	if c.stop != nil {
		c.stop()
	}
	c.wg.Wait()
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
