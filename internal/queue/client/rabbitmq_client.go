package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	prefetchCount = 1
	consumerTag   = "ledger-stream-service"
)

type RabbitMqClient struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queueName  string

	mu       sync.Mutex
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewRabbitMqClient(amqpURI, queueName string) (*RabbitMqClient, error) {
	conn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	// durable queue, messages survive a broker restart
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set qos on queue %s: %w", queueName, err)
	}

	return &RabbitMqClient{
		connection: conn,
		channel:    ch,
		queueName:  queueName,
		stopped:    make(chan struct{}),
	}, nil
}

func (c *RabbitMqClient) SendMessage(ctx context.Context, messageBody string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel.PublishWithContext(ctx, "", c.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         []byte(messageBody),
	})
}

// ReceiveMessages starts consuming with manual acknowledgement. The returned
// channel is closed when the client is stopped or the broker cancels the
// consumer.
func (c *RabbitMqClient) ReceiveMessages() (<-chan QueueMessage, error) {
	c.mu.Lock()
	deliveries, err := c.channel.Consume(c.queueName, consumerTag, false, false, false, false, nil)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to consume from queue %s: %w", c.queueName, err)
	}

	output := make(chan QueueMessage)
	go func() {
		defer close(output)
		for {
			select {
			case <-c.stopped:
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				msg := QueueMessage{Body: string(d.Body), Receipt: strconv.FormatUint(d.DeliveryTag, 10)}
				select {
				case output <- msg:
				case <-c.stopped:
					return
				}
			}
		}
	}()
	return output, nil
}

func (c *RabbitMqClient) DeleteMessage(receipt string) error {
	tag, err := strconv.ParseUint(receipt, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid receipt %q: %w", receipt, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel.Ack(tag, false)
}

func (c *RabbitMqClient) ReQueueMessage(receipt string) error {
	tag, err := strconv.ParseUint(receipt, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid receipt %q: %w", receipt, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel.Nack(tag, false, true)
}

func (c *RabbitMqClient) Ping() error {
	if c.connection.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	if c.channel.IsClosed() {
		return errors.New("rabbitmq channel is closed")
	}
	return nil
}

func (c *RabbitMqClient) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopped)
		c.mu.Lock()
		defer c.mu.Unlock()
		if chErr := c.channel.Close(); chErr != nil && !errors.Is(chErr, amqp.ErrClosed) {
			err = chErr
		}
		if connErr := c.connection.Close(); connErr != nil && !errors.Is(connErr, amqp.ErrClosed) {
			err = errors.Join(err, connErr)
		}
	})
	return err
}

func (c *RabbitMqClient) GetQueueName() string {
	return c.queueName
}
