package client

import "context"

type QueueMessage struct {
	Body    string
	Receipt string
}

// A common interface for queue clients regardless if it's a SQS, RabbitMQ, etc.
type QueueClient interface {
	SendMessage(ctx context.Context, messageBody string) error
	ReceiveMessages() (<-chan QueueMessage, error)
	DeleteMessage(receipt string) error
	// ReQueueMessage hands an unfinished message back to the broker so another
	// consumer (or the next run) picks it up.
	ReQueueMessage(receipt string) error
	Ping() error
	Stop() error
	GetQueueName() string
}

func NewQueueClient(amqpURI, queueName string) (QueueClient, error) {
	return NewRabbitMqClient(amqpURI, queueName)
}
