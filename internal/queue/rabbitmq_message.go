package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message wraps a Job with its RabbitMQ delivery information
type Message struct {
	Job         *Job
	DeliveryTag uint64
	// Acknowledger is the consuming channel; *amqp.Channel satisfies it.
	Acknowledger amqp.Acknowledger
}

var _ MessageInterface = (*Message)(nil)

// Ack acknowledges the message
func (m *Message) Ack() error {
	return m.Acknowledger.Ack(m.DeliveryTag, false)
}

// Nack negatively acknowledges the message. Without requeue the broker
// dead-letters it.
func (m *Message) Nack(requeue bool) error {
	return m.Acknowledger.Nack(m.DeliveryTag, false, requeue)
}

// GetJob returns the decoded job.
func (m *Message) GetJob() *Job {
	return m.Job
}
