package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultQueueName is the default queue name
	DefaultQueueName = "task_analysis_jobs"
	// DefaultDLQName is the default dead letter queue name
	DefaultDLQName = "task_analysis_jobs_dlq"
	// DefaultWaitQueueName holds delayed jobs when the delay plugin is missing
	DefaultWaitQueueName = "task_analysis_jobs_wait"
	// DefaultExchangeName is the default exchange name
	DefaultExchangeName = "task_jobs"
	// DefaultDelayedExchangeName is the default delayed exchange name (requires plugin)
	DefaultDelayedExchangeName = "task_jobs_delayed"

	routingKeyJobs  = "jobs"
	routingKeyDLQ   = "dlq"
	routingKeyDelay = "delay"
)

// ErrQueueClosed is returned by HealthCheck once the connection is gone.
var ErrQueueClosed = errors.New("rabbitmq connection closed")

// RabbitMQQueue implements JobQueue using RabbitMQ
type RabbitMQQueue struct {
	conn                *amqp.Connection
	channel             *amqp.Channel
	logger              *zap.Logger
	queueName           string
	dlqName             string
	waitQueueName       string
	exchangeName        string
	delayedExchangeName string
	delayedAvailable    bool
}

// NewRabbitMQQueue dials amqpURL and declares the exchanges and queues.
func NewRabbitMQQueue(amqpURL string, log *zap.Logger) (*RabbitMQQueue, error) {
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitMQQueue{
		conn:                conn,
		channel:             ch,
		logger:              log,
		queueName:           DefaultQueueName,
		dlqName:             DefaultDLQName,
		waitQueueName:       DefaultWaitQueueName,
		exchangeName:        DefaultExchangeName,
		delayedExchangeName: DefaultDelayedExchangeName,
	}

	if err := q.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup queues: %w", err)
	}

	return q, nil
}

func (q *RabbitMQQueue) setup() error {
	// The delayed exchange needs the rabbitmq_delayed_message_exchange plugin.
	err := q.channel.ExchangeDeclare(
		q.delayedExchangeName,
		"x-delayed-message",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	)
	if err == nil {
		q.delayedAvailable = true
	} else {
		// A failed declare closes the channel.
		if q.channel.IsClosed() {
			newCh, openErr := q.conn.Channel()
			if openErr != nil {
				return fmt.Errorf("failed to reopen channel after delayed exchange error: %w", openErr)
			}
			q.channel = newCh
		}
		q.logger.Warn("rabbitmq_delayed_exchange_unavailable",
			zap.String("exchange", q.delayedExchangeName),
			zap.Error(err),
		)
	}

	if err := q.channel.ExchangeDeclare(q.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := q.channel.QueueDeclare(q.dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := q.channel.QueueBind(q.dlqName, routingKeyDLQ, q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	queueArgs := amqp.Table{
		"x-dead-letter-exchange":    q.exchangeName,
		"x-dead-letter-routing-key": routingKeyDLQ,
	}
	if _, err := q.channel.QueueDeclare(q.queueName, true, false, false, false, queueArgs); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := q.channel.QueueBind(q.queueName, routingKeyJobs, q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to exchange: %w", err)
	}

	if q.delayedAvailable {
		if err := q.channel.QueueBind(q.queueName, routingKeyJobs, q.delayedExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to delayed exchange: %w", err)
		}
		return nil
	}

	// Without the plugin, delayed jobs wait in a queue with no consumer and
	// dead-letter into the main queue when their TTL runs out. TTLs expire
	// only at the head, so mixed delays may fire late but never early.
	waitArgs := amqp.Table{
		"x-dead-letter-exchange":    q.exchangeName,
		"x-dead-letter-routing-key": routingKeyJobs,
	}
	if _, err := q.channel.QueueDeclare(q.waitQueueName, true, false, false, false, waitArgs); err != nil {
		return fmt.Errorf("failed to declare wait queue: %w", err)
	}
	if err := q.channel.QueueBind(q.waitQueueName, routingKeyDelay, q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind wait queue: %w", err)
	}
	return nil
}

// Enqueue adds a job to the queue
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	exchange, routingKey, publishing, err := q.buildPublishing(job, time.Now())
	if err != nil {
		return err
	}

	if err := q.channel.PublishWithContext(ctx, exchange, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	q.logger.Debug("job_enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int64("task_id", job.TaskID),
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
	)
	return nil
}

// buildPublishing picks the route and message properties for job.
func (q *RabbitMQQueue) buildPublishing(job *Job, now time.Time) (string, string, amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", "", amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
	}

	var delay time.Duration
	if job.NotBefore != nil {
		delay = job.NotBefore.Sub(now)
	}

	switch {
	case delay > 0 && q.delayedAvailable:
		publishing.Headers = amqp.Table{"x-delay": delay.Milliseconds()}
		return q.delayedExchangeName, routingKeyJobs, publishing, nil
	case delay > 0:
		publishing.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
		return q.exchangeName, routingKeyDelay, publishing, nil
	}

	if job.NotAfter != nil {
		if ttl := job.NotAfter.Sub(now); ttl > 0 {
			publishing.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
		}
	}
	return q.exchangeName, routingKeyJobs, publishing, nil
}

// Consume returns a channel of messages from the queue using async delivery
// on a dedicated AMQP channel.
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}

	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		q.queueName,
		"",    // consumer tag (empty = auto-generate)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() { _ = consumeCh.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- fmt.Errorf("delivery channel closed")
					return
				}

				msg, err := q.accept(delivery)
				if err != nil {
					select {
					case errChan <- err:
					default:
						q.logger.Warn("job_rejected", zap.Error(err))
					}
					continue
				}
				if msg == nil {
					continue
				}

				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// accept decodes a delivery. Undecodable and expired jobs are dead-lettered;
// jobs delivered early go back on the queue. A nil message means the
// delivery was settled here.
func (q *RabbitMQQueue) accept(delivery amqp.Delivery) (*Message, error) {
	var job Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		_ = delivery.Nack(false, false)
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if job.IsExpired() {
		q.logger.Info("job_expired",
			zap.String("job_id", job.ID.String()),
			zap.Int64("task_id", job.TaskID),
		)
		_ = delivery.Nack(false, false)
		return nil, nil
	}

	if !job.ShouldProcess() {
		_ = delivery.Nack(false, true)
		return nil, nil
	}

	return &Message{
		Job:          &job,
		DeliveryTag:  delivery.DeliveryTag,
		Acknowledger: delivery.Acknowledger,
	}, nil
}

// PurgeOlderThan drains dead-lettered jobs created before now-retention. The
// DLQ is FIFO, so it stops at the first younger message.
func (q *RabbitMQQueue) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open purge channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	cutoff := time.Now().Add(-retention)
	purged := 0
	for ctx.Err() == nil {
		delivery, ok, err := ch.Get(q.dlqName, false)
		if err != nil {
			return purged, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			return purged, nil
		}
		if !delivery.Timestamp.IsZero() && delivery.Timestamp.After(cutoff) {
			if err := delivery.Nack(false, true); err != nil {
				return purged, fmt.Errorf("failed to return DLQ message: %w", err)
			}
			return purged, nil
		}
		if err := delivery.Ack(false); err != nil {
			return purged, fmt.Errorf("failed to ack DLQ message: %w", err)
		}
		purged++
	}
	return purged, ctx.Err()
}

// HealthCheck reports whether the connection and publish channel are open.
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.conn == nil || q.conn.IsClosed() {
		return ErrQueueClosed
	}
	if q.channel == nil || q.channel.IsClosed() {
		return fmt.Errorf("rabbitmq publish channel closed")
	}
	return nil
}

// Close closes the queue connection
func (q *RabbitMQQueue) Close() error {
	var err error
	if q.channel != nil {
		err = q.channel.Close()
	}
	if q.conn != nil {
		if closeErr := q.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
