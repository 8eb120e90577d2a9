package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueEmailSender hands messages to a durable RabbitMQ queue; EmailQueueWorker
// delivers them. Send returning nil means the broker accepted the message.
type QueueEmailSender struct {
	url            string
	queue          string
	publishTimeout time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewQueueEmailSender(url, queue string, publishTimeout time.Duration) *QueueEmailSender {
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &QueueEmailSender{url: url, queue: queue, publishTimeout: publishTimeout}
}

func (q *QueueEmailSender) connection() (*amqp.Connection, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.conn != nil && !q.conn.IsClosed() {
		return q.conn, nil
	}
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}
	q.conn = conn
	return conn, nil
}

func (q *QueueEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	conn, err := q.connection()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", q.queue, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, q.publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(pubCtx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish email: %w", err)
	}
	return nil
}

// Close releases the broker connection.
func (q *QueueEmailSender) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil || q.conn.IsClosed() {
		return nil
	}
	return q.conn.Close()
}

// EmailQueueWorker drains the email queue into a concrete sender.
type EmailQueueWorker struct {
	url      string
	queue    string
	prefetch int
	sender   EmailSender
}

func NewEmailQueueWorker(url, queue string, prefetch int, sender EmailSender) *EmailQueueWorker {
	if prefetch <= 0 {
		prefetch = 10
	}
	return &EmailQueueWorker{url: url, queue: queue, prefetch: prefetch, sender: sender}
}

// Start runs the consumer with reconnect backoff until the returned stop func is called.
func (w *EmailQueueWorker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		backoff := time.Second
		for {
			conn, err := amqp.Dial(w.url)
			if err != nil {
				log.Printf("email-worker: failed to dial broker: %v; retrying in %s", err, backoff)
				if !sleepCtx(ctx, backoff) {
					return
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second

			err = w.consume(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			log.Printf("email-worker: consume loop ended: %v; reconnecting", err)
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (w *EmailQueueWorker) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		log.Printf("email-worker: set QoS failed: %v", err)
	}

	if _, err := ch.QueueDeclare(w.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	deliveries, err := ch.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := w.Handle(ctx, d.Body); err != nil {
				log.Printf("email-worker: handle message failed: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one queued message and sends it.
func (w *EmailQueueWorker) Handle(ctx context.Context, body []byte) error {
	var msg EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if msg.To == "" {
		return errors.New("queued email has no recipient")
	}
	return w.sender.Send(ctx, msg)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
