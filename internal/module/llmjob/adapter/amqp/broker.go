package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// Broker は RabbitMQ を使ったジョブの配送口です
// キューは durable、メッセージは persistent で、ワーカーは手動 ack で受信します
type Broker struct {
	conn     *amqp.Connection
	queue    string
	prefetch int
	log      *slog.Logger

	mu      sync.Mutex
	publish *amqp.Channel
}

var (
	_ domain.Dispatcher = (*Broker)(nil)
	_ domain.Consumer   = (*Broker)(nil)
)

// Dial は RabbitMQ に接続し、キューを宣言します
func Dial(url, queue string, prefetch int, log *slog.Logger) (*Broker, error) {
	if log == nil {
		log = slog.Default()
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareQueue(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Broker{
		conn:     conn,
		queue:    queue,
		prefetch: prefetch,
		log:      log,
		publish:  ch,
	}, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// Publish はメッセージを JSON で送信します
func (b *Broker) Publish(ctx context.Context, msg domain.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode job message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.publish.PublishWithContext(ctx,
		"",      // exchange
		b.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.JobID,
			Timestamp:    time.Now(),
			Type:         string(msg.JobType),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", msg.JobID, err)
	}
	return nil
}

// Consume は専用チャネルでキューを購読します
// 解析できないメッセージは再投入せずに破棄します
func (b *Broker) Consume(ctx context.Context) (<-chan domain.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	if err := declareQueue(ch, b.queue); err != nil {
		_ = ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(
		b.queue, // queue
		"",      // consumer
		false,   // autoAck
		false,   // exclusive
		false,   // noLocal
		false,   // noWait
		nil,     // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	out := make(chan domain.Delivery)
	go func() {
		defer close(out)
		defer ch.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					b.log.Warn("Delivery channel closed by broker", "queue", b.queue)
					return
				}

				var msg domain.JobMessage
				if err := json.Unmarshal(d.Body, &msg); err != nil {
					b.log.Error("Discarding malformed job message", "error", err)
					_ = d.Nack(false, false)
					continue
				}

				delivery := domain.Delivery{
					Message: msg,
					Ack:     func() error { return d.Ack(false) },
					Nack:    func(requeue bool) error { return d.Nack(false, requeue) },
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

// Close は接続を閉じます
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publish != nil {
		_ = b.publish.Close()
	}
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn.Close()
	}
	return nil
}
