package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// ErrClosed はクローズ済みのキューへの操作エラー
var ErrClosed = errors.New("queue is closed")

// Channel はプロセス内でジョブを受け渡すキューです
// サーバとワーカーを同じプロセスで動かす場合に使います
type Channel struct {
	mu     sync.RWMutex
	ch     chan domain.JobMessage
	closed bool
}

// NewChannel は容量 size の新しい Channel を作成します
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 64
	}
	return &Channel{ch: make(chan domain.JobMessage, size)}
}

var (
	_ domain.Dispatcher = (*Channel)(nil)
	_ domain.Consumer   = (*Channel)(nil)
)

// Publish はメッセージを投入します。キューが満杯の間は ctx の終了まで待ちます
func (c *Channel) Publish(ctx context.Context, msg domain.JobMessage) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume は ctx が終了するかキューが閉じられるまでメッセージを配送します
func (c *Channel) Consume(ctx context.Context) (<-chan domain.Delivery, error) {
	out := make(chan domain.Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-c.ch:
				if !ok {
					return
				}
				d := domain.Delivery{
					Message: msg,
					Ack:     func() error { return nil },
					Nack: func(requeue bool) error {
						if !requeue {
							return nil
						}
						return c.Publish(context.WithoutCancel(ctx), msg)
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close はキューを閉じます。未配送のメッセージは破棄されます
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
