package bus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

const DefaultTick = 100 * time.Millisecond

// Directory lists the workers that can receive messages.
type Directory interface {
	Names() []string
}

// Mailbox stores delivered messages in a worker's working memory.
type Mailbox interface {
	AppendWorking(worker string, msg *task.Message) error
}

// Bus is a FIFO queue of inter-worker messages drained one per tick.
type Bus struct {
	mu        sync.Mutex
	queue     []*task.Message
	directory Directory
	mailbox   Mailbox
	publisher event.Publisher
	tick      time.Duration
	logger    zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewBus(directory Directory, mailbox Mailbox, publisher event.Publisher, tick time.Duration, logger zerolog.Logger) *Bus {
	if tick <= 0 {
		tick = DefaultTick
	}
	if publisher == nil {
		publisher = event.Discard
	}
	return &Bus{
		directory: directory,
		mailbox:   mailbox,
		publisher: publisher,
		tick:      tick,
		logger:    logger.With().Str("service", "bus").Logger(),
	}
}

// Send validates msg and enqueues it.
func (b *Bus) Send(msg *task.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	return nil
}

// Pending returns the queue depth.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Drain delivers at most one message. It reports whether a message was taken.
func (b *Bus) Drain(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return false
	}
	msg := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	b.mu.Unlock()

	if msg.Kind == task.KindBroadcast {
		for _, name := range b.directory.Names() {
			if name == msg.From {
				continue
			}
			b.deliver(name, msg)
		}
		return true
	}

	if !b.known(msg.To) {
		b.logger.Warn().
			Str("message_id", msg.ID.String()).
			Str("from", msg.From).
			Str("to", msg.To).
			Msg("dropping message for unknown worker")
		return true
	}
	b.deliver(msg.To, msg)
	return true
}

func (b *Bus) known(name string) bool {
	for _, n := range b.directory.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func (b *Bus) deliver(to string, msg *task.Message) {
	if err := b.mailbox.AppendWorking(to, msg); err != nil {
		b.logger.Warn().Err(err).
			Str("message_id", msg.ID.String()).
			Str("to", to).
			Msg("failed to deliver message")
		return
	}
	b.publisher.Publish(event.New(event.TypeMessageDelivered, to, map[string]any{
		"messageId":     msg.ID.String(),
		"from":          msg.From,
		"kind":          string(msg.Kind),
		"correlationId": msg.CorrelationID,
	}))
}

// Start drains one message per tick until Stop or ctx is cancelled.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(b.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.Drain(ctx)
			}
		}
	}()
	b.logger.Info().Dur("tick", b.tick).Msg("message bus started")
}

// Stop halts the drain loop and waits for it to exit.
func (b *Bus) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	b.logger.Info().Msg("message bus stopped")
}
