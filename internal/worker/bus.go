package worker

import (
	"context"
	"sync"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/logger"
)

// busBufferSize is the capacity of the async event channel. Events are
// dropped when it is full so publishers never block.
const busBufferSize = 256

// busHandler processes one event published on the bus.
type busHandler func(ctx context.Context, ev *Event)

// Bus delivers events published from transport callbacks (MQTT, the
// connectivity monitor) on its own goroutine.
type Bus struct {
	handler  busHandler
	log      logger.Logger
	eventCh  chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBus creates a bus and starts its worker goroutine.
func NewBus(handler busHandler, log logger.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		handler: handler,
		log:     log.Module("bus"),
		eventCh: make(chan *Event, busBufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go b.processLoop()
	return b
}

// Publish enqueues ev. It reports false when the bus is stopped or full.
func (b *Bus) Publish(ev *Event) bool {
	select {
	case <-b.stopCh:
		return false
	default:
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- ev:
		return true
	default:
		b.log.Warn("event bus full, dropping event", logger.String("event", string(ev.Kind)))
		return false
	}
}

// Stop drains queued events and waits for the worker goroutine to exit.
// Safe to call multiple times.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.done
	b.cancel()
}

func (b *Bus) processLoop() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.eventCh:
			b.safeCall(ev)
		case <-b.stopCh:
			for {
				select {
				case ev := <-b.eventCh:
					b.safeCall(ev)
				default:
					return
				}
			}
		}
	}
}

// safeCall invokes the handler with panic recovery so one event cannot
// kill the bus goroutine.
func (b *Bus) safeCall(ev *Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("event bus handler panicked",
				logger.String("event", string(ev.Kind)),
				logger.Any("panic", rec))
		}
	}()
	b.handler(b.ctx, ev)
}
