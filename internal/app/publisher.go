package app

import (
	"context"
	"sync"
	"time"

	"domu/internal/amqp"
	"domu/internal/log"
)

const (
	publishQueueSize = 64
	drainTimeout     = 10 * time.Second
)

// publisher sends change events from a single goroutine so a slow broker
// never holds up the collection that produced them. Events keep the order
// they were queued in.
type publisher struct {
	bus    EventBus
	logger *log.Logger
	queue  chan *amqp.ChangeEvent
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newPublisher(bus EventBus, logger *log.Logger) *publisher {
	p := &publisher{
		bus:    bus,
		logger: logger,
		queue:  make(chan *amqp.ChangeEvent, publishQueueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// enqueue hands ev to the publishing goroutine. It never blocks: when the
// queue is full or closed the event is dropped and logged.
func (p *publisher) enqueue(ev *amqp.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("Change event queue full, dropping event",
			log.FieldOperation, log.OpPublish,
			log.FieldResource, ev.Resource,
			log.FieldRecordID, ev.ID)
	}
}

func (p *publisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.bus.PublishChange(ctx, ev)
		cancel()
		if err != nil {
			p.logger.Warn("Failed to publish change event",
				log.FieldOperation, log.OpPublish,
				log.FieldResource, ev.Resource,
				log.FieldRecordID, ev.ID,
				log.FieldError, err)
		}
	}
}

// close stops accepting events and waits up to timeout for the queued ones
// to be sent.
func (p *publisher) close(timeout time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(timeout):
		p.logger.Warn("Timed out sending queued change events", log.FieldOperation, log.OpPublish)
	}
}
