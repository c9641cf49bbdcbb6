// Package server declares the interfaces to the durable stores the relay
// writes through. Persistence is best-effort: writes go through a bounded
// queue and are dropped, not retried, when the store cannot keep up.
package server

import (
	"log/slog"
	"sync"
)

// HistoryGateway is the durable, room-keyed message log.
type HistoryGateway interface {
	// Append stores one message for a room.
	Append(room string, msg Message) error
	// Recent returns up to limit messages for a room in chronological order.
	Recent(room string, limit int) ([]Message, error)
}

// PresenceGateway records join/leave times per (room, name).
type PresenceGateway interface {
	RecordJoin(room, name string) error
	RecordLeave(room, name string) error
}

// persister decouples gateway writes from the live broadcast path. Ops are
// executed by a single goroutine; enqueueing never blocks, and a full queue
// drops the op.
type persister struct {
	ops     chan func()
	done    chan struct{}
	closing sync.Once
	log     *slog.Logger
}

func newPersister(queueSize int, log *slog.Logger) *persister {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &persister{
		ops:  make(chan func(), queueSize),
		done: make(chan struct{}),
		log:  log,
	}
}

func (p *persister) run() {
	defer close(p.done)
	for op := range p.ops {
		op()
	}
}

func (p *persister) enqueue(op func()) {
	// Writes racing a shutdown are dropped rather than crashing the caller.
	defer func() {
		if recover() != nil {
			persistDroppedTotal.Inc()
		}
	}()

	select {
	case p.ops <- op:
	default:
		persistDroppedTotal.Inc()
		p.log.Warn("persist queue full, dropping write")
	}
}

// close drains the queue and waits for the writer goroutine to exit. Safe to
// call more than once.
func (p *persister) close() {
	p.closing.Do(func() { close(p.ops) })
	<-p.done
}
