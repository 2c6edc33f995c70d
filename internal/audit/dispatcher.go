package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls buffering and delivery.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of making
	// the emitting operation wait.
	DropIfFull bool
	// DeliveryTimeout bounds each Sink.Emit call. Zero leaves it unbounded.
	DeliveryTimeout time.Duration
}

// Dispatcher hands events to a Sink on its own goroutine so that slow or
// failing sinks never hold up the operation that produced the event.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher starts delivery. A disabled config yields a nil
// *Dispatcher, which accepts and discards events.
func NewDispatcher(cfg Config, sink Sink, logger *slog.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is still buffered after Close.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx := context.Background()
	if d.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		defer cancel()
	}
	if err := d.emit(ctx, ev); err != nil {
		d.failed.Add(1)
		d.logger.Warn("audit delivery failed",
			slog.String("event", ev.EventType),
			slog.Bool("incident", ev.Incident),
			slog.Any("error", err),
		)
	}
}

func (d *Dispatcher) emit(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return d.sink.Emit(ctx, ev)
}

// Emit queues ev. With DropIfFull a full buffer drops the event and
// counts it; otherwise Emit waits for room, for ctx or for Close.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.stopped.Load() {
		return
	}
	if d.cfg.DropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops intake, delivers the buffered events and waits for the
// delivery goroutine. Repeated calls are no-ops.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
	})
	<-d.finished
}

// Dropped counts events never queued: buffer full, or the emitting context
// ended while waiting.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed counts events a sink returned an error or panicked on.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
