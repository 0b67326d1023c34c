package utils

import (
	"context"
	"sync"
	"sync/atomic"

	"go.einride.tech/can"
)

const defaultEndpointBuffer = 1024

// MemoryBus is an in-process broadcast segment. Every frame written by an
// endpoint is delivered to all other open endpoints in write order.
type MemoryBus struct {
	name string

	mu        sync.RWMutex
	endpoints map[*memEndpoint]struct{}
	dropped   atomic.Uint64
	onDrop    func(bus string, f can.Frame)
}

func NewMemoryBus(name string) *MemoryBus {
	return &MemoryBus{
		name:      name,
		endpoints: make(map[*memEndpoint]struct{}),
	}
}

// OnDrop registers a callback for frames an endpoint had no room for.
func (m *MemoryBus) OnDrop(fn func(bus string, f can.Frame)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDrop = fn
}

func (m *MemoryBus) Name() string { return m.name }

// Dropped is the number of deliveries lost to full endpoint buffers.
func (m *MemoryBus) Dropped() uint64 { return m.dropped.Load() }

// Open attaches a new endpoint to the segment.
func (m *MemoryBus) Open() CANBus {
	return m.OpenBuffered(defaultEndpointBuffer)
}

func (m *MemoryBus) OpenBuffered(size int) CANBus {
	ep := &memEndpoint{
		bus:    m,
		rx:     make(chan can.Frame, size),
		closed: make(chan struct{}),
	}
	m.mu.Lock()
	m.endpoints[ep] = struct{}{}
	m.mu.Unlock()
	return ep
}

// The write lock serializes senders so every endpoint observes the same
// order. Delivery never blocks; a full endpoint loses the frame.
func (m *MemoryBus) broadcast(from *memEndpoint, f can.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ep := range m.endpoints {
		if ep == from {
			continue
		}
		select {
		case ep.rx <- f:
		default:
			m.dropped.Add(1)
			if m.onDrop != nil {
				m.onDrop(m.name, f)
			}
		}
	}
}

func (m *MemoryBus) detach(ep *memEndpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.endpoints, ep)
}

type memEndpoint struct {
	bus    *MemoryBus
	rx     chan can.Frame
	closed chan struct{}
	once   sync.Once
}

func (e *memEndpoint) Name() string { return e.bus.name }

func (e *memEndpoint) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-e.closed:
		return can.Frame{}, ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-e.closed:
		return can.Frame{}, ErrClosed
	case f := <-e.rx:
		return f, nil
	}
}

func (e *memEndpoint) WriteFrame(ctx context.Context, frame can.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	e.bus.broadcast(e, frame)
	return nil
}

func (e *memEndpoint) Close() error {
	e.once.Do(func() {
		e.bus.detach(e)
		close(e.closed)
	})
	return nil
}
