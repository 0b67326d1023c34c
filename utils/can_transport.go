package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// CANReader blocks until a frame arrives, ctx is done or the bus closes.
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// CANBus is one endpoint on a bus segment. Frames written are seen by every
// other endpoint on the segment, in write order.
type CANBus interface {
	CANReader
	CANWriter
	Name() string
}

// RecvTimeout waits at most d for a frame. It returns ErrTimeout when
// nothing arrived and the parent context is still live.
func RecvTimeout(ctx context.Context, r CANReader, d time.Duration) (can.Frame, error) {
	rctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	f, err := r.ReadFrame(rctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return can.Frame{}, ErrTimeout
	}
	return f, err
}

// Drain calls fn for every frame already queued on r without waiting.
func Drain(ctx context.Context, r CANReader, fn func(can.Frame)) error {
	for {
		f, err := RecvTimeout(ctx, r, time.Millisecond)
		if errors.Is(err, ErrTimeout) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(f)
	}
}

// SocketCANBus is a CANBus on a SocketCAN interface such as vcan0. A
// background receiver feeds a buffered channel so a bounded read never
// loses a frame that arrives after its deadline.
type SocketCANBus struct {
	iface string
	conn  net.Conn
	tx    *socketcan.Transmitter
	rx    chan can.Frame

	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

func NewSocketCANBus(ctx context.Context, iface string, log *Logger) (*SocketCANBus, error) {
	var conn net.Conn
	err := retry.Do(
		func() error {
			c, err := socketcan.DialContext(ctx, "can", iface)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("socketcan dial %s attempt %d: %v", iface, n+1, err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}

	b := &SocketCANBus{
		iface: iface,
		conn:  conn,
		tx:    socketcan.NewTransmitter(conn),
		rx:    make(chan can.Frame, 256),
		done:  make(chan struct{}),
	}
	go b.pump(socketcan.NewReceiver(conn))
	return b, nil
}

func (b *SocketCANBus) pump(recv *socketcan.Receiver) {
	defer close(b.rx)
	for recv.Receive() {
		if recv.HasErrorFrame() {
			continue
		}
		select {
		case b.rx <- recv.Frame():
		case <-b.done:
			return
		}
	}
	b.mu.Lock()
	b.err = recv.Err()
	b.mu.Unlock()
}

func (b *SocketCANBus) Name() string { return b.iface }

func (b *SocketCANBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-b.rx:
		if !ok {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.err != nil {
				return can.Frame{}, fmt.Errorf("%s: %w: %v", b.iface, ErrClosed, b.err)
			}
			return can.Frame{}, fmt.Errorf("%s: %w", b.iface, ErrClosed)
		}
		return f, nil
	}
}

func (b *SocketCANBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	return b.tx.TransmitFrame(ctx, frame)
}

func (b *SocketCANBus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		err = b.conn.Close()
	})
	return err
}
