package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.einride.tech/can"
)

func TestMemoryBusBroadcastOrder(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus("vcan0")
	a := bus.Open()
	b := bus.Open()
	c := bus.Open()
	defer a.Close()
	defer b.Close()
	defer c.Close()

	for i := 0; i < 5; i++ {
		f, _ := NewFrame(0x100, []byte{byte(i)})
		if err := a.WriteFrame(ctx, f); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	for _, ep := range []CANBus{b, c} {
		for i := 0; i < 5; i++ {
			f, err := RecvTimeout(ctx, ep, 100*time.Millisecond)
			if err != nil {
				t.Fatalf("recv %d: %v", i, err)
			}
			if f.Data[0] != byte(i) {
				t.Fatalf("expected frame %d, got %d", i, f.Data[0])
			}
		}
	}

	if _, err := RecvTimeout(ctx, a, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("sender must not see its own frames, got %v", err)
	}
}

func TestMemoryBusDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus("vcan1")
	var dropped []can.Frame
	bus.OnDrop(func(_ string, f can.Frame) { dropped = append(dropped, f) })

	tx := bus.Open()
	rx := bus.OpenBuffered(1)
	f, _ := NewFrame(0x7E0, []byte{0x01, 0x03})
	_ = tx.WriteFrame(ctx, f)
	_ = tx.WriteFrame(ctx, f)

	if bus.Dropped() != 1 || len(dropped) != 1 {
		t.Fatalf("expected one dropped frame, got %d", bus.Dropped())
	}
	if _, err := RecvTimeout(ctx, rx, 10*time.Millisecond); err != nil {
		t.Fatalf("first frame should be queued: %v", err)
	}
}

func TestMemoryBusClose(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus("vcan0")
	a := bus.Open()
	b := bus.Open()
	_ = b.Close()

	f, _ := NewFrame(0x100, nil)
	if err := a.WriteFrame(ctx, f); err != nil {
		t.Fatalf("write with closed peer: %v", err)
	}
	if _, err := b.ReadFrame(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.WriteFrame(ctx, f); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on write, got %v", err)
	}
}

func TestRecvTimeoutParentCancel(t *testing.T) {
	bus := NewMemoryBus("vcan0")
	ep := bus.Open()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RecvTimeout(ctx, ep, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDrain(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus("vcan0")
	tx, rx := bus.Open(), bus.Open()
	for i := 0; i < 3; i++ {
		f, _ := NewFrame(0x300, []byte{byte(i + 1)})
		_ = tx.WriteFrame(ctx, f)
	}
	var last byte
	n := 0
	if err := Drain(ctx, rx, func(f can.Frame) { n++; last = f.Data[0] }); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 3 || last != 3 {
		t.Fatalf("expected 3 frames ending with 3, got n=%d last=%d", n, last)
	}
}

func TestFilePause(t *testing.T) {
	dir := t.TempDir()
	p := FilePause{Path: filepath.Join(dir, "global_state.txt")}
	if p.Paused() {
		t.Fatalf("missing file must mean running")
	}
	if err := WritePauseState(p.Path, true); err != nil {
		t.Fatal(err)
	}
	if !p.Paused() {
		t.Fatalf("expected paused")
	}
	if err := os.WriteFile(p.Path, []byte("  PAUSE \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !p.Paused() {
		t.Fatalf("state should be trimmed and case-insensitive")
	}
	_ = WritePauseState(p.Path, false)
	if p.Paused() {
		t.Fatalf("expected running")
	}
}
