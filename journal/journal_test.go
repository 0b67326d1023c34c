package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"canlab/utils"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "frames.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndEachInOrder(t *testing.T) {
	j := openTemp(t)
	base := time.Unix(1700000000, 123)
	for i := 0; i < 300; i++ {
		f, _ := utils.NewFrame(0x100, []byte{byte(i >> 8), byte(i), 0x64})
		if _, err := j.Append("vcan0", base.Add(time.Duration(i)*time.Millisecond), f); err != nil {
			t.Fatal(err)
		}
	}
	other, _ := utils.NewFrame(0x7E0, []byte{0x02, 0x01, 0x0C})
	if _, err := j.Append("vcan1", base, other); err != nil {
		t.Fatal(err)
	}

	i := 0
	err := j.Each("vcan0", func(r Record) error {
		if r.Seq != uint64(i+1) {
			t.Fatalf("record %d has seq %d", i, r.Seq)
		}
		if got := int(r.Frame.Data[0])<<8 | int(r.Frame.Data[1]); got != i || r.Frame.Length != 3 {
			t.Fatalf("record %d holds %v", i, r.Frame)
		}
		if want := base.Add(time.Duration(i) * time.Millisecond); !r.Time.Equal(want) {
			t.Fatalf("record %d at %v, want %v", i, r.Time, want)
		}
		i++
		return nil
	})
	if err != nil || i != 300 {
		t.Fatalf("iterated %d records, err=%v", i, err)
	}

	buses, _ := j.Buses()
	if len(buses) != 2 || buses[0] != "vcan0" || buses[1] != "vcan1" {
		t.Fatalf("buses %v", buses)
	}
	if n, _ := j.Count("vcan1"); n != 1 {
		t.Fatalf("vcan1 count %d", n)
	}
}

func TestEachMissingBus(t *testing.T) {
	j := openTemp(t)
	called := false
	if err := j.Each("nope", func(Record) error { called = true; return nil }); err != nil || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestEachStopsOnCallbackError(t *testing.T) {
	j := openTemp(t)
	f, _ := utils.NewFrame(0x200, []byte{1})
	for i := 0; i < 3; i++ {
		_, _ = j.Append("vcan0", time.Now(), f)
	}
	stop := errors.New("stop")
	n := 0
	err := j.Each("vcan0", func(Record) error { n++; return stop })
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestDecodeRecordRejectsGarbage(t *testing.T) {
	for _, v := range [][]byte{
		{1, 2, 3},
		append(make([]byte, 12), 9),
		append(make([]byte, 12), 2, 0xAA),
	} {
		if _, err := decodeRecord(v); !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("% X: got %v", v, err)
		}
	}
}

func TestRecordFromBus(t *testing.T) {
	j := openTemp(t)
	bus := utils.NewMemoryBus("vcan0")
	rec, src := bus.Open(), bus.Open()
	defer rec.Close()
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Record(ctx, rec, nil) }()

	for i := 0; i < 5; i++ {
		f, _ := utils.NewFrame(0x300, []byte{byte(i + 1)})
		_ = src.WriteFrame(ctx, f)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := j.Count("vcan0"); n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("frames not journaled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("record: %v", err)
	}
}

func TestRecordKeepsUpWithBursts(t *testing.T) {
	j := openTemp(t)
	bus := utils.NewMemoryBus("vcan0")
	rec, src := bus.Open(), bus.Open()
	defer rec.Close()
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Record(ctx, rec, nil) }()

	const bursts, perBurst = 4, 800
	for b := 0; b < bursts; b++ {
		for i := 0; i < perBurst; i++ {
			f, _ := utils.NewFrame(0x100, []byte{byte(b), byte(i >> 8), byte(i)})
			_ = src.WriteFrame(ctx, f)
		}
		time.Sleep(100 * time.Millisecond)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if n, _ := j.Count("vcan0"); n == bursts*perBurst {
			break
		}
		if time.Now().After(deadline) {
			n, _ := j.Count("vcan0")
			t.Fatalf("journaled %d of %d frames, dropped %d", n, bursts*perBurst, bus.Dropped())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if d := bus.Dropped(); d != 0 {
		t.Fatalf("recorder fell behind: %d frames dropped", d)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("record: %v", err)
	}

	prev := -1
	err := j.Each("vcan0", func(r Record) error {
		k := int(r.Frame.Data[0])*perBurst + (int(r.Frame.Data[1])<<8 | int(r.Frame.Data[2]))
		if k != prev+1 {
			t.Fatalf("frame %d journaled after %d", k, prev)
		}
		prev = k
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAppendRecordsAssignsConsecutiveSeqs(t *testing.T) {
	j := openTemp(t)
	f, _ := utils.NewFrame(0x200, []byte{1, 2})
	if _, err := j.Append("vcan0", time.Unix(1, 0), f); err != nil {
		t.Fatal(err)
	}
	last, err := j.AppendRecords("vcan0", []Record{{Seq: 99, Frame: f}, {Frame: f}, {Frame: f}})
	if err != nil || last != 4 {
		t.Fatalf("last = %d, %v", last, err)
	}
	if last, err := j.AppendRecords("vcan0", nil); err != nil || last != 0 {
		t.Fatalf("empty append = %d, %v", last, err)
	}
	if n, _ := j.Count("vcan0"); n != 4 {
		t.Fatalf("count = %d", n)
	}
}
