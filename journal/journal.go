// Package journal records bus traffic to a bbolt file, one bucket per bus.
package journal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.einride.tech/can"
	bolt "go.etcd.io/bbolt"

	"canlab/utils"
)

var ErrCorruptRecord = errors.New("corrupt journal record")

const headerLen = 8 + 4 + 1

// Record is one journaled frame.
type Record struct {
	Seq   uint64
	Time  time.Time
	Frame can.Frame
}

type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal file.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Append stores f under the next sequence number of bus.
func (j *Journal) Append(bus string, at time.Time, f can.Frame) (uint64, error) {
	return j.AppendRecords(bus, []Record{{Time: at, Frame: f}})
}

// AppendRecords stores recs under consecutive sequence numbers of bus in one
// batched write and returns the last sequence number. Seq fields are ignored.
func (j *Journal) AppendRecords(bus string, recs []Record) (uint64, error) {
	var last uint64
	if len(recs) == 0 {
		return 0, nil
	}
	// Batch may retry fn on its own, so it only derives state from tx.
	err := j.db.Batch(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bus))
		if err != nil {
			return err
		}
		for _, r := range recs {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(seq), encodeRecord(r.Time, r.Frame)); err != nil {
				return err
			}
			last = seq
		}
		return nil
	})
	return last, err
}

// Each calls fn for every record of bus in sequence order. A missing bucket
// yields no records.
func (j *Journal) Each(bus string, fn func(Record) error) error {
	return j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bus))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("%w: key of %d bytes", ErrCorruptRecord, len(k))
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			rec.Seq = binary.BigEndian.Uint64(k)
			return fn(rec)
		})
	})
}

// Buses lists the buses that have records.
func (j *Journal) Buses() ([]string, error) {
	var out []string
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			out = append(out, string(name))
			return nil
		})
	})
	return out, err
}

// Count returns how many records bus holds.
func (j *Journal) Count(bus string) (int, error) {
	n := 0
	err := j.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(bus)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Record journals every frame read from bus until ctx is done. Frames that
// queue up while a write is in flight go out together in the next write.
func (j *Journal) Record(ctx context.Context, bus utils.CANBus, log *utils.Logger) error {
	log = log.With("rec")
	log.Info("recording %s", bus.Name())
	var n uint64
	for {
		f, err := bus.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("recorded %d frames from %s", n, bus.Name())
				return ctx.Err()
			}
			return fmt.Errorf("journal: receive on %s: %w", bus.Name(), err)
		}
		pending := []Record{{Time: time.Now(), Frame: f}}
		derr := utils.Drain(ctx, bus, func(f can.Frame) {
			pending = append(pending, Record{Time: time.Now(), Frame: f})
		})
		if _, err := j.AppendRecords(bus.Name(), pending); err != nil {
			return fmt.Errorf("journal: append: %w", err)
		}
		n += uint64(len(pending))
		if derr != nil && ctx.Err() == nil {
			return fmt.Errorf("journal: receive on %s: %w", bus.Name(), derr)
		}
	}
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func encodeRecord(at time.Time, f can.Frame) []byte {
	data := utils.Payload(f)
	v := make([]byte, headerLen+len(data))
	binary.BigEndian.PutUint64(v[0:8], uint64(at.UnixNano()))
	binary.BigEndian.PutUint32(v[8:12], f.ID)
	v[12] = byte(len(data))
	copy(v[headerLen:], data)
	return v
}

func decodeRecord(v []byte) (Record, error) {
	if len(v) < headerLen {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(v))
	}
	n := int(v[12])
	if n > 8 || len(v) != headerLen+n {
		return Record{}, fmt.Errorf("%w: length %d in %d bytes", ErrCorruptRecord, n, len(v))
	}
	f, err := utils.NewFrame(binary.BigEndian.Uint32(v[8:12]), v[headerLen:])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return Record{
		Time:  time.Unix(0, int64(binary.BigEndian.Uint64(v[0:8]))),
		Frame: f,
	}, nil
}
