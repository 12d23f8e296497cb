package kvcodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// MetricType is the sample semantics of a metric, per spec.md §3.
type MetricType uint8

const (
	Gauge   MetricType = 0
	Counter MetricType = 1
)

func (t MetricType) String() string {
	if t == Counter {
		return "counter"
	}
	return "gauge"
}

// Descriptor is the value record stored at key family 2, per spec.md §3.
// Field order in the wire encoding is fixed so two descriptors with the
// same fields always produce identical bytes.
type Descriptor struct {
	MetricID  uint64
	Name      string
	Tags      map[string]string
	Step      uint32
	Slots     uint32
	Type      MetricType
	CreatedAt int64
	Unit      string // advisory display metadata only, never part of an invariant

	// Deleting marks the descriptor as mid-deletion (spec.md §4.G state
	// machine: live -> deleting -> absent). Writes to a deleting metric
	// fail NOT_FOUND; reads tolerate missing slots.
	Deleting bool
}

// Encode serializes a Descriptor as a length-prefixed record with a
// stable field order: metric_id, name, step, slots, type, created_at,
// unit, deleting, then tags sorted by key.
func (d *Descriptor) Encode() []byte {
	buf := make([]byte, 0, 64+len(d.Name)+len(d.Unit)+len(d.Tags)*16)
	buf = putUint64(buf, d.MetricID)
	buf = putString(buf, d.Name)
	buf = putUint32(buf, d.Step)
	buf = putUint32(buf, d.Slots)
	buf = append(buf, byte(d.Type))
	buf = putInt64(buf, d.CreatedAt)
	buf = putString(buf, d.Unit)
	if d.Deleting {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	keys := make([]string, 0, len(d.Tags))
	for k := range d.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf = putUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = putString(buf, k)
		buf = putString(buf, d.Tags[k])
	}
	return buf
}

// DecodeDescriptor parses bytes produced by Descriptor.Encode.
func DecodeDescriptor(data []byte) (*Descriptor, error) {
	d := &Descriptor{}
	var err error
	r := data

	if d.MetricID, r, err = takeUint64(r); err != nil {
		return nil, err
	}
	if d.Name, r, err = takeString(r); err != nil {
		return nil, err
	}
	var step32, slots32 uint32
	if step32, r, err = takeUint32(r); err != nil {
		return nil, err
	}
	d.Step = step32
	if slots32, r, err = takeUint32(r); err != nil {
		return nil, err
	}
	d.Slots = slots32
	if len(r) < 1 {
		return nil, fmt.Errorf("kvcodec: truncated descriptor type")
	}
	d.Type = MetricType(r[0])
	r = r[1:]
	if d.CreatedAt, r, err = takeInt64(r); err != nil {
		return nil, err
	}
	if d.Unit, r, err = takeString(r); err != nil {
		return nil, err
	}
	if len(r) < 1 {
		return nil, fmt.Errorf("kvcodec: truncated descriptor deleting flag")
	}
	d.Deleting = r[0] != 0
	r = r[1:]
	var n uint32
	if n, r, err = takeUint32(r); err != nil {
		return nil, err
	}
	if n > 0 {
		d.Tags = make(map[string]string, n)
	}
	for i := uint32(0); i < n; i++ {
		var k, v string
		if k, r, err = takeString(r); err != nil {
			return nil, err
		}
		if v, r, err = takeString(r); err != nil {
			return nil, err
		}
		d.Tags[k] = v
	}
	return d, nil
}

// Sample is the value record stored at key family 1, per spec.md §3:
// `(i64 big-endian ts, f64 IEEE-754 LE value)`.
type Sample struct {
	Ts    int64
	Value float64
}

// Encode serializes a Sample to its fixed 16-byte wire layout.
func (s Sample) Encode() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(s.Ts))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(s.Value))
	return buf
}

// DecodeSample parses a 16-byte Sample record.
func DecodeSample(data []byte) (Sample, error) {
	if len(data) != 16 {
		return Sample{}, fmt.Errorf("kvcodec: sample record must be 16 bytes, got %d", len(data))
	}
	ts := int64(binary.BigEndian.Uint64(data[0:8]))
	v := math.Float64frombits(binary.LittleEndian.Uint64(data[8:16]))
	return Sample{Ts: ts, Value: v}, nil
}

// CounterState is the value record stored at key family 3, per spec.md
// §3: `(last_raw: f64, last_ts: i64)`.
type CounterState struct {
	LastTs  int64
	LastRaw float64
}

// Encode serializes a CounterState to its fixed 16-byte wire layout.
func (c CounterState) Encode() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(c.LastTs))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(c.LastRaw))
	return buf
}

// DecodeCounterState parses a 16-byte CounterState record.
func DecodeCounterState(data []byte) (CounterState, error) {
	if len(data) != 16 {
		return CounterState{}, fmt.Errorf("kvcodec: counter record must be 16 bytes, got %d", len(data))
	}
	ts := int64(binary.BigEndian.Uint64(data[0:8]))
	v := math.Float64frombits(binary.LittleEndian.Uint64(data[8:16]))
	return CounterState{LastTs: ts, LastRaw: v}, nil
}

// --- little framing helpers used only by Descriptor's record encoding ---

func putUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func putInt64(buf []byte, v int64) []byte { return putUint64(buf, uint64(v)) }

func putUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func putString(buf []byte, s string) []byte {
	buf = putUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func takeUint64(r []byte) (uint64, []byte, error) {
	if len(r) < 8 {
		return 0, nil, fmt.Errorf("kvcodec: truncated uint64")
	}
	return binary.BigEndian.Uint64(r[:8]), r[8:], nil
}

func takeInt64(r []byte) (int64, []byte, error) {
	v, rest, err := takeUint64(r)
	return int64(v), rest, err
}

func takeUint32(r []byte) (uint32, []byte, error) {
	if len(r) < 4 {
		return 0, nil, fmt.Errorf("kvcodec: truncated uint32")
	}
	return binary.BigEndian.Uint32(r[:4]), r[4:], nil
}

func takeString(r []byte) (string, []byte, error) {
	n, r, err := takeUint32(r)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(r)) < n {
		return "", nil, fmt.Errorf("kvcodec: truncated string (want %d, have %d)", n, len(r))
	}
	return string(r[:n]), r[n:], nil
}
