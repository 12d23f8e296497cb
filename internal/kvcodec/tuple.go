// Package kvcodec implements the key-tuple and value-record encoding that
// every ringtsdb storage key family shares (spec.md §4.A). Keys are
// length-unambiguous tagged tuples so the encoded byte order matches the
// tuple's lexicographic order — the same trick FoundationDB's tuple layer
// uses, reproduced here over a plain ordered KV backend so range scans of
// a key family or a single metric's sample space are contiguous byte
// ranges.
package kvcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Key family tags, stable on-disk compatibility contracts per spec.md §6.
const (
	FamilySample     byte = 1
	FamilyDescriptor byte = 2
	FamilyCounter    byte = 3
	FamilyNameIndex  byte = 4
	FamilyTagIndex   byte = 5
	FamilyDashboard  byte = 6
)

const (
	tagUint byte = 0x01
	tagStr  byte = 0x02
)

// AppendUint appends a big-endian tagged uint64 element to buf. Fixed
// width keeps byte order identical to numeric order.
func AppendUint(buf []byte, v uint64) []byte {
	buf = append(buf, tagUint)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// AppendString appends a tagged, zero-terminated, byte-stuffed string
// element to buf. 0x00 bytes in s are escaped as 0x00 0xFF so the
// terminator 0x00 0x00 remains unambiguous and the stuffed encoding still
// sorts consistently with the original UTF-8 byte order.
func AppendString(buf []byte, s string) []byte {
	buf = append(buf, tagStr)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x00 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, c)
		}
	}
	return append(buf, 0x00, 0x00)
}

// Tuple is a fluent builder over an accumulating key buffer.
type Tuple struct{ buf []byte }

// NewTuple starts a key in the given family.
func NewTuple(family byte) *Tuple {
	return &Tuple{buf: []byte{family}}
}

func (t *Tuple) Uint(v uint64) *Tuple {
	t.buf = AppendUint(t.buf, v)
	return t
}

func (t *Tuple) Str(s string) *Tuple {
	t.buf = AppendString(t.buf, s)
	return t
}

// Bytes returns the encoded key. The Tuple must not be reused afterward.
func (t *Tuple) Bytes() []byte { return t.buf }

// readUint reads a tagged uint64 element starting at buf[0], returning the
// value and the number of bytes consumed.
func readUint(buf []byte) (uint64, int, error) {
	if len(buf) < 9 || buf[0] != tagUint {
		return 0, 0, fmt.Errorf("kvcodec: malformed uint element")
	}
	return binary.BigEndian.Uint64(buf[1:9]), 9, nil
}

// readString reads a tagged, byte-stuffed string element starting at
// buf[0], returning the decoded value and bytes consumed.
func readString(buf []byte) (string, int, error) {
	if len(buf) < 3 || buf[0] != tagStr {
		return "", 0, fmt.Errorf("kvcodec: malformed string element")
	}
	body := buf[1:]
	var out []byte
	i := 0
	for {
		idx := bytes.IndexByte(body[i:], 0x00)
		if idx < 0 {
			return "", 0, fmt.Errorf("kvcodec: unterminated string element")
		}
		idx += i
		if idx+1 >= len(body) {
			return "", 0, fmt.Errorf("kvcodec: truncated string element")
		}
		switch body[idx+1] {
		case 0xFF: // stuffed literal 0x00
			out = append(out, body[i:idx]...)
			out = append(out, 0x00)
			i = idx + 2
		case 0x00: // terminator
			out = append(out, body[i:idx]...)
			return string(out), 1 + idx + 2, nil
		default:
			return "", 0, fmt.Errorf("kvcodec: invalid string escape")
		}
	}
}

// SampleKey encodes the key for key family (1, metric_id, slot).
func SampleKey(metricID uint64, slot uint32) []byte {
	return NewTuple(FamilySample).Uint(metricID).Uint(uint64(slot)).Bytes()
}

// SamplePrefix encodes the scan prefix (1, metric_id, *) covering every
// slot of metricID.
func SamplePrefix(metricID uint64) []byte {
	return NewTuple(FamilySample).Uint(metricID).Bytes()
}

// DecodeSampleKey extracts metric_id and slot from a sample key.
func DecodeSampleKey(key []byte) (metricID uint64, slot uint32, err error) {
	if len(key) < 1 || key[0] != FamilySample {
		return 0, 0, fmt.Errorf("kvcodec: not a sample key")
	}
	rest := key[1:]
	metricID, n, err := readUint(rest)
	if err != nil {
		return 0, 0, err
	}
	rest = rest[n:]
	slotU, _, err := readUint(rest)
	if err != nil {
		return 0, 0, err
	}
	return metricID, uint32(slotU), nil
}

// DescriptorKey encodes the key for key family (2, metric_id).
func DescriptorKey(metricID uint64) []byte {
	return NewTuple(FamilyDescriptor).Uint(metricID).Bytes()
}

// DescriptorPrefix encodes the scan prefix covering every descriptor.
func DescriptorPrefix() []byte {
	return []byte{FamilyDescriptor}
}

// IDCounterKey encodes the key holding the next-metric-id allocation
// counter. metric_id 0 is never allocated to a real metric, so reusing
// DescriptorKey(0) for the counter cannot collide with a live descriptor.
func IDCounterKey() []byte {
	return DescriptorKey(0)
}

// CounterKey encodes the key for key family (3, metric_id).
func CounterKey(metricID uint64) []byte {
	return NewTuple(FamilyCounter).Uint(metricID).Bytes()
}

// NameIndexKey encodes the key for key family (4, name).
func NameIndexKey(name string) []byte {
	return NewTuple(FamilyNameIndex).Str(name).Bytes()
}

// TagIndexKey encodes the key for key family (5, name, tag_key, tag_value).
func TagIndexKey(name, tagKey, tagValue string) []byte {
	return NewTuple(FamilyTagIndex).Str(name).Str(tagKey).Str(tagValue).Bytes()
}

// TagIndexPrefix encodes the scan prefix (5, name, tag_key, *).
func TagIndexPrefix(name, tagKey string) []byte {
	return NewTuple(FamilyTagIndex).Str(name).Str(tagKey).Bytes()
}

// DashboardKey encodes the key for key family (6, slug).
func DashboardKey(slug string) []byte {
	return NewTuple(FamilyDashboard).Str(slug).Bytes()
}

// DashboardPrefix encodes the scan prefix covering all dashboards.
func DashboardPrefix() []byte {
	return []byte{FamilyDashboard}
}

// DecodeDashboardKey extracts the slug from a dashboard key.
func DecodeDashboardKey(key []byte) (string, error) {
	if len(key) < 1 || key[0] != FamilyDashboard {
		return "", fmt.Errorf("kvcodec: not a dashboard key")
	}
	slug, _, err := readString(key[1:])
	return slug, err
}
