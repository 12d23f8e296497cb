package registry

import (
	"encoding/binary"
	"sort"
)

// idSet is the wire encoding for the value stored at a name-index or
// tag-index key: a sorted, de-duplicated list of metric ids, each a
// fixed 8-byte big-endian integer so the encoding has no framing
// ambiguity and appending an id is a simple re-encode.
type idSet []uint64

func decodeIDSet(data []byte) idSet {
	n := len(data) / 8
	out := make(idSet, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, binary.BigEndian.Uint64(data[i*8:i*8+8]))
	}
	return out
}

func (s idSet) encode() []byte {
	buf := make([]byte, len(s)*8)
	for i, id := range s {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], id)
	}
	return buf
}

func (s idSet) contains(id uint64) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// add returns a copy of s with id inserted in sorted position, or s
// itself (unchanged) if id is already present.
func (s idSet) add(id uint64) idSet {
	if s.contains(id) {
		return s
	}
	out := append(idSet{}, s...)
	out = append(out, id)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// remove returns a copy of s with id removed.
func (s idSet) remove(id uint64) idSet {
	out := make(idSet, 0, len(s))
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// intersect returns the ids present in both sets.
func intersect(a, b idSet) idSet {
	set := make(map[uint64]bool, len(b))
	for _, id := range b {
		set[id] = true
	}
	var out idSet
	for _, id := range a {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
