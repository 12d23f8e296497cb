// Package ringmath implements the slot arithmetic shared by the ring
// storage engine and the registry's retention rewrite (spec.md §4.C,
// invariant I2): slot = (ts // step) mod slots, with Go's truncating
// division and negative-mod corrected so the result is always in
// [0, slots).
package ringmath

// SlotFor computes the ring slot for ts under the given step/slots
// geometry.
func SlotFor(ts int64, step, slots uint32) uint32 {
	bucket := floorDiv(ts, int64(step))
	m := bucket % int64(slots)
	if m < 0 {
		m += int64(slots)
	}
	return uint32(m)
}

// floorDiv is integer division rounding toward negative infinity, so
// SlotFor behaves sensibly for timestamps before the Unix epoch.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// BucketStart returns ts_bucket(ts, width) = (ts // width) * width,
// spec.md §4.F.
func BucketStart(ts int64, width int64) int64 {
	return floorDiv(ts, width) * width
}
