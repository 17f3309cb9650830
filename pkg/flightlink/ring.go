// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

// ring is the fixed-capacity receive buffer.
// w is the next write index, r the next byte to scan. unread disambiguates
// w == r between empty (0) and full (RingCapacity).
type ring struct {
	buf    [RingCapacity]byte
	w      int
	r      int
	unread int
}

func (q *ring) reset() {
	q.w = 0
	q.r = 0
	q.unread = 0
	q.buf = [RingCapacity]byte{}
}

// write copies p (len(p) <= RingCapacity) at w, wrapping at the end.
// It reports whether unread bytes were overwritten; in that case the unread
// region becomes the newest RingCapacity bytes.
func (q *ring) write(p []byte) bool {
	n := copy(q.buf[q.w:], p)
	if n < len(p) {
		copy(q.buf[:], p[n:])
	}
	q.w = (q.w + len(p)) % RingCapacity

	q.unread += len(p)
	if q.unread > RingCapacity {
		q.unread = RingCapacity
		q.r = q.w
		return true
	}
	return false
}

// at returns the byte off positions past r
func (q *ring) at(off int) byte {
	return q.buf[(q.r+off)%RingCapacity]
}

// skip consumes n unread bytes
func (q *ring) skip(n int) {
	q.r = (q.r + n) % RingCapacity
	q.unread -= n
}

// peek copies len(dst) unread bytes starting at r into dst, in at most two
// pieces. It does not consume them.
func (q *ring) peek(dst []byte) {
	n := copy(dst, q.buf[q.r:])
	if n < len(dst) {
		copy(dst[n:], q.buf[:len(dst)-n])
	}
}
