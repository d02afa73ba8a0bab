// Package wire implements the canonical, deterministic byte encoding shared
// by every consensus message: the bytes that get hashed and the bytes that
// get signed are always produced by the same Encoder, field by field in
// declaration order, so two honest participants never disagree about what a
// message "means" on the wire.
//
// The convention — big-endian fixed-width integers, length-prefixed byte
// strings — mirrors the length-prefix encoding the application layer already
// uses for its own state root and transaction root (see storage.StateDB.ComputeRoot
// and core.ComputeTxRoot).
package wire

import (
	"encoding/binary"
	"fmt"
)

// Encoder accumulates a canonical byte encoding.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// WriteUint64 appends a big-endian uint64.
func (e *Encoder) WriteUint64(v uint64) *Encoder {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// WriteUint128 appends a big-endian 128-bit unsigned integer, split into a
// high and low uint64 the way the nonce and leader-schedule seed are carried
// through the rest of the module.
func (e *Encoder) WriteUint128(hi, lo uint64) *Encoder {
	e.WriteUint64(hi)
	e.WriteUint64(lo)
	return e
}

// WriteBytes appends a 4-byte big-endian length prefix followed by data.
func (e *Encoder) WriteBytes(data []byte) *Encoder {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, data...)
	return e
}

// WriteByte appends a single tag byte.
func (e *Encoder) WriteByte(b byte) *Encoder {
	e.buf = append(e.buf, b)
	return e
}

// Decoder reads fields back out of a canonical encoding in the same order
// they were written. It never panics; callers must check Err after each read
// that might run past the buffer, or just check it once at the end.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder wraps buf for sequential reads.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Err returns the first error encountered, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining reports whether bytes are left unconsumed (useful to detect
// trailing garbage after decoding a fixed-shape message).
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.off+n > len(d.buf) {
		d.err = fmt.Errorf("wire: short buffer: need %d bytes, have %d", n, len(d.buf)-d.off)
		return false
	}
	return true
}

// ReadUint64 reads a big-endian uint64.
func (d *Decoder) ReadUint64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

// ReadUint128 reads a (hi, lo) pair written by WriteUint128.
func (d *Decoder) ReadUint128() (hi, lo uint64) {
	hi = d.ReadUint64()
	lo = d.ReadUint64()
	return
}

// ReadBytes reads a length-prefixed byte string.
func (d *Decoder) ReadBytes() []byte {
	if !d.need(4) {
		return nil
	}
	n := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	if !d.need(int(n)) {
		return nil
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return out
}

// ReadByte reads a single tag byte.
func (d *Decoder) ReadByte() byte {
	if !d.need(1) {
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}
