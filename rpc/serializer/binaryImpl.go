package serializer

import (
	"encoding/binary"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// Writer appends big-endian encoded values to a growing buffer.
// Variable-length values (strings, lists) are prefixed with a 4-byte length.
type Writer struct {
	buf []byte
	err error
}

// NewWriter creates a writer with a small preallocated buffer
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Uint32 appends a 4-byte unsigned integer
func (w *Writer) Uint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// Int32 appends a 4-byte signed integer
func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

// Bool appends a single byte (0 or 1)
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// String appends the length of s followed by its bytes
func (w *Writer) String(s string) {
	if !w.Len(len(s)) {
		return
	}
	w.buf = append(w.buf, s...)
}

// Strings appends the number of entries followed by each string
func (w *Writer) Strings(list []string) {
	if !w.Len(len(list)) {
		return
	}
	for _, s := range list {
		w.String(s)
	}
}

// Len appends a length or element count. It returns false (and records
// ErrPayloadTooLarge) if n does not fit into 4 bytes.
func (w *Writer) Len(n int) bool {
	if uint64(n) > math.MaxUint32 {
		if w.err == nil {
			w.err = fmt.Errorf("%w: length %d does not fit into 4 bytes", ErrPayloadTooLarge, n)
		}
		return false
	}
	w.Uint32(uint32(n))
	return true
}

// Bytes returns the encoded data
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Err returns the first error recorded while writing
func (w *Writer) Err() error {
	return w.err
}

// --------------------------------------------------------------------------
// Reader
// --------------------------------------------------------------------------

// Reader decodes values written by a Writer. The first failure is sticky:
// every later read returns zero values and Finish reports the error.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader creates a reader over data
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Uint32 reads a 4-byte unsigned integer
func (r *Reader) Uint32() uint32 {
	b := r.take(4, "uint32")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Int32 reads a 4-byte signed integer
func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

// Bool reads a single byte. Values other than 0 and 1 are malformed, so a
// decoded payload always re-encodes to the same bytes.
func (r *Reader) Bool() bool {
	b := r.take(1, "bool")
	if b == nil {
		return false
	}
	switch b[0] {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(fmt.Sprintf("invalid bool value %d", b[0]))
		return false
	}
}

// String reads a length-prefixed string
func (r *Reader) String() string {
	n := r.Uint32()
	if r.err != nil {
		return ""
	}
	b := r.take(int(n), "string")
	if b == nil {
		return ""
	}
	return string(b)
}

// Strings reads a list written by Writer.Strings
func (r *Reader) Strings() []string {
	n := r.Count(4)
	if n == 0 {
		return nil
	}
	list := make([]string, n)
	for i := range list {
		list[i] = r.String()
	}
	return list
}

// Count reads an element count and checks that the remaining data can hold
// that many elements of at least minSize bytes each.
func (r *Reader) Count(minSize int) int {
	n := r.Uint32()
	if r.err != nil {
		return 0
	}
	if minSize > 0 && uint64(n)*uint64(minSize) > uint64(len(r.data)-r.pos) {
		r.fail(fmt.Sprintf("data too short for %d list elements", n))
		return 0
	}
	return int(n)
}

// Finish reports the first error, or a malformed error if bytes are left over
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, len(r.data)-r.pos)
	}
	return nil
}

// take returns the next n bytes or nil (recording an error) if the data is too short
func (r *Reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.pos < n {
		r.fail(fmt.Sprintf("data too short for %s", what))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) fail(msg string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s at offset %d", ErrMalformedPayload, msg, r.pos)
	}
}
