package models

import (
	"encoding/binary"
	"errors"
	"fmt"

	"meowstore/pkg/ident"
)

// ErrTruncated is returned when an encoded record ends early.
var ErrTruncated = errors.New("models: truncated record")

// FieldTooLongError reports a text field that does not fit its length prefix.
type FieldTooLongError struct {
	Field string
	Len   int
	Max   int
}

func (e *FieldTooLongError) Error() string {
	return fmt.Sprintf("models: field %s is %d bytes, max %d", e.Field, e.Len, e.Max)
}

// NameError reports a name field that is not a valid packed name.
type NameError struct {
	Field string
	Err   error
}

func (e *NameError) Error() string {
	return fmt.Sprintf("models: field %s: %v", e.Field, e.Err)
}

func (e *NameError) Unwrap() error { return e.Err }

// checkName validates a required name field.
func checkName(field string, id ident.ID) error {
	if err := id.Validate(); err != nil {
		return &NameError{Field: field, Err: err}
	}
	return nil
}

// checkOptionalName accepts the zero ID as absent.
func checkOptionalName(field string, id ident.ID) error {
	if id.IsZero() {
		return nil
	}
	return checkName(field, id)
}

type writer struct {
	b []byte
}

func (w *writer) u8(v byte) { w.b = append(w.b, v) }

func (w *writer) u16(v uint16) { w.b = binary.BigEndian.AppendUint16(w.b, v) }

func (w *writer) u32(v uint32) { w.b = binary.BigEndian.AppendUint32(w.b, v) }

func (w *writer) u64(v uint64) { w.b = binary.BigEndian.AppendUint64(w.b, v) }

func (w *writer) i64(v int64) { w.u64(uint64(v)) }

func (w *writer) id(v ident.ID) { w.b = append(w.b, v[:]...) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

// str16 writes a u16 length-prefixed string. Callers check the length first.
func (w *writer) str16(s string) {
	w.u16(uint16(len(s)))
	w.b = append(w.b, s...)
}

func (w *writer) str32(s string) {
	w.u32(uint32(len(s)))
	w.b = append(w.b, s...)
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.err = ErrTruncated
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) i64() int64 { return int64(r.u64()) }

// id reads a packed name and fails the record when it is not one Encode
// produces. The zero ID passes only when optional is set.
func (r *reader) id(field string, optional bool) ident.ID {
	var v ident.ID
	b := r.take(ident.Size)
	if b == nil {
		return v
	}
	copy(v[:], b)
	check := checkName
	if optional {
		check = checkOptionalName
	}
	if err := check(field, v); err != nil {
		r.err = err
	}
	return v
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) str16() string { return string(r.take(int(r.u16()))) }

func (r *reader) str32() string { return string(r.take(int(r.u32()))) }

// done reports the first error, or an error if bytes remain unread.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return fmt.Errorf("models: %d trailing bytes", len(r.b)-r.off)
	}
	return nil
}
