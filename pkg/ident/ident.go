// Package ident packs short platform names into fixed 16-byte keys.
//
// A name is at most 20 symbols drawn from a 64-entry alphabet. Each symbol
// takes 6 bits; symbols fill the payload from byte 14 downward and byte 15
// carries the symbol count. The last symbols land in the lowest payload
// bytes, so byte order of packed keys is not name order, even for names of
// equal length.
package ident

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// Size is the encoded width in bytes.
	Size = 16
	// MaxLen is the longest representable name.
	MaxLen = 20
)

// alphabet is sorted by byte value so symbols can be found with a binary search.
const alphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

var (
	ErrEmpty         = errors.New("ident: empty name")
	ErrTooLong       = errors.New("ident: name longer than 20 symbols")
	ErrInvalidSymbol = errors.New("ident: symbol outside alphabet")
	ErrNonCanonical  = errors.New("ident: stray bits past the name length")
)

// ID is the packed form of a name.
type ID [Size]byte

// Encode packs name into an ID.
func Encode(name string) (ID, error) {
	var id ID
	if name == "" {
		return id, ErrEmpty
	}
	if len(name) > MaxLen {
		return id, ErrTooLong
	}
	i := Size - 1
	id[i] = byte(len(name))
	for n := 0; n < len(name); n++ {
		ch, ok := symbolIndex(name[n])
		if !ok {
			return ID{}, fmt.Errorf("%w: %q at %d", ErrInvalidSymbol, name[n], n)
		}
		switch n % 4 {
		case 0:
			i--
			id[i] |= ch
		case 1:
			id[i] |= ch << 6
			i--
			id[i] |= ch >> 2
		case 2:
			id[i] |= ch << 4
			i--
			id[i] |= ch >> 4
		default:
			id[i] |= ch << 2
		}
	}
	return id, nil
}

// Decode unpacks an ID. Any 16-byte value decodes; a length byte above
// MaxLen is clamped.
func Decode(id ID) string {
	n := int(id[Size-1])
	if n > MaxLen {
		n = MaxLen
	}
	out := make([]byte, n)
	i := Size - 1
	for k := 0; k < n; k++ {
		var ch byte
		switch k % 4 {
		case 0:
			i--
			ch = id[i] & 0x3f
		case 1:
			ch = id[i] >> 6
			i--
			ch |= (id[i] & 0x0f) << 2
		case 2:
			ch = id[i] >> 4
			i--
			ch |= (id[i] & 0x03) << 4
		default:
			ch = id[i] >> 2
		}
		out[k] = alphabet[ch]
	}
	return string(out)
}

// FromBytes copies b into an ID. It reports false when b has the wrong width.
func FromBytes(b []byte) (ID, bool) {
	var id ID
	if len(b) != Size {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

func (id ID) String() string { return Decode(id) }

// Bytes returns the packed form as a slice.
func (id ID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// Len returns the symbol count stored in the trailing byte.
func (id ID) Len() int { return int(id[Size-1]) }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == ID{} }

// Validate reports whether id is a packed form Encode can produce: 1 to
// MaxLen symbols and no bits set past the last one.
func (id ID) Validate() error {
	switch n := id.Len(); {
	case n == 0:
		return ErrEmpty
	case n > MaxLen:
		return fmt.Errorf("%w: length byte %d", ErrTooLong, n)
	}
	if back, err := Encode(Decode(id)); err != nil || back != id {
		return ErrNonCanonical
	}
	return nil
}

// Valid reports whether name is representable.
func Valid(name string) bool {
	_, err := Encode(name)
	return err == nil
}

func symbolIndex(c byte) (byte, bool) {
	i := sort.Search(len(alphabet), func(i int) bool { return alphabet[i] >= c })
	if i < len(alphabet) && alphabet[i] == c {
		return byte(i), true
	}
	return 0, false
}

// MarshalText renders the ID as its name.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(Decode(id)), nil
}

// UnmarshalText parses a name, rejecting unrepresentable ones. An empty
// string yields the zero ID.
func (id *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = ID{}
		return nil
	}
	v, err := Encode(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
