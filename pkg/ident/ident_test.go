package ident

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownLayout(t *testing.T) {
	id, err := Encode("a")
	require.NoError(t, err)
	want := ID{}
	want[14] = 38
	want[15] = 1
	assert.Equal(t, want, id)

	id, err = Encode("griffpatch")
	require.NoError(t, err)
	assert.Equal(t, ID{0, 0, 0, 0, 0, 0, 0, 11, 104, 230, 109, 107, 174, 237, 236, 10}, id)
}

func TestRoundTripRandom(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		n := 1 + r.Intn(MaxLen)
		var sb strings.Builder
		for j := 0; j < n; j++ {
			sb.WriteByte(alphabet[r.Intn(len(alphabet))])
		}
		name := sb.String()
		id, err := Encode(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, Decode(id))
		assert.Equal(t, n, id.Len())
	}
}

func TestRoundTripEverySymbolInEveryPosition(t *testing.T) {
	for pos := 0; pos < MaxLen; pos++ {
		for k := 0; k < len(alphabet); k++ {
			b := []byte(strings.Repeat("z", MaxLen))
			b[pos] = alphabet[k]
			name := string(b)
			id, err := Encode(name)
			require.NoError(t, err)
			require.Equal(t, name, id.String())
		}
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrEmpty},
		{"too long", strings.Repeat("a", MaxLen+1), ErrTooLong},
		{"space", "bad name", ErrInvalidSymbol},
		{"dot", "a.b", ErrInvalidSymbol},
		{"non ascii", "café", ErrInvalidSymbol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, Valid(tt.in))
		})
	}
}

func TestMaxLengthAccepted(t *testing.T) {
	name := strings.Repeat("_", MaxLen)
	id, err := Encode(name)
	require.NoError(t, err)
	assert.Equal(t, name, Decode(id))
}

func TestDecodeIsTotal(t *testing.T) {
	var id ID
	for i := range id {
		id[i] = 0xff
	}
	assert.Len(t, Decode(id), MaxLen)
}

func TestAlphabetSorted(t *testing.T) {
	require.Len(t, alphabet, 64)
	for i := 1; i < len(alphabet); i++ {
		assert.Less(t, alphabet[i-1], alphabet[i])
	}
}

func TestFromBytes(t *testing.T) {
	id, err := Encode("scratchcat")
	require.NoError(t, err)
	back, ok := FromBytes(id.Bytes())
	require.True(t, ok)
	assert.Equal(t, id, back)
	_, ok = FromBytes([]byte{1, 2})
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	good, err := Encode("griffpatch")
	require.NoError(t, err)
	assert.NoError(t, good.Validate())

	long := good
	long[Size-1] = 30
	stray := good
	stray[0] = 1
	tail, err := Encode("a")
	require.NoError(t, err)
	tail[14] |= 0xc0

	tests := []struct {
		name string
		id   ID
		want error
	}{
		{"zero", ID{}, ErrEmpty},
		{"length byte above max", long, ErrTooLong},
		{"bits in unused bytes", stray, ErrNonCanonical},
		{"bits past the last symbol", tail, ErrNonCanonical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.id.Validate(), tt.want)
		})
	}
}

func TestUnmarshalTextEmptyIsZero(t *testing.T) {
	id := ID{1}
	require.NoError(t, id.UnmarshalText(nil))
	assert.True(t, id.IsZero())
}

func TestPackedOrderIsNotNameOrder(t *testing.T) {
	ab, err := Encode("ab")
	require.NoError(t, err)
	ba, err := Encode("ba")
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Compare(ab[:], ba[:]))
}
