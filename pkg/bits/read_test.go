package bits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadBits(t *testing.T) {
	buf := []byte{0xA8, 0xC7, 0xD6, 0xAA, 0xBB, 0x10}
	pos := 0
	v, _ := ReadBits(buf, &pos, 6)
	require.Equal(t, uint64(0x2a), v)
	v, _ = ReadBits(buf, &pos, 6)
	require.Equal(t, uint64(0x0c), v)
	v, _ = ReadBits(buf, &pos, 6)
	require.Equal(t, uint64(0x1f), v)
	v, _ = ReadBits(buf, &pos, 8)
	require.Equal(t, uint64(0x5a), v)
	v, _ = ReadBits(buf, &pos, 20)
	require.Equal(t, uint64(0xaaec4), v)
}

func TestReadBitsError(t *testing.T) {
	buf := []byte{0xA8}
	pos := 0
	_, err := ReadBits(buf, &pos, 6)
	require.NoError(t, err)
	_, err = ReadBits(buf, &pos, 6)
	require.EqualError(t, err, "not enough bits")
}

func TestReadGolombUnsigned(t *testing.T) {
	for _, ca := range []struct {
		name string
		byts []byte
		v    uint32
	}{
		{"zero", []byte{0x80}, 0},
		{"one", []byte{0x40}, 1},
		{"two", []byte{0x60}, 2},
		{"three", []byte{0x20}, 3},
		{"six", []byte{0x38}, 6},
	} {
		t.Run(ca.name, func(t *testing.T) {
			pos := 0
			v, err := ReadGolombUnsigned(ca.byts, &pos)
			require.NoError(t, err)
			require.Equal(t, ca.v, v)
		})
	}
}

func TestReadGolombUnsignedErrors(t *testing.T) {
	buf := []byte{0x00}
	pos := 0
	_, err := ReadGolombUnsigned(buf, &pos)
	require.EqualError(t, err, "not enough bits")

	buf = []byte{0x00, 0x01}
	pos = 0
	_, err = ReadGolombUnsigned(buf, &pos)
	require.EqualError(t, err, "not enough bits")

	buf = []byte{0x00, 0x00, 0x00, 0x00, 0x01}
	pos = 0
	_, err = ReadGolombUnsigned(buf, &pos)
	require.EqualError(t, err, "invalid value")
}

func TestReadGolombSigned(t *testing.T) {
	buf := []byte{0x38}
	pos := 0
	v, _ := ReadGolombSigned(buf, &pos)
	require.Equal(t, int32(-3), v)

	buf = []byte{0b00100100}
	pos = 0
	v, _ = ReadGolombSigned(buf, &pos)
	require.Equal(t, int32(2), v)
}

func TestReadGolombSignedErrors(t *testing.T) {
	buf := []byte{0x00}
	pos := 0
	_, err := ReadGolombSigned(buf, &pos)
	require.EqualError(t, err, "not enough bits")
}

func TestReadFlag(t *testing.T) {
	buf := []byte{0xFF}
	pos := 0
	v, _ := ReadFlag(buf, &pos)
	require.Equal(t, true, v)
}

func TestReadFlagError(t *testing.T) {
	buf := []byte{}
	pos := 0
	_, err := ReadFlag(buf, &pos)
	require.EqualError(t, err, "not enough bits")
}

func TestReadUint(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	pos := 0

	v8, err := ReadUint8(buf, &pos)
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), v8)

	v16, err := ReadUint16(buf, &pos)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0203), v16)

	v32, err := ReadUint32(buf, &pos)
	require.NoError(t, err)
	require.Equal(t, uint32(0x04050607), v32)

	_, err = ReadUint16(buf, &pos)
	require.EqualError(t, err, "not enough bits")
}

func TestBitsRemaining(t *testing.T) {
	buf := []byte{0xFF, 0x00}
	require.Equal(t, 16, BitsRemaining(buf, 0))

	pos := 0
	_, err := ReadBits(buf, &pos, 5)
	require.NoError(t, err)
	require.Equal(t, 11, BitsRemaining(buf, pos))
}

func TestByteAlign(t *testing.T) {
	pos := 0
	ByteAlign(&pos)
	require.Equal(t, 0, pos)

	pos = 1
	ByteAlign(&pos)
	require.Equal(t, 8, pos)

	pos = 15
	ByteAlign(&pos)
	require.Equal(t, 16, pos)
}

func TestMoreRBSPData(t *testing.T) {
	for _, ca := range []struct {
		name string
		byts []byte
		pos  int
		v    bool
	}{
		{"empty", []byte{}, 0, false},
		{"only stop bit", []byte{0x80}, 0, false},
		{"stop bit and alignment zeros", []byte{0xA0}, 2, false},
		{"data before stop bit", []byte{0x40}, 0, true},
		{"data after stop bit", []byte{0x88}, 0, true},
		{"stop bit in last byte", []byte{0xAA, 0x80}, 8, false},
	} {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.v, MoreRBSPData(ca.byts, ca.pos))
		})
	}
}
