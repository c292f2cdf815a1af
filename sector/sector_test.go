package sector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m65fdisk/sector"
)

func TestLittleEndianHelpers(t *testing.T) {
	t.Parallel()

	img := sector.New()
	img.PutUint16(0x1c, 0xbeef)
	img.PutUint32(0x20, 0x00400000)

	assert.Equal(t, []byte{0xef, 0xbe}, img.Bytes()[0x1c:0x1e])
	assert.Equal(t, []byte{0x00, 0x00, 0x40, 0x00}, img.Bytes()[0x20:0x24])
	assert.Equal(t, uint16(0xbeef), img.Uint16(0x1c))
	assert.Equal(t, uint32(0x00400000), img.Uint32(0x20))
}

func TestClearAndSignature(t *testing.T) {
	t.Parallel()

	img := sector.New()
	require.False(t, img.HasSignature())

	img.CopyFrom(0, []byte("MEGA65"))
	img.SetSignature()
	require.True(t, img.HasSignature())
	assert.Equal(t, byte(0x55), img[510])
	assert.Equal(t, byte(0xaa), img[511])

	img.Clear()
	assert.Equal(t, sector.Image{}, *img)
}

func TestCopyFromTruncates(t *testing.T) {
	t.Parallel()

	img := sector.New()
	img.CopyFrom(508, []byte{1, 2, 3, 4, 5, 6})

	assert.Equal(t, []byte{1, 2, 3, 4}, img.Bytes()[508:])
}

func TestCount(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		n    int64
		want int64
	}{
		{0, 0},
		{1, 1},
		{512, 1},
		{513, 2},
		{4096, 8},
	} {
		assert.Equal(t, tc.want, sector.Count(tc.n), "n=%d", tc.n)
	}
}
