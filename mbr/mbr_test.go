package mbr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m65fdisk/blockio"
	"m65fdisk/geometry"
	"m65fdisk/mbr"
	"m65fdisk/sector"
)

func layout(t *testing.T, sectors uint32) geometry.Layout {
	t.Helper()

	l, err := geometry.Calculate(sectors)
	require.NoError(t, err)
	return l
}

func TestBuildLayout(t *testing.T) {
	t.Parallel()

	l := layout(t, 4194304)
	img := mbr.Build(l.FAT32, l.System)

	b := img.Bytes()
	assert.Equal(t, []byte{0x83, 0x7d, 0xcb, 0xa6}, b[0x1b8:0x1bc])

	// FAT32 entry
	assert.Equal(t, byte(0x00), b[0x1be])
	assert.Equal(t, []byte{0, 0, 0}, b[0x1bf:0x1c2], "CHS start stays zero")
	assert.Equal(t, byte(0x0c), b[0x1c2])
	assert.Equal(t, []byte{0, 0, 0}, b[0x1c3:0x1c6], "CHS end stays zero")
	assert.Equal(t, uint32(2048), img.Uint32(0x1c6))
	assert.Equal(t, l.FAT32.Length, img.Uint32(0x1ca))

	// system entry
	assert.Equal(t, byte(0x41), b[0x1d2])
	assert.Equal(t, l.System.Start, img.Uint32(0x1d6))
	assert.Equal(t, l.System.Length, img.Uint32(0x1da))

	assert.Equal(t, make([]byte, 32), b[0x1de:0x1fe], "slots 2 and 3 unused")
	assert.Equal(t, make([]byte, 0x1b8), b[:0x1b8], "no boot code")
	assert.True(t, img.HasSignature())
}

func TestBuildIsIdempotent(t *testing.T) {
	t.Parallel()

	l := layout(t, 62333952)
	assert.Equal(t, *mbr.Build(l.FAT32, l.System), *mbr.Build(l.FAT32, l.System))
}

func TestReadBack(t *testing.T) {
	t.Parallel()

	l := layout(t, 65536)
	dev := blockio.NewMemory(l.DeviceSectors)
	require.NoError(t, dev.WriteSector(0, mbr.Build(l.FAT32, l.System)))

	entries, err := mbr.Read(dev)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, geometry.TypeFAT32LBA, entries[0].Type)
	assert.Equal(t, l.FAT32.Start, entries[0].Start)
	assert.Equal(t, l.FAT32.Length, entries[0].Length)
	assert.Equal(t, geometry.TypeMEGA65, entries[1].Type)
	assert.Equal(t, l.System.Start, entries[1].Start)
	assert.Equal(t, l.System.End()-1, entries[1].LastLBA())
	assert.True(t, entries[2].Empty())
	assert.True(t, entries[3].Empty())

	assert.True(t, mbr.Matches(entries, l))
	assert.False(t, mbr.Matches(entries, layout(t, 131072)))

	assert.Equal(t, "0C  : Start=  0/ 0/   0 or 00000800 / End=  0/ 0/   0 or 00007FFF", entries[0].String())
}

func TestReadInvalid(t *testing.T) {
	t.Parallel()

	dev := blockio.NewMemory(16)

	_, err := mbr.Read(dev)
	require.ErrorIs(t, err, mbr.ErrInvalidTable)

	// signature present but a boot flag that is neither 0x00 nor 0x80
	img := sector.New()
	img[0x1be] = 0x12
	img.SetSignature()
	require.NoError(t, dev.WriteSector(0, img))

	_, err = mbr.Read(dev)
	require.ErrorIs(t, err, mbr.ErrInvalidTable)
}

func TestEntryCHSDecode(t *testing.T) {
	t.Parallel()

	dev := blockio.NewMemory(16)
	img := sector.New()
	// active, head 1, sector 1 with cylinder high bits 0b11, cylinder low 0x02
	copy(img.Bytes()[0x1be:], []byte{0x80, 0x01, 0xc1, 0x02, 0x0c, 0x03, 0x3f, 0xff})
	img.PutUint32(0x1be+8, 63)
	img.PutUint32(0x1be+12, 100)
	img.SetSignature()
	require.NoError(t, dev.WriteSector(0, img))

	entries, err := mbr.Read(dev)
	require.NoError(t, err)

	e := entries[0]
	assert.True(t, e.Bootable)
	assert.Equal(t, uint8(1), e.StartHead)
	assert.Equal(t, uint8(1), e.StartSector)
	assert.Equal(t, uint16(0x302), e.StartCylinder)
	assert.Equal(t, uint8(31), e.EndSector)
	assert.Equal(t, uint16(0xff), e.EndCylinder)
	assert.Equal(t, uint32(162), e.LastLBA())
	assert.Contains(t, e.String(), "0C*")
}
