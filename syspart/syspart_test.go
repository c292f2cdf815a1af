package syspart_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m65fdisk/syspart"
)

func TestHeader(t *testing.T) {
	t.Parallel()

	img, l := syspart.Header(2097152)

	assert.Equal(t, "MEGA65SYS00", string(img[:11]))
	assert.True(t, syspart.IsHeader(img))
	assert.Equal(t, make([]byte, 5), img[11:16])

	assert.Equal(t, uint32(1022), l.SlotCount)
	assert.Equal(t, uint32(256), l.DirSectors)
	assert.Equal(t, uint32(1022*1024+256), l.RegionSize)
	assert.Equal(t, uint32(2048), l.FreezeDir)
	assert.Equal(t, uint32(2048+1046784), l.ServiceDir)

	assert.Equal(t, uint32(0), img.Uint32(0x10))
	assert.Equal(t, uint32(1046784), img.Uint32(0x14))
	assert.Equal(t, uint32(1024), img.Uint32(0x18))
	assert.Equal(t, uint16(1022), img.Uint16(0x1c))
	assert.Equal(t, uint16(256), img.Uint16(0x1e))
	assert.Equal(t, uint32(1046784), img.Uint32(0x20))
	assert.Equal(t, uint32(1046784), img.Uint32(0x24))
	assert.Equal(t, uint32(1024), img.Uint32(0x28))
	assert.Equal(t, uint16(1022), img.Uint16(0x2c))
	assert.Equal(t, uint16(256), img.Uint16(0x2e))
	assert.Equal(t, make([]byte, 512-0x30), img[0x30:])

	again, _ := syspart.Header(2097152)
	assert.Equal(t, *img, *again)
}

func TestPlan(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		length uint32
		slots  uint32
		dir    uint32
	}{
		{name: "16MiB", length: 32768, slots: 14, dir: 4},
		{name: "smallest", length: 2050, slots: 0, dir: 1},
		{name: "one slot does not fit", length: 4097, slots: 0, dir: 1},
		{name: "two slots", length: 6146, slots: 2, dir: 1},
		{name: "three slots", length: 8195, slots: 3, dir: 1},
		{name: "clamped", length: 0xffffffff, slots: 65535, dir: 16384},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			l := syspart.Plan(tc.length)
			assert.Equal(t, tc.slots, l.SlotCount)
			assert.Equal(t, tc.dir, l.DirSectors)
			assert.Equal(t, l.FreezeDir+l.RegionSize, l.ServiceDir)
			if tc.length != 0xffffffff {
				assert.LessOrEqual(t, uint64(l.ServiceDir)+uint64(l.RegionSize), uint64(tc.length))
			}
		})
	}
}

func TestPlanFitsSweep(t *testing.T) {
	t.Parallel()

	for length := uint32(2050); length < 40000; length += 7 {
		l := syspart.Plan(length)
		require.LessOrEqual(t, l.ServiceDirEnd(), length-1, "length %d", length)
		require.Less(t, l.FreezeDirEnd(), l.ServiceDir, "length %d", length)
	}
}

func TestAbsolute(t *testing.T) {
	t.Parallel()

	l := syspart.Plan(32768).Absolute(32768)
	assert.Equal(t, uint32(32768+2048), l.FreezeDir)
	assert.Equal(t, uint32(32768+2048+14340), l.ServiceDir)
	assert.Equal(t, l.FreezeDir+3, l.FreezeDirEnd())
	assert.Equal(t, l.ServiceDir+3, l.ServiceDirEnd())
}

func TestConfigSectorDefaults(t *testing.T) {
	t.Parallel()

	c := syspart.NewConfig()
	require.NoError(t, c.Validate())

	img := syspart.ConfigSector(c)
	want := make([]byte, 512)
	copy(want, []byte{0x01, 0x01, 0x80, 0x41, 0x00, 0x01, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41})
	copy(want[0x10:], "mega65.d81")
	want[0x20] = 0x01
	assert.Equal(t, want, img[:])
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	mac, err := net.ParseMAC("02:00:5e:10:20:30")
	require.NoError(t, err)

	c := syspart.NewConfig(
		syspart.WithVideoMode(syspart.VideoPAL),
		syspart.WithMAC(mac),
		syspart.WithDefaultDiskImage("games.d81"),
		syspart.WithDMAgic(syspart.DMAgicF011A),
		syspart.WithAmigaMouse(false),
	)
	require.NoError(t, c.Validate())

	img := syspart.ConfigSector(c)
	assert.Equal(t, byte(0x00), img[0x02])
	assert.Equal(t, byte(0x00), img[0x05])
	assert.Equal(t, []byte(mac), img[0x06:0x0c])
	assert.Equal(t, "games.d81\x00", string(img[0x10:0x1a]))
	assert.Equal(t, byte(0x00), img[0x20])
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		opt  syspart.Option
	}{
		{name: "long disk image", opt: syspart.WithDefaultDiskImage("a-rather-long-name.d81")},
		{name: "no room for terminator", opt: syspart.WithDefaultDiskImage("exactly16chars.x")},
		{name: "control characters", opt: syspart.WithDefaultDiskImage("bad\nname")},
		{name: "short MAC", opt: syspart.WithMAC(net.HardwareAddr{1, 2, 3})},
		{name: "video", opt: syspart.WithVideoMode(0x40)},
		{name: "dmagic", opt: syspart.WithDMAgic(7)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.ErrorIs(t, syspart.NewConfig(tc.opt).Validate(), syspart.ErrInvalidConfig)
		})
	}

	c := syspart.NewConfig(syspart.WithDefaultDiskImage("fifteen-chars.x"))
	require.NoError(t, c.Validate())
	img := syspart.ConfigSector(c)
	assert.Equal(t, "fifteen-chars.x\x00", string(img[0x10:0x20]))

	// unvalidated overlong names are cut so the terminator survives
	img = syspart.ConfigSector(syspart.NewConfig(syspart.WithDefaultDiskImage("exactly16chars.x")))
	assert.Equal(t, "exactly16chars.\x00", string(img[0x10:0x20]))
	assert.Equal(t, syspart.DMAgicF011B, img[0x20])
}

func TestParseVideoMode(t *testing.T) {
	t.Parallel()

	v, err := syspart.ParseVideoMode("PAL")
	require.NoError(t, err)
	assert.Equal(t, syspart.VideoPAL, v)

	v, err = syspart.ParseVideoMode("ntsc")
	require.NoError(t, err)
	assert.Equal(t, syspart.VideoNTSC, v)
	assert.Equal(t, "NTSC", v.String())

	_, err = syspart.ParseVideoMode("secam")
	require.ErrorIs(t, err, syspart.ErrInvalidConfig)
}
