package syspart

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"m65fdisk/sector"
)

// ErrInvalidConfig is returned for configuration values that do not fit the sector.
var ErrInvalidConfig = errors.New("invalid system configuration")

// VideoMode selects the default video standard.
type VideoMode byte

const (
	VideoPAL  VideoMode = 0x00
	VideoNTSC VideoMode = 0x80
)

// ParseVideoMode accepts "pal" or "ntsc".
func ParseVideoMode(s string) (VideoMode, error) {
	switch strings.ToLower(s) {
	case "pal":
		return VideoPAL, nil
	case "ntsc":
		return VideoNTSC, nil
	}
	return 0, fmt.Errorf("%w: video mode %q, want pal or ntsc", ErrInvalidConfig, s)
}

func (v VideoMode) String() string {
	if v == VideoPAL {
		return "PAL"
	}
	return "NTSC"
}

// DMAgic revisions.
const (
	DMAgicF011A byte = 0x00
	DMAgicF011B byte = 0x01
)

const (
	cfgVersion    = 0x00
	cfgVideo      = 0x02
	cfgAudio      = 0x03
	cfgFloppy     = 0x04
	cfgAmigaMouse = 0x05
	cfgMAC        = 0x06
	cfgDiskImage  = 0x10
	cfgDMAgic     = 0x20

	// the name is NUL terminated before the DMAgic byte
	diskImageMax = cfgDMAgic - cfgDiskImage - 1

	audioAmpMono  = 0x41
	floppySDCard  = 0x00
	configVersion = 0x0101
)

// DefaultDiskImage is the disk image mounted at boot.
const DefaultDiskImage = "mega65.d81"

// Config holds the defaults written to the configuration sector.
type Config struct {
	Video      VideoMode
	AmigaMouse bool
	MAC        net.HardwareAddr
	DiskImage  string
	DMAgic     byte
}

// Option configures a Config.
type Option func(*Config)

// WithVideoMode sets the default video standard.
func WithVideoMode(v VideoMode) Option {
	return func(c *Config) {
		c.Video = v
	}
}

// WithMAC sets the ethernet address.
func WithMAC(mac net.HardwareAddr) Option {
	return func(c *Config) {
		c.MAC = mac
	}
}

// WithDefaultDiskImage sets the disk image name mounted at boot.
func WithDefaultDiskImage(name string) Option {
	return func(c *Config) {
		c.DiskImage = name
	}
}

// WithDMAgic sets the DMA controller revision.
func WithDMAgic(rev byte) Option {
	return func(c *Config) {
		c.DMAgic = rev
	}
}

// WithAmigaMouse toggles automatic Amiga mouse detection.
func WithAmigaMouse(on bool) Option {
	return func(c *Config) {
		c.AmigaMouse = on
	}
}

// NewConfig returns the factory configuration with opts applied.
func NewConfig(opts ...Option) Config {
	c := Config{
		Video:      VideoNTSC,
		AmigaMouse: true,
		MAC:        net.HardwareAddr{0x41, 0x41, 0x41, 0x41, 0x41, 0x41},
		DiskImage:  DefaultDiskImage,
		DMAgic:     DMAgicF011B,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// Validate checks that every field fits its slot in the sector.
func (c Config) Validate() error {
	if c.Video != VideoPAL && c.Video != VideoNTSC {
		return fmt.Errorf("%w: video mode $%02X", ErrInvalidConfig, byte(c.Video))
	}
	if len(c.MAC) != 6 {
		return fmt.Errorf("%w: MAC address must be 6 bytes, got %d", ErrInvalidConfig, len(c.MAC))
	}
	if len(c.DiskImage) > diskImageMax {
		return fmt.Errorf("%w: disk image name %q longer than %d bytes", ErrInvalidConfig, c.DiskImage, diskImageMax)
	}
	for i := 0; i < len(c.DiskImage); i++ {
		if c.DiskImage[i] < 0x20 || c.DiskImage[i] > 0x7e {
			return fmt.Errorf("%w: disk image name %q is not printable ASCII", ErrInvalidConfig, c.DiskImage)
		}
	}
	if c.DMAgic != DMAgicF011A && c.DMAgic != DMAgicF011B {
		return fmt.Errorf("%w: DMAgic revision %d", ErrInvalidConfig, c.DMAgic)
	}
	return nil
}

// ConfigSector renders c. The caller validates first; oversize values are truncated.
func ConfigSector(c Config) *sector.Image {
	img := sector.New()
	img[cfgVersion] = configVersion >> 8
	img[cfgVersion+1] = configVersion & 0xff
	img[cfgVideo] = byte(c.Video)
	img[cfgAudio] = audioAmpMono
	img[cfgFloppy] = floppySDCard
	if c.AmigaMouse {
		img[cfgAmigaMouse] = 0x01
	}
	if len(c.MAC) >= 6 {
		img.CopyFrom(cfgMAC, c.MAC[:6])
	}
	name := c.DiskImage
	if len(name) > diskImageMax {
		name = name[:diskImageMax]
	}
	img.CopyFrom(cfgDiskImage, []byte(name))
	img[cfgDMAgic] = c.DMAgic
	return img
}
