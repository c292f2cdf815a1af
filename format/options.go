package format

import (
	"time"

	"go.uber.org/zap"

	"m65fdisk/fat32"
	"m65fdisk/payload"
	"m65fdisk/syspart"
)

// Option to control a format run.
type Option func(*Options)

// Options for Format.
type Options struct {
	Logger   *zap.Logger
	Progress Progress
	// Confirm is asked once before the first write. A nil Confirmer proceeds.
	Confirm  Confirmer
	Files    []payload.File
	System   syspart.Config
	Label    [11]byte
	Now      func() time.Time
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithProgress sets the progress sink.
func WithProgress(p Progress) Option {
	return func(o *Options) {
		o.Progress = p
	}
}

// WithConfirm sets who approves the destructive part of the run.
func WithConfirm(c Confirmer) Option {
	return func(o *Options) {
		o.Confirm = c
	}
}

// WithFiles appends files to seed into the FAT32 root directory.
func WithFiles(files ...payload.File) Option {
	return func(o *Options) {
		o.Files = append(o.Files, files...)
	}
}

// WithSystemConfig sets the defaults written to the system configuration sector.
func WithSystemConfig(c syspart.Config) Option {
	return func(o *Options) {
		o.System = c
	}
}

// WithVolumeLabel sets the label entry of the root directory.
func WithVolumeLabel(label [11]byte) Option {
	return func(o *Options) {
		o.Label = label
	}
}

// WithClock sets the time source for directory entry stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// NewDefaultOptions builds options with specified setters applied.
func NewDefaultOptions(setters ...Option) Options {
	opt := Options{
		Logger:   zap.NewNop(),
		Progress: nopProgress{},
		System:   syspart.NewConfig(),
		Label:    fat32.DefaultLabel,
		Now:      time.Now,
	}

	for _, o := range setters {
		o(&opt)
	}

	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Progress == nil {
		opt.Progress = nopProgress{}
	}

	return opt
}
