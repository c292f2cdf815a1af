package format

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"m65fdisk/geometry"
	"m65fdisk/payload"
	"m65fdisk/sector"
	"m65fdisk/syspart"
)

// ErrNotConfirmed aborts a run the operator did not approve. Nothing has been written.
var ErrNotConfirmed = errors.New("entered text does not match")

// Confirmation phrases.
const (
	PhraseDelete = "DELETE EVERYTHING"
	PhraseBatch  = "BATCH MODE"
	PhraseFixMBR = "FIX MBR"
)

// Decision is the operator's answer to a Plan.
type Decision int

const (
	Mismatch Decision = iota
	Proceed
	FixMBROnly
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case FixMBROnly:
		return "fix MBR only"
	}
	return "mismatch"
}

// ParseConfirmation maps typed text to a Decision. Case matters.
func ParseConfirmation(text string) Decision {
	switch strings.TrimSpace(text) {
	case PhraseDelete, PhraseBatch:
		return Proceed
	case PhraseFixMBR:
		return FixMBROnly
	}
	return Mismatch
}

// Plan is what a run is about to do, shown to the operator before anything is written.
type Plan struct {
	Layout geometry.Layout
	System syspart.Layout
	Files  []payload.File
}

// Summary renders the plan as operator-facing lines.
func (p Plan) Summary() []string {
	l := p.Layout
	lines := []string{
		fmt.Sprintf("Device:           %d sectors (%s)", l.DeviceSectors, sizeOf(l.DeviceSectors)),
		fmt.Sprintf("FAT32 partition:  $%08X - $%08X (%s)", l.FAT32.Start, l.FAT32.End()-1, sizeOf(l.FAT32.Length)),
		fmt.Sprintf("  %d clusters, %d sectors per FAT, root dir @ $%08X", l.FAT.ClusterCount, l.FAT.FATLength, l.AbsRootDir()),
		fmt.Sprintf("System partition: $%08X - $%08X (%s)", l.System.Start, l.System.End()-1, sizeOf(l.System.Length)),
		fmt.Sprintf("  %5d Freeze and OS Service slots", p.System.SlotCount),
	}
	for _, f := range p.Files {
		lines = append(lines, fmt.Sprintf("  seed %-12s %s", f.Name, humanize.IBytes(uint64(f.Size))))
	}
	return lines
}

func sizeOf(sectors uint32) string {
	return humanize.IBytes(uint64(sectors) * sector.Size)
}

// Confirmer approves a Plan.
type Confirmer interface {
	Confirm(ctx context.Context, p Plan) (Decision, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Plan) (Decision, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Plan) (Decision, error) {
	return f(ctx, p)
}

// Always is a Confirmer that returns d without asking.
func Always(d Decision) Confirmer {
	return ConfirmFunc(func(context.Context, Plan) (Decision, error) {
		return d, nil
	})
}
