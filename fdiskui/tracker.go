package fdiskui

import (
	"sort"
	"strings"
)

// Map glyphs.
const (
	GlyphWritten   = '█'
	GlyphStructure = '■'
	GlyphUntouched = '░'
)

// span is a half-open sector range [lo, hi).
type span struct {
	lo, hi uint64
}

// spans is a sorted list of disjoint, non-adjacent ranges.
type spans []span

func (s spans) add(lo, hi uint64) spans {
	if lo >= hi {
		return s
	}
	// first span that ends at or after lo
	i := sort.Search(len(s), func(i int) bool { return s[i].hi >= lo })
	j := i
	for j < len(s) && s[j].lo <= hi {
		lo = min(lo, s[j].lo)
		hi = max(hi, s[j].hi)
		j++
	}
	out := append(s[:i:i], span{lo, hi})
	return append(out, s[j:]...)
}

func (s spans) overlaps(lo, hi uint64) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].hi > lo })
	return i < len(s) && s[i].lo < hi
}

func (s spans) total() uint64 {
	var n uint64
	for _, r := range s {
		n += r.hi - r.lo
	}
	return n
}

// Tracker records which sectors of a device have been written.
type Tracker struct {
	sectors    uint64
	written    spans
	structures spans
	last       uint64
}

// NewTracker returns a tracker for a device of the given size.
func NewTracker(sectors uint32) *Tracker {
	return &Tracker{sectors: uint64(sectors)}
}

// Mark records count sectors from first as written.
func (t *Tracker) Mark(first, count uint32) {
	lo := uint64(first)
	hi := min(lo+uint64(count), t.sectors)
	t.written = t.written.add(lo, hi)
	if hi > lo {
		t.last = hi - 1
	}
}

// MarkStructure flags the inclusive range first..last as a structure area
// that the run is going to write.
func (t *Tracker) MarkStructure(first, last uint32) {
	if first > last {
		return
	}
	t.structures = t.structures.add(uint64(first), min(uint64(last)+1, t.sectors))
}

// Written returns how many distinct sectors have been written.
func (t *Tracker) Written() uint64 {
	return t.written.total()
}

// Last returns the last sector written.
func (t *Tracker) Last() uint64 {
	return t.last
}

// Sectors returns the device size.
func (t *Tracker) Sectors() uint64 {
	return t.sectors
}

// Render draws the whole device into at most width*rows cells. Each cell
// covers an equal share of the sectors and shows the strongest state in it.
func (t *Tracker) Render(width, rows int) []string {
	if width <= 0 || rows <= 0 || t.sectors == 0 {
		return nil
	}
	cells := uint64(width * rows)
	if cells > t.sectors {
		cells = t.sectors
	}

	var lines []string
	var b strings.Builder
	for c := uint64(0); c < cells; c++ {
		lo := c * t.sectors / cells
		hi := (c + 1) * t.sectors / cells

		g := GlyphUntouched
		switch {
		case t.written.overlaps(lo, hi):
			g = GlyphWritten
		case t.structures.overlaps(lo, hi):
			g = GlyphStructure
		}
		b.WriteRune(g)

		if (c+1)%uint64(width) == 0 {
			lines = append(lines, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		lines = append(lines, b.String())
	}
	return lines
}
