package fdiskui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"m65fdisk/format"
	"m65fdisk/sector"
	"m65fdisk/syspart"
)

// RedrawInterval is the minimum time between two map redraws.
const RedrawInterval = 50 * time.Millisecond

const statusHistory = 3

// Reporter shows a format run on a UI. It satisfies format.Progress.
type Reporter struct {
	ui      *UI
	tracker *Tracker
	title   string

	current  format.Phase
	messages []string
	started  time.Time
	drawn    time.Time
	now      func() time.Time
}

// NewReporter returns a reporter drawing on ui under the given title.
func NewReporter(ui *UI, title string) *Reporter {
	return &Reporter{ui: ui, title: title, now: time.Now}
}

// Tracker returns the sector tracker, or nil before Start.
func (r *Reporter) Tracker() *Tracker {
	return r.tracker
}

func (r *Reporter) Start(p format.Plan) {
	l := p.Layout
	r.started = r.now()
	r.tracker = NewTracker(l.DeviceSectors)

	// everything the run writes outside seeded file data
	r.tracker.MarkStructure(0, 0)
	r.tracker.MarkStructure(l.System.Start, l.System.Start+syspart.ReservedSectors-1)
	r.tracker.MarkStructure(p.System.FreezeDir, p.System.FreezeDirEnd())
	r.tracker.MarkStructure(p.System.ServiceDir, p.System.ServiceDirEnd())
	r.tracker.MarkStructure(l.FAT32.Start, l.AbsRootDir()+l.FAT.SectorsPerCluster-1)

	names := make([]string, len(format.Phases))
	for i, ph := range format.Phases {
		names[i] = string(ph)
	}

	r.ui.SetTitle(r.title)
	r.ui.SetSummaryLines(p.Summary())
	r.ui.SetLegend([]string{
		fmt.Sprintf("Legend: %c written  %c structures  %c untouched   (q/Esc/Ctrl-C to stop)",
			GlyphWritten, GlyphStructure, GlyphUntouched),
	})
	r.ui.SetPhases(names)
	r.redraw(true)
}

func (r *Reporter) Phase(ph format.Phase) {
	if r.current != "" {
		r.ui.SetPhaseDone(string(r.current))
	}
	r.current = ph
	r.redraw(true)
}

func (r *Reporter) Written(first, count uint32) {
	if r.tracker == nil {
		return
	}
	r.tracker.Mark(first, count)
	r.redraw(false)
}

func (r *Reporter) Message(msg string) {
	r.messages = append(r.messages, msg)
	if len(r.messages) > statusHistory {
		r.messages = r.messages[len(r.messages)-statusHistory:]
	}
	r.redraw(true)
}

// Finish checks off the last phase and shows the outcome.
func (r *Reporter) Finish(res *format.Result, err error) {
	if err == nil && r.current != "" {
		r.ui.SetPhaseDone(string(r.current))
	}
	switch {
	case err != nil:
		r.messages = append(r.messages, "!! "+err.Error())
	case res != nil:
		r.messages = append(r.messages, "SD Card has been formatted.", res.ClosingMessage())
	}
	r.redraw(true)
}

func (r *Reporter) redraw(force bool) {
	now := r.now()
	if !force && now.Sub(r.drawn) < RedrawInterval {
		return
	}
	r.drawn = now

	if r.tracker != nil {
		w, rows := r.ui.MapArea()
		r.ui.SetProgressMap(r.tracker.Render(w, rows))
	}
	r.ui.SetStatusLines(r.statusLines(now))
	r.ui.LayoutAndDraw()
}

func (r *Reporter) statusLines(now time.Time) []string {
	var written, total, last uint64
	if r.tracker != nil {
		written, total, last = r.tracker.Written(), r.tracker.Sectors(), r.tracker.Last()
	}
	elapsed := now.Sub(r.started).Truncate(time.Second)
	rate := "-"
	if s := elapsed.Seconds(); s > 0 {
		rate = humanize.IBytes(uint64(float64(written*sector.Size)/s)) + "/s"
	}

	lines := []string{
		fmt.Sprintf("Absolute: $%08X   Written: %d / %d sectors (%s)", last, written, total, humanize.IBytes(written*sector.Size)),
		fmt.Sprintf("Elapsed: %s   Rate: %s", elapsed, rate),
		"Current op: " + string(r.current),
	}
	return append(lines, r.messages...)
}

var _ format.Progress = (*Reporter)(nil)

// Title returns the screen title for formatting a device of the given size.
func Title(device string, sectors uint32) string {
	return fmt.Sprintf("MEGA65 FDISK – %s  %s", device, humanize.IBytes(uint64(sectors)*sector.Size))
}
