// Package fdiskui is the full-screen terminal display shown while a card is
// being formatted: title, plan summary, sector map, phases and status lines.
package fdiskui

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// ErrInterrupted is returned when the operator asks to stop the run.
var ErrInterrupted = errors.New("interrupted")

// fixed rows outside the map: phase rule, status rule
const chromeRows = 2

// UI renders caller supplied content on a tcell screen. All methods are safe
// for use from the formatting goroutine while the event loop runs.
type UI struct {
	mu       sync.Mutex
	s        tcell.Screen
	stopChan chan struct{}
	once     sync.Once
	owned    bool

	title        string
	phases       []string
	phaseDone    map[string]bool
	summaryLines []string
	legendLines  []string
	statusLines  []string
	mapLines     []string
}

// NewUI takes over the terminal.
func NewUI() (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	u, err := NewUIWithScreen(s)
	if err != nil {
		return nil, err
	}
	u.owned = true
	return u, nil
}

// NewUIWithScreen initializes s and starts reading its key events.
func NewUIWithScreen(s tcell.Screen) (*UI, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	u := &UI{
		s:         s,
		stopChan:  make(chan struct{}),
		phaseDone: make(map[string]bool),
	}
	go u.eventLoop()
	return u, nil
}

// Close restores the terminal.
func (u *UI) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.s == nil {
		return
	}
	u.once.Do(func() {
		close(u.stopChan)
	})
	u.s.Fini()
	u.s = nil
	if u.owned {
		fmt.Print("\033[?1049l\033[?25h")
	}
}

// RequestStop signals that the operator wants to stop. Safe to call repeatedly.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
	})
}

// Stopped is closed once a stop has been requested.
func (u *UI) Stopped() <-chan struct{} {
	return u.stopChan
}

// IsStopped reports whether a stop has been requested.
func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// Size returns the current screen width and height.
func (u *UI) Size() (width, height int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.s == nil {
		return 0, 0
	}
	return u.s.Size()
}

// MapArea returns the cells left for the sector map with the current content.
func (u *UI) MapArea() (width, rows int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.s == nil {
		return 0, 0
	}
	w, h := u.s.Size()
	used := len(u.summaryLines) + len(u.legendLines) + len(u.statusLines) + chromeRows
	if u.title != "" {
		used++
	}
	used += len(wrapPhases(u.phases, u.phaseDone, w))
	return w, max(1, h-used)
}

func putStr(s tcell.Screen, x, y int, str string) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break
		}
		s.SetContent(pos, y, r, nil, tcell.StyleDefault)
	}
}

// LayoutAndDraw redraws the whole screen from the current content.
func (u *UI) LayoutAndDraw() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.s == nil {
		return
	}
	u.s.Clear()
	w, h := u.s.Size()
	y := 0

	line := func(s string) {
		if y < h {
			putStr(u.s, 0, y, s)
			y++
		}
	}
	rule := func(label string) {
		if y < h {
			putStr(u.s, 0, y, strings.Repeat("─", w))
			putStr(u.s, 2, y, label)
			y++
		}
	}

	if u.title != "" && y < h {
		putStr(u.s, 0, y, strings.Repeat("═", w))
		putStr(u.s, max(0, (w-len([]rune(u.title)))/2), y, u.title)
		y++
	}
	for _, l := range u.summaryLines {
		line(l)
	}
	for _, l := range u.legendLines {
		line(l)
	}

	phases := wrapPhases(u.phases, u.phaseDone, w)
	avail := h - y - len(phases) - len(u.statusLines) - chromeRows
	for i := 0; i < len(u.mapLines) && i < max(1, avail); i++ {
		line(u.mapLines[i])
	}

	if len(phases) > 0 {
		rule(" Phase ")
		for _, l := range phases {
			line(l)
		}
	}
	if len(u.statusLines) > 0 {
		rule(" Status ")
		for _, l := range u.statusLines {
			line(l)
		}
	}

	u.s.Show()
}

// wrapPhases flows the phase labels with their check boxes over lines of width w.
func wrapPhases(phases []string, done map[string]bool, w int) []string {
	var (
		lines []string
		b     strings.Builder
	)
	for _, p := range phases {
		mark := ' '
		if done[strings.ToLower(p)] {
			mark = '✓'
		}
		item := fmt.Sprintf("[%c]%s", mark, p)
		n := len([]rune(b.String()))
		if n > 0 && n+1+len([]rune(item)) > w {
			lines = append(lines, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(item)
	}
	if b.Len() > 0 {
		lines = append(lines, b.String())
	}
	return lines
}

// SetPhaseDone checks off phase p. Names are case-insensitive.
func (u *UI) SetPhaseDone(p string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.phaseDone[strings.ToLower(p)] = true
}

// SetPhases sets the phase labels in display order.
func (u *UI) SetPhases(labels []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.phases = append([]string(nil), labels...)
}

func (u *UI) SetTitle(t string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.title = t
}

func (u *UI) SetSummaryLines(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.summaryLines = append([]string(nil), lines...)
}

func (u *UI) SetLegend(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.legendLines = append([]string(nil), lines...)
}

func (u *UI) SetStatusLines(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statusLines = append([]string(nil), lines...)
}

// SetProgressMap sets the rendered sector map rows.
func (u *UI) SetProgressMap(lines []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mapLines = append([]string(nil), lines...)
}

func (u *UI) eventLoop() {
	for {
		u.mu.Lock()
		s := u.s
		u.mu.Unlock()
		if s == nil {
			return
		}

		switch ev := s.PollEvent().(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC,
				ev.Key() == tcell.KeyEscape,
				ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			}
		case *tcell.EventResize:
			s.Sync()
		case nil:
			return
		}
	}
}
