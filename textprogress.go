package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"m65fdisk/format"
	"m65fdisk/sector"
)

// textProgress prints one line per phase and message. Used with --no-ui and
// when standard output is not a terminal.
type textProgress struct {
	out     io.Writer
	written uint64
}

func (p *textProgress) Start(format.Plan) {}

func (p *textProgress) Phase(ph format.Phase) {
	fmt.Fprintf(p.out, "%s...\n", ph)
}

func (p *textProgress) Written(_, count uint32) {
	p.written += uint64(count)
}

func (p *textProgress) Message(msg string) {
	fmt.Fprintf(p.out, "  %s\n", msg)
}

func (p *textProgress) done() {
	fmt.Fprintf(p.out, "%d sectors (%s) written\n", p.written, humanize.IBytes(p.written*sector.Size))
}
