package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"m65fdisk/format"
)

var errNoInput = errors.New("no answer on standard input")

// readLine reads one line, treating io.EOF after partial input as a line.
func readLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || s == "") {
		if errors.Is(err, io.EOF) {
			return "", errNoInput
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// promptConfirmation asks for one of the confirmation phrases until a known
// one is typed.
func promptConfirmation(ctx context.Context, in *bufio.Reader, out io.Writer, where string) (format.Decision, error) {
	for {
		if err := ctx.Err(); err != nil {
			return format.Mismatch, err
		}
		fmt.Fprintf(out, "\nType %s to continue formatting %s\n", format.PhraseDelete, where)
		fmt.Fprintf(out, "or type %s to re-write MBR: ", format.PhraseFixMBR)

		line, err := readLine(in)
		if err != nil {
			return format.Mismatch, fmt.Errorf("%w: %w", format.ErrNotConfirmed, err)
		}
		if d := format.ParseConfirmation(line); d != format.Mismatch {
			return d, nil
		}
		fmt.Fprintln(out, "Entered text does not match. Try again.")
	}
}

// selectDevice lists the compatible devices and lets the operator pick one,
// or rescan with r.
func selectDevice(in *bufio.Reader, out io.Writer, discover func() ([]deviceInfo, error)) (string, error) {
	for {
		infos, err := discover()
		if err != nil {
			return "", err
		}
		devs := compatibleDevices(infos)
		if len(devs) == 0 {
			return "", errors.New("no compatible devices detected, use --out to build an image")
		}

		fmt.Fprintln(out, "Compatible devices:")
		for i, d := range devs {
			fmt.Fprintf(out, "  %d) %s\n", i, d.Path)
		}
		fmt.Fprintf(out, "Please select SD card to modify or r to rescan (0-%d/r): ", len(devs)-1)

		line, err := readLine(in)
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, "r") {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 0 || n >= len(devs) {
			fmt.Fprintf(out, "%q is not a device number.\n", line)
			continue
		}
		return devs[n].Path, nil
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
