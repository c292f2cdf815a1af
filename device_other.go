//go:build !linux && !darwin

package main

import (
	"fmt"
	"os"
	"runtime"
)

var errNoRawDevices = fmt.Errorf("raw devices are not supported on %s, use --out to build an image", runtime.GOOS)

func openBlockDevice(string) (*os.File, int64, func() error, error) {
	return nil, 0, nil, errNoRawDevices
}

func deviceSize(string) (int64, error) {
	return 0, errNoRawDevices
}

func probeContent(*os.File) string {
	return ""
}

func discoverDevices() ([]deviceInfo, error) {
	return nil, errNoRawDevices
}

func resolveMount(string) (string, string) {
	return "", ""
}

func listMounted() []mountedVol {
	return nil
}

func deviceDetails(string) (string, string) {
	return "Disk", "-"
}

const deviceNotes = "Only image files are supported on this platform."
