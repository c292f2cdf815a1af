package fat32

import "errors"

var (
	ErrNameTooLong   = errors.New("name does not fit 8.3")
	ErrInvalidName   = errors.New("invalid short name")
	ErrExists        = errors.New("file already exists")
	ErrDirectoryFull = errors.New("root directory full")
	ErrNoSpace       = errors.New("no contiguous run of free clusters")
)
