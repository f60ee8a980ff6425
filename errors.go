package eefs

import "fmt"

// Errno is the engine's flat error taxonomy. Every public operation
// returns either a non-negative result (a descriptor, a byte count, or
// zero) or one of these negative sentinels; nothing is retried and
// nothing wraps a lower-level error, since the medium's own failures are
// not modeled here (see Medium).
type Errno int32

// Error codes. Success is zero so that callers can treat a non-negative
// Errno-shaped return as success without a separate boolean, mirroring the
// flight-software convention this engine is modeled on.
const (
	Success              Errno = 0
	Error                Errno = -1
	InvalidArgument      Errno = -2
	UnsupportedOption    Errno = -3
	PermissionDenied     Errno = -4
	FileNotFound         Errno = -5
	NoFreeFileDescriptor Errno = -6
	NoSpaceLeftOnDevice  Errno = -7
	NoSuchDevice         Errno = -8
	DeviceIsBusy         Errno = -9
	ReadOnlyFileSystem   Errno = -10
)

var errnoNames = map[Errno]string{
	Success:              "Success",
	Error:                "Error",
	InvalidArgument:      "InvalidArgument",
	UnsupportedOption:    "UnsupportedOption",
	PermissionDenied:     "PermissionDenied",
	FileNotFound:         "FileNotFound",
	NoFreeFileDescriptor: "NoFreeFileDescriptor",
	NoSpaceLeftOnDevice:  "NoSpaceLeftOnDevice",
	NoSuchDevice:         "NoSuchDevice",
	DeviceIsBusy:         "DeviceIsBusy",
	ReadOnlyFileSystem:   "ReadOnlyFileSystem",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Errno(%d)", int32(e))
}

// IsError reports whether e represents a failure, i.e. e is not Success.
func (e Errno) IsError() bool {
	return e != Success
}
