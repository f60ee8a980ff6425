package eefs

import "github.com/nasa/eefs/eefsfmt"

// Compile-time capacity constants. The real flight build fixes these at
// compile time rather than reading them from configuration, since the
// descriptor pools and inode tables are static arrays sized for the
// tightest RAM budget the target allows.
const (
	// MaxFiles is N, the per-volume cap on live-plus-dead slots (the FAT
	// entry count).
	MaxFiles = 64

	// MaxOpenFiles is the size of the process-wide open-file descriptor
	// pool, shared by every mounted volume.
	MaxOpenFiles = 20

	// MaxOpenDirs is the number of directory descriptors. The engine
	// supports exactly one outstanding directory iteration at a time.
	MaxOpenDirs = 1

	// MaxFilenameSize is the width of the on-medium filename field,
	// including its zero padding.
	MaxFilenameSize = eefsfmt.MaxFilenameSize

	// DefaultCreatSpareBytes is the default padding added to a new file's
	// slot beyond its size at Close, rounded up to a 4-byte multiple to
	// arrive at MaxFileSize.
	DefaultCreatSpareBytes = 512
)
