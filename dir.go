package eefs

import (
	"github.com/jacobsa/reqtrace"
	"github.com/nasa/eefs/eefsfmt"
	"golang.org/x/net/context"
)

// DirEntry is one slot returned by ReadDir, including dead slots (InUse
// false), since directory iteration walks the whole FAT rather than just
// live names.
type DirEntry struct {
	Index      int
	InUse      bool
	Filename   string
	FileSize   uint32
	Attributes uint32
}

// OpenDir reserves the process's single directory descriptor against
// table. It fails with DeviceIsBusy if a directory iteration is already in
// progress.
func (e *Engine) OpenDir(ctx context.Context, table *InodeTable) Errno {
	_, report := reqtrace.StartSpan(ctx, "eefs.OpenDir")

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dirFD.inUse {
		return traceReport(report, DeviceIsBusy)
	}

	e.dirFD = dirDescriptor{inUse: true, table: table, index: 0}
	return traceReport(report, Success)
}

// ReadDir returns the next slot in table, including deleted ones. The
// second return value is false once the iterator has reached
// NumberOfFiles; callers stop on the first false regardless of the Errno,
// which is Success unless the descriptor was never opened
// (InvalidArgument) or a slot header could not be read (Error).
func (e *Engine) ReadDir(ctx context.Context) (DirEntry, bool, Errno) {
	_, report := reqtrace.StartSpan(ctx, "eefs.ReadDir")

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dirFD.inUse {
		return DirEntry{}, false, traceReport(report, InvalidArgument)
	}

	table := e.dirFD.table
	if e.dirFD.index >= table.numberOfFiles {
		report(nil)
		return DirEntry{}, false, Success
	}

	table.medium.Lock()
	defer table.medium.Unlock()

	index := e.dirFD.index
	header, err := table.readFileHeader(index)
	if err != nil {
		return DirEntry{}, false, traceReport(report, Error)
	}

	e.dirFD.index++

	entry := DirEntry{
		Index:      index,
		InUse:      header.InUse != 0,
		Filename:   eefsfmt.FilenameString(header.Filename),
		FileSize:   header.FileSize,
		Attributes: header.Attributes,
	}
	return entry, true, traceReport(report, Success)
}

// CloseDir releases the directory descriptor.
func (e *Engine) CloseDir(ctx context.Context) Errno {
	_, report := reqtrace.StartSpan(ctx, "eefs.CloseDir")

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dirFD.inUse {
		return traceReport(report, InvalidArgument)
	}

	e.dirFD = dirDescriptor{}
	return traceReport(report, Success)
}
