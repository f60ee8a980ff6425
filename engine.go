package eefs

import (
	"fmt"
	"io"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Mode is the bitmask a file descriptor's open mode is expressed in.
type Mode uint32

// Mode bits. These are the only bits Open/Creat ever store in a
// descriptor; the flag word Open accepts from callers is translated into
// this set.
const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeCreat
)

// fileDescriptor is one entry of the process-wide open-file descriptor
// pool. Pointers into the medium are absolute, resolved once at Open/Creat
// time from the owning inode table's base address.
type fileDescriptor struct {
	inUse bool
	mode  Mode

	table *InodeTable
	index int // index into table.files

	headerPointer int64 // absolute offset of the slot's file header
	dataPointer   int64 // absolute offset of the slot's payload

	byteOffset  int64
	fileSize    uint32
	maxFileSize uint32
}

// dirDescriptor is the single process-wide directory descriptor.
type dirDescriptor struct {
	inUse bool
	table *InodeTable
	index int // next slot index ReadDir will return
}

// tableIndexKey identifies one inode entry across the whole process, the
// unit invariant 6 (single-writer) is defined over.
type tableIndexKey struct {
	table *InodeTable
	index int
}

// Engine is the process-wide singleton owning the descriptor pools. Every
// public operation acquires mu for its entire duration; the lock is
// non-recursive and public operations never call one another while it is
// held. Host bindings that need more than one mounted volume share a
// single Engine across all of them.
type Engine struct {
	clock timeutil.Clock

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	fds [MaxOpenFiles]fileDescriptor

	// GUARDED_BY(mu)
	fdsInUse int

	// GUARDED_BY(mu)
	fdsHighWaterMark int

	// GUARDED_BY(mu)
	dirFD dirDescriptor
}

// NewEngine returns an Engine with empty descriptor pools, using clock to
// stamp file timestamps.
func NewEngine(clock timeutil.Clock) *Engine {
	e := &Engine{clock: clock}
	e.mu = syncutil.NewInvariantMutex(e.checkInvariants)
	return e
}

func (e *Engine) checkInvariants() {
	inUse := 0
	writers := make(map[tableIndexKey]int)
	creators := make(map[*InodeTable]int)

	for i := range e.fds {
		fd := &e.fds[i]
		if !fd.inUse {
			continue
		}
		inUse++

		if fd.byteOffset > int64(fd.fileSize) || int64(fd.fileSize) > int64(fd.maxFileSize) {
			panic(fmt.Sprintf("descriptor %d: offset/size/max out of order: %d/%d/%d", i, fd.byteOffset, fd.fileSize, fd.maxFileSize))
		}

		if fd.mode&ModeWrite != 0 {
			writers[tableIndexKey{fd.table, fd.index}]++
		}
		if fd.mode&ModeCreat != 0 {
			creators[fd.table]++
		}
	}

	// INVARIANT: fdsInUse equals the number of in-use descriptors.
	if inUse != e.fdsInUse {
		panic(fmt.Sprintf("fdsInUse mismatch: tracked %d, counted %d", e.fdsInUse, inUse))
	}

	// INVARIANT: fdsInUse <= fdsHighWaterMark.
	if e.fdsInUse > e.fdsHighWaterMark {
		panic(fmt.Sprintf("fdsInUse %d exceeds high water mark %d", e.fdsInUse, e.fdsHighWaterMark))
	}

	// INVARIANT 6: at most one WRITE descriptor per (table, index).
	for k, n := range writers {
		if n > 1 {
			panic(fmt.Sprintf("multiple writers on table=%p index=%d", k.table, k.index))
		}
	}

	// INVARIANT 7: at most one CREAT descriptor per volume.
	for t, n := range creators {
		if n > 1 {
			panic(fmt.Sprintf("multiple creators on volume %p", t))
		}
	}

	if e.dirFD.inUse && e.dirFD.table != nil && e.dirFD.index > e.dirFD.table.numberOfFiles {
		panic(fmt.Sprintf("directory descriptor index %d past NumberOfFiles %d", e.dirFD.index, e.dirFD.table.numberOfFiles))
	}
}

// allocFD scans for a free descriptor slot. Caller must hold e.mu.
func (e *Engine) allocFD() (int, Errno) {
	for i := range e.fds {
		if !e.fds[i].inUse {
			e.fds[i].inUse = true
			e.fdsInUse++
			if e.fdsInUse > e.fdsHighWaterMark {
				e.fdsHighWaterMark = e.fdsInUse
			}
			return i, Success
		}
	}
	return 0, NoFreeFileDescriptor
}

// freeFD releases a descriptor slot. Caller must hold e.mu.
func (e *Engine) freeFD(fd int) {
	e.fds[fd] = fileDescriptor{}
	e.fdsInUse--
}

// hasOpenDescriptor reports whether any file or directory descriptor
// currently points at table. Caller must hold e.mu.
func (e *Engine) hasOpenDescriptor(table *InodeTable) bool {
	for i := range e.fds {
		if e.fds[i].inUse && e.fds[i].table == table {
			return true
		}
	}
	return e.dirFD.inUse && e.dirFD.table == table
}

// HasOpenDescriptors reports whether table currently has any open file or
// directory descriptor, the same busy check FreeFS enforces, exposed for
// collaborators like eefsvol that need to refuse an unmount without
// actually tearing the table down.
func (e *Engine) HasOpenDescriptors(table *InodeTable) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasOpenDescriptor(table)
}

// hasWriter reports whether any descriptor already holds WRITE on
// (table, index). Caller must hold e.mu.
func (e *Engine) hasWriter(table *InodeTable, index int) bool {
	for i := range e.fds {
		fd := &e.fds[i]
		if fd.inUse && fd.mode&ModeWrite != 0 && fd.table == table && fd.index == index {
			return true
		}
	}
	return false
}

func (e *Engine) hasCreator(table *InodeTable) bool {
	for i := range e.fds {
		fd := &e.fds[i]
		if fd.inUse && fd.mode&ModeCreat != 0 && fd.table == table {
			return true
		}
	}
	return false
}

// GetFileDescriptorsInUse returns the number of currently open file
// descriptors across every mounted volume.
func (e *Engine) GetFileDescriptorsInUse() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fdsInUse
}

// GetFileDescriptorsHighWaterMark returns the largest number of file
// descriptors that have ever been open simultaneously.
func (e *Engine) GetFileDescriptorsHighWaterMark() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fdsHighWaterMark
}

// GetMaxFiles returns the per-volume slot cap, N.
func (e *Engine) GetMaxFiles() int {
	return MaxFiles
}

// GetMaxOpenFiles returns the size of the process-wide descriptor pool.
func (e *Engine) GetMaxOpenFiles() int {
	return MaxOpenFiles
}

// PrintOpenFiles writes a one-line-per-descriptor diagnostic dump to w,
// the runtime analogue of the cold-path ChkDsk walk.
func (e *Engine) PrintOpenFiles(w io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.fds {
		fd := &e.fds[i]
		if !fd.inUse {
			continue
		}
		fmt.Fprintf(w, "fd %d: table=%p index=%d mode=%d offset=%d size=%d max=%d\n",
			i, fd.table, fd.index, fd.mode, fd.byteOffset, fd.fileSize, fd.maxFileSize)
	}
}
