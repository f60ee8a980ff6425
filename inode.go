package eefs

import (
	"encoding/binary"

	"github.com/nasa/eefs/eefsfmt"
	"github.com/nasa/eefs/medium"
)

// inodeEntry is the in-RAM mirror of one FAT entry. Unlike the on-medium
// FAT, which stores offsets relative to the volume's base address, this
// holds an absolute medium offset so the engine never has to re-add the
// base address on every access.
type inodeEntry struct {
	fileHeaderPointer int64
	maxFileSize       uint32
}

// InodeTable is the in-RAM directory of one mounted volume's slots. It is
// created by Engine.InitFS and destroyed by Engine.FreeFS; every
// fileapi.go and dir.go operation that names a volume takes a *InodeTable
// returned from InitFS.
type InodeTable struct {
	medium medium.Medium
	order  binary.ByteOrder
	base   int64

	// GUARDED_BY(engine.mu)
	freeMemoryPointer int64

	// GUARDED_BY(engine.mu)
	freeMemorySize uint32

	// GUARDED_BY(engine.mu)
	numberOfFiles int

	// GUARDED_BY(engine.mu)
	files [MaxFiles]inodeEntry
}

// InitFS decodes the FAT header and entries at baseAddress on m and
// returns a populated InodeTable. It rejects a bad magic number, an
// unsupported version, or a file count over MaxFiles with NoSuchDevice, as
// a real flight build would refuse to mount a volume it cannot trust.
func (e *Engine) InitFS(m medium.Medium, order binary.ByteOrder, baseAddress int64) (*InodeTable, Errno) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	headerBuf := make([]byte, eefsfmt.FATHeaderSize)
	if err := m.ReadAt(headerBuf, baseAddress); err != nil {
		return nil, NoSuchDevice
	}
	header := eefsfmt.DecodeFATHeader(order, headerBuf)

	if header.Magic != eefsfmt.Magic || header.Version != eefsfmt.Version || header.NumberOfFiles > MaxFiles {
		return nil, NoSuchDevice
	}

	table := &InodeTable{
		medium:            m,
		order:             order,
		base:              baseAddress,
		freeMemoryPointer: baseAddress + int64(header.FreeMemoryOffset),
		freeMemorySize:    header.FreeMemorySize,
		numberOfFiles:     int(header.NumberOfFiles),
	}

	entryBuf := make([]byte, eefsfmt.FATEntrySize)
	for i := 0; i < table.numberOfFiles; i++ {
		entryOff := baseAddress + int64(eefsfmt.FATHeaderSize) + int64(i)*int64(eefsfmt.FATEntrySize)
		if err := m.ReadAt(entryBuf, entryOff); err != nil {
			return nil, NoSuchDevice
		}
		entry := eefsfmt.DecodeFATEntry(order, entryBuf)
		table.files[i] = inodeEntry{
			fileHeaderPointer: baseAddress + int64(entry.FileHeaderOffset),
			maxFileSize:       entry.MaxFileSize,
		}
	}

	return table, Success
}

// FreeFS releases table. It fails with DeviceIsBusy if any file or
// directory descriptor still points at it.
func (e *Engine) FreeFS(table *InodeTable) Errno {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasOpenDescriptor(table) {
		return DeviceIsBusy
	}

	*table = InodeTable{}
	return Success
}

// NumberOfFiles reports the number of occupied FAT slots, live or dead.
// Safe to call without the engine lock held only while no other goroutine
// can be mutating this table concurrently; callers that share a table
// across goroutines should read it through a descriptor-bearing operation
// instead.
func (t *InodeTable) NumberOfFiles() int {
	return t.numberOfFiles
}

// FreeMemoryPointer reports the absolute medium offset of the first
// unallocated byte in the volume.
func (t *InodeTable) FreeMemoryPointer() int64 {
	return t.freeMemoryPointer
}

// FreeMemorySize reports the number of unallocated tail bytes in the
// volume.
func (t *InodeTable) FreeMemorySize() uint32 {
	return t.freeMemorySize
}

// readFileHeader decodes the file header for slot index. Caller must hold
// e.mu.
func (t *InodeTable) readFileHeader(index int) (eefsfmt.FileHeader, error) {
	buf := make([]byte, eefsfmt.FileHeaderSize)
	if err := t.medium.ReadAt(buf, t.files[index].fileHeaderPointer); err != nil {
		return eefsfmt.FileHeader{}, err
	}
	return eefsfmt.DecodeFileHeader(t.order, buf), nil
}

// writeFileHeader encodes and writes h to slot index, flushing if flush is
// true. Caller must hold e.mu.
func (t *InodeTable) writeFileHeader(index int, h eefsfmt.FileHeader, flush bool) error {
	buf := make([]byte, eefsfmt.FileHeaderSize)
	eefsfmt.EncodeFileHeader(t.order, h, buf)
	if err := t.medium.WriteAt(buf, t.files[index].fileHeaderPointer); err != nil {
		return err
	}
	if flush {
		return t.medium.Flush()
	}
	return nil
}

// dataPointer returns the absolute offset of slot index's payload, which
// immediately follows its header.
func (t *InodeTable) dataPointer(index int) int64 {
	return t.files[index].fileHeaderPointer + int64(eefsfmt.FileHeaderSize)
}

// findFile performs the linear scan specified for FindFile: the first
// live slot (InUse != 0) whose filename matches name exactly. Caller must
// hold e.mu.
func (t *InodeTable) findFile(name string) (int, Errno) {
	for i := 0; i < t.numberOfFiles; i++ {
		h, err := t.readFileHeader(i)
		if err != nil {
			continue
		}
		if h.InUse != 0 && eefsfmt.FilenameString(h.Filename) == name {
			return i, Success
		}
	}
	return -1, FileNotFound
}

// validateName applies the single strict-< filename length rule uniformly
// across Open, Creat, Remove, Rename, and SetFileAttributes.
func validateName(name string) Errno {
	if len(name) == 0 || len(name) >= MaxFilenameSize {
		return InvalidArgument
	}
	return Success
}
