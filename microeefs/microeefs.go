// Package microeefs finds a named file's header offset in a volume using
// only the codec and a fixed set of stack-sized scratch buffers, with no
// dependency on MaxFiles and no heap allocation per entry scanned. It is
// meant for bootstrap code that needs to locate one file before the rest of
// the engine's descriptor pools and inode tables exist.
package microeefs

import (
	"encoding/binary"

	"github.com/nasa/eefs/eefsfmt"
	"github.com/nasa/eefs/medium"
)

// MicroFind scans the volume at baseAddress on m for a live file named name,
// returning the absolute medium offset of its file header. It returns
// (0, false) if the volume's FAT header is unreadable or has a bad magic or
// version, or if no live file matches name exactly.
//
// Unlike InodeTable, it never retains the table in memory; every FAT entry
// and file header is decoded into the same pair of reusable buffers, one
// entry at a time, so its footprint does not grow with the number of files
// in the volume.
func MicroFind(m medium.Medium, order binary.ByteOrder, baseAddress int64, name string) (int64, bool) {
	if name == "" {
		return 0, false
	}

	headerBuf := make([]byte, eefsfmt.FATHeaderSize)
	if err := m.ReadAt(headerBuf, baseAddress); err != nil {
		return 0, false
	}
	fatHeader := eefsfmt.DecodeFATHeader(order, headerBuf)
	if fatHeader.Magic != eefsfmt.Magic || fatHeader.Version != eefsfmt.Version {
		return 0, false
	}

	entryBuf := make([]byte, eefsfmt.FATEntrySize)
	fileHeaderBuf := make([]byte, eefsfmt.FileHeaderSize)

	entryOffset := baseAddress + int64(eefsfmt.FATHeaderSize)
	for i := uint32(0); i < fatHeader.NumberOfFiles; i++ {
		if err := m.ReadAt(entryBuf, entryOffset); err != nil {
			return 0, false
		}
		entry := eefsfmt.DecodeFATEntry(order, entryBuf)

		fileHeaderOffset := baseAddress + int64(entry.FileHeaderOffset)
		if err := m.ReadAt(fileHeaderBuf, fileHeaderOffset); err != nil {
			return 0, false
		}
		fileHeader := eefsfmt.DecodeFileHeader(order, fileHeaderBuf)

		if fileHeader.InUse != 0 && eefsfmt.FilenameString(fileHeader.Filename) == name {
			return fileHeaderOffset, true
		}

		entryOffset += int64(eefsfmt.FATEntrySize)
	}

	return 0, false
}
