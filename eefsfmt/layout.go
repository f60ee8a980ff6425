// Package eefsfmt defines the on-medium byte layout of an EEPROM file
// system volume and the endian-aware codec that converts between it and
// the host's in-RAM representation.
//
// Every integer field on the medium is 32 bits wide. The codec never
// touches file payload bytes or the filename array; only the fixed
// integer fields are byte order dependent.
package eefsfmt

import "encoding/binary"

const (
	// Magic identifies a valid EEFS volume. It is checked after decode, so
	// a reader always compares against this value regardless of the
	// medium's byte order.
	Magic = 0xEEF51234

	// Version is the only format version this codec understands.
	Version = 1

	// MaxFilenameSize is the fixed width of the Filename array, including
	// any zero padding.
	MaxFilenameSize = 40
)

// File attribute bits.
const (
	AttributeNone     = 0
	AttributeReadOnly = 1
)

// FATHeaderSize is the encoded size in bytes of FATHeader.
const FATHeaderSize = 4 + 4 + 4 + 4 + 4 + 4

// FATEntrySize is the encoded size in bytes of FATEntry.
const FATEntrySize = 4 + 4

// FileHeaderSize is the encoded size in bytes of FileHeader.
const FileHeaderSize = 4 + 4 + 4 + 4 + 4 + 4 + MaxFilenameSize

// FATHeader is the fixed-size header at the start of every volume.
type FATHeader struct {
	Crc              uint32
	Magic            uint32
	Version          uint32
	FreeMemoryOffset uint32
	FreeMemorySize   uint32
	NumberOfFiles    uint32
}

// FATEntry describes one slot's location and capacity. Offsets are
// relative to the volume's base address; the in-RAM inode table resolves
// them to absolute addresses on InitFS.
type FATEntry struct {
	FileHeaderOffset uint32
	MaxFileSize      uint32
}

// FileHeader is the prefix of every slot.
type FileHeader struct {
	Crc              uint32
	InUse            uint32
	Attributes       uint32
	FileSize         uint32
	ModificationDate int32
	CreationDate     int32
	Filename         [MaxFilenameSize]byte
}

// EncodeFATHeader serializes h into buf[:FATHeaderSize] using the given
// byte order. buf must be at least FATHeaderSize bytes.
func EncodeFATHeader(order binary.ByteOrder, h FATHeader, buf []byte) {
	order.PutUint32(buf[0:4], h.Crc)
	order.PutUint32(buf[4:8], h.Magic)
	order.PutUint32(buf[8:12], h.Version)
	order.PutUint32(buf[12:16], h.FreeMemoryOffset)
	order.PutUint32(buf[16:20], h.FreeMemorySize)
	order.PutUint32(buf[20:24], h.NumberOfFiles)
}

// DecodeFATHeader deserializes a FATHeader from buf[:FATHeaderSize].
func DecodeFATHeader(order binary.ByteOrder, buf []byte) FATHeader {
	return FATHeader{
		Crc:              order.Uint32(buf[0:4]),
		Magic:            order.Uint32(buf[4:8]),
		Version:          order.Uint32(buf[8:12]),
		FreeMemoryOffset: order.Uint32(buf[12:16]),
		FreeMemorySize:   order.Uint32(buf[16:20]),
		NumberOfFiles:    order.Uint32(buf[20:24]),
	}
}

// EncodeFATEntry serializes e into buf[:FATEntrySize].
func EncodeFATEntry(order binary.ByteOrder, e FATEntry, buf []byte) {
	order.PutUint32(buf[0:4], e.FileHeaderOffset)
	order.PutUint32(buf[4:8], e.MaxFileSize)
}

// DecodeFATEntry deserializes a FATEntry from buf[:FATEntrySize].
func DecodeFATEntry(order binary.ByteOrder, buf []byte) FATEntry {
	return FATEntry{
		FileHeaderOffset: order.Uint32(buf[0:4]),
		MaxFileSize:      order.Uint32(buf[4:8]),
	}
}

// EncodeFileHeader serializes h into buf[:FileHeaderSize]. The Filename
// array is copied byte for byte; it is never swapped.
func EncodeFileHeader(order binary.ByteOrder, h FileHeader, buf []byte) {
	order.PutUint32(buf[0:4], h.Crc)
	order.PutUint32(buf[4:8], h.InUse)
	order.PutUint32(buf[8:12], h.Attributes)
	order.PutUint32(buf[12:16], h.FileSize)
	order.PutUint32(buf[16:20], uint32(h.ModificationDate))
	order.PutUint32(buf[20:24], uint32(h.CreationDate))
	copy(buf[24:24+MaxFilenameSize], h.Filename[:])
}

// DecodeFileHeader deserializes a FileHeader from buf[:FileHeaderSize].
func DecodeFileHeader(order binary.ByteOrder, buf []byte) FileHeader {
	var h FileHeader
	h.Crc = order.Uint32(buf[0:4])
	h.InUse = order.Uint32(buf[4:8])
	h.Attributes = order.Uint32(buf[8:12])
	h.FileSize = order.Uint32(buf[12:16])
	h.ModificationDate = int32(order.Uint32(buf[16:20]))
	h.CreationDate = int32(order.Uint32(buf[20:24]))
	copy(h.Filename[:], buf[24:24+MaxFilenameSize])
	return h
}

// FilenameBytes zero-pads name into a MaxFilenameSize array the way
// EEFS_LibOpen/Creat/Rename store filenames on the medium.
func FilenameBytes(name string) [MaxFilenameSize]byte {
	var out [MaxFilenameSize]byte
	copy(out[:], name)
	return out
}

// FilenameString returns the bytes of a raw filename array up to, not
// including, its first zero byte.
func FilenameString(raw [MaxFilenameSize]byte) string {
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}
