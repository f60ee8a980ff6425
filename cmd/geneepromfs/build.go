package main

import (
	"encoding/binary"
	"fmt"
	"os"

	fallocate "github.com/detailyang/go-fallocate"

	"github.com/nasa/eefs"
	"github.com/nasa/eefs/eefsfmt"
)

// mapRow is one line of the tab-separated memory map: offset, size,
// section, slot index, filename, file size, spare bytes, max size, data
// CRC-16, attributes. Columns that don't apply to a row (FAT and Free
// rows have no filename or per-file CRC) are left blank.
type mapRow struct {
	Offset     uint32
	Size       uint32
	Section    string
	Slot       int
	Filename   string
	FileSize   uint32
	Spare      uint32
	MaxSize    uint32
	DataCrc    uint16
	Attributes uint32
	hasFile    bool
}

// buildResult is the output of buildImage: the finished image bytes (full
// EEPROM size; truncation to FreeMemoryOffset happens at write time) plus
// the bookkeeping a verbose run or a memory map report on.
type buildResult struct {
	image            []byte
	freeMemoryOffset uint32
	freeMemorySize   uint32
	numberOfFiles    uint32
	imageCrc         uint16
	rows             []mapRow
}

func roundUp4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// buildImage lays down a fresh FAT and every manifest entry's header and
// payload into a freshly zeroed eepromSize-byte image, encoding every FAT
// and file-system-struct field directly in order — the target byte order
// — so there is no separate "byte swap if cross-compiling" pass: encoding
// with an explicit binary.ByteOrder already produces the correct on-medium
// bytes regardless of the host's own endianness, which is the codec's
// whole point (see eefsfmt.Encode*). Files are added in manifest order,
// exactly as AddFile does, and a duplicate stored name is rejected the
// same way IsDuplicateFilename does.
func buildImage(entries []Entry, order binary.ByteOrder, eepromSize uint32, timestamp int32, verbose bool) (buildResult, error) {
	if eepromSize < uint32(eefsfmt.FATHeaderSize) {
		return buildResult{}, fmt.Errorf("eeprom_size %d is smaller than the FAT header", eepromSize)
	}

	image := make([]byte, eepromSize)

	freeMemoryOffset := uint32(eefsfmt.FATHeaderSize)
	freeMemorySize := eepromSize - freeMemoryOffset
	numberOfFiles := uint32(0)

	rows := []mapRow{{Offset: 0, Size: uint32(eefsfmt.FATHeaderSize), Section: "FAT"}}
	seenNames := make(map[string]bool)

	for _, entry := range entries {
		if int(numberOfFiles) == eefs.MaxFiles {
			return buildResult{}, fmt.Errorf("manifest exceeds the maximum number of files: %d", eefs.MaxFiles)
		}
		if seenNames[entry.StoredName] {
			return buildResult{}, fmt.Errorf("filename already exists in file system: %s", entry.StoredName)
		}

		data, err := os.ReadFile(entry.InputPath)
		if err != nil {
			return buildResult{}, fmt.Errorf("can't open input file: %s: %w", entry.InputPath, err)
		}

		fileSize := uint32(len(data))
		maxFileSize := roundUp4(fileSize + entry.SpareBytes)

		if freeMemorySize < uint32(eefsfmt.FileHeaderSize)+maxFileSize {
			return buildResult{}, fmt.Errorf("file system exceeds available eeprom memory: %d", eepromSize)
		}

		if verbose {
			fmt.Printf("Adding File %s\n", entry.StoredName)
		}

		headerOffset := freeMemoryOffset
		dataOffset := headerOffset + uint32(eefsfmt.FileHeaderSize)

		header := eefsfmt.FileHeader{
			InUse:            1,
			Attributes:       entry.Attributes,
			FileSize:         fileSize,
			ModificationDate: timestamp,
			CreationDate:     timestamp,
			Filename:         eefsfmt.FilenameBytes(entry.StoredName),
		}
		eefsfmt.EncodeFileHeader(order, header, image[headerOffset:headerOffset+uint32(eefsfmt.FileHeaderSize)])
		copy(image[dataOffset:dataOffset+fileSize], data)

		fatEntry := eefsfmt.FATEntry{FileHeaderOffset: headerOffset, MaxFileSize: maxFileSize}
		entryOffset := uint32(eefsfmt.FATHeaderSize) + numberOfFiles*uint32(eefsfmt.FATEntrySize)
		eefsfmt.EncodeFATEntry(order, fatEntry, image[entryOffset:entryOffset+uint32(eefsfmt.FATEntrySize)])

		rows = append(rows,
			mapRow{Offset: headerOffset, Size: uint32(eefsfmt.FileHeaderSize), Section: "Header", Slot: int(numberOfFiles)},
			mapRow{
				Offset: dataOffset, Size: maxFileSize, Section: "Data", Slot: int(numberOfFiles), hasFile: true,
				Filename: entry.StoredName, FileSize: fileSize, Spare: maxFileSize - fileSize, MaxSize: maxFileSize,
				DataCrc: eefsfmt.CRC16(data, 0xFFFF), Attributes: entry.Attributes,
			},
		)

		freeMemoryOffset += uint32(eefsfmt.FileHeaderSize) + maxFileSize
		freeMemorySize -= uint32(eefsfmt.FileHeaderSize) + maxFileSize
		numberOfFiles++
		seenNames[entry.StoredName] = true
	}

	rows = append(rows, mapRow{Offset: freeMemoryOffset, Size: freeMemorySize, Section: "Free"})

	fatHeader := eefsfmt.FATHeader{
		Magic:            eefsfmt.Magic,
		Version:          eefsfmt.Version,
		FreeMemoryOffset: freeMemoryOffset,
		FreeMemorySize:   freeMemorySize,
		NumberOfFiles:    numberOfFiles,
	}
	eefsfmt.EncodeFATHeader(order, fatHeader, image[:eefsfmt.FATHeaderSize])

	imageCrc := eefsfmt.CRC16(image[4:], 0xFFFF)
	order.PutUint32(image[0:4], uint32(imageCrc))

	return buildResult{
		image:            image,
		freeMemoryOffset: freeMemoryOffset,
		freeMemorySize:   freeMemorySize,
		numberOfFiles:    numberOfFiles,
		imageCrc:         imageCrc,
		rows:             rows,
	}, nil
}

// writeImage preallocates outputPath to the size that will actually be
// written (the full EEPROM size when fillEEPROM is set, otherwise just the
// allocated prefix) before writing it, the on-disk analogue of the real
// EEPROM part's fixed capacity being present before any byte is
// programmed into it.
func writeImage(outputPath string, result buildResult, fillEEPROM bool) error {
	length := result.freeMemoryOffset
	if fillEEPROM {
		length = uint32(len(result.image))
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("can't open output file: %s: %w", outputPath, err)
	}
	defer f.Close()

	if err := fallocate.Fallocate(f, 0, int64(length)); err != nil {
		return fmt.Errorf("fallocate %s: %w", outputPath, err)
	}

	if _, err := f.Write(result.image[:length]); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}
	return nil
}

// writeMemoryMap emits the tab-separated memory map described in
// spec.md §4.6: offset, size, section, slot index, filename, file size,
// spare, max size, data CRC, attributes.
func writeMemoryMap(mapPath string, result buildResult) error {
	f, err := os.Create(mapPath)
	if err != nil {
		return fmt.Errorf("can't open map file: %s: %w", mapPath, err)
	}
	defer f.Close()

	fmt.Fprintln(f, "Offset\tSize\tSection\tSlot\tFilename\tFile Size\tSpare\tMax Size\tCrc\tAttributes")
	for _, row := range result.rows {
		if row.hasFile {
			fmt.Fprintf(f, "%d\t%d\t%s\t%d\t%s\t%d\t%d\t%d\t0x%04X\t%d\n",
				row.Offset, row.Size, row.Section, row.Slot, row.Filename, row.FileSize, row.Spare, row.MaxSize, row.DataCrc, row.Attributes)
		} else {
			fmt.Fprintf(f, "%d\t%d\t%s\n", row.Offset, row.Size, row.Section)
		}
	}
	return nil
}
