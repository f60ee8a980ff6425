package eefs

import (
	"fmt"
	"io"

	"github.com/jacobsa/reqtrace"
	"github.com/kylelemons/godebug/pretty"

	"github.com/nasa/eefs/eefsfmt"
	"golang.org/x/net/context"
)

// ChkDskReport is the cold-path diagnostic result: the packing, tail, and
// name-uniqueness invariants checked directly against the medium,
// independent of whatever the in-RAM inode table currently believes.
// Nothing here is checked on the hot path; CRC fields are written but never
// verified at runtime except by this walk.
type ChkDskReport struct {
	NumberOfFiles    int
	PackOk           bool
	TailOk           bool
	NameUniqueOk     bool
	ImageCrcOk       bool
	StoredImageCrc   uint16
	ComputedImageCrc uint16
	Discrepancies    []string
}

// ChkDsk walks table's FAT and every slot header directly off the medium
// and reports any violation of the packing, tail, and name-uniqueness
// invariants, plus whether the whole-image CRC recorded by the image
// builder still matches the image's current bytes. It holds the engine
// lock and the medium's lock for the walk and never mutates state.
func (e *Engine) ChkDsk(ctx context.Context, table *InodeTable) ChkDskReport {
	_, report_ := reqtrace.StartSpan(ctx, "eefs.ChkDsk")
	defer report_(nil)

	e.mu.Lock()
	defer e.mu.Unlock()

	table.medium.Lock()
	defer table.medium.Unlock()

	report := ChkDskReport{
		NumberOfFiles: table.numberOfFiles,
		PackOk:        true,
		TailOk:        true,
		NameUniqueOk:  true,
	}

	seenNames := make(map[string]int)
	expectedOffset := table.files[0].fileHeaderPointer
	if table.numberOfFiles == 0 {
		expectedOffset = table.base + int64(eefsfmt.FATHeaderSize)
	}

	for i := 0; i < table.numberOfFiles; i++ {
		entry := table.files[i]

		if entry.fileHeaderPointer != expectedOffset {
			report.PackOk = false
			report.Discrepancies = append(report.Discrepancies, fmt.Sprintf(
				"slot %d: header offset %d does not follow previous slot's extent (expected %d)",
				i, entry.fileHeaderPointer, expectedOffset))
		}
		expectedOffset = entry.fileHeaderPointer + int64(eefsfmt.FileHeaderSize) + int64(entry.maxFileSize)

		header, err := table.readFileHeader(i)
		if err != nil {
			report.Discrepancies = append(report.Discrepancies, fmt.Sprintf("slot %d: read failed: %v", i, err))
			continue
		}

		if header.FileSize > entry.maxFileSize {
			report.Discrepancies = append(report.Discrepancies, fmt.Sprintf(
				"slot %d: FileSize %d exceeds MaxFileSize %d", i, header.FileSize, entry.maxFileSize))
		}

		if header.InUse != 0 {
			name := eefsfmt.FilenameString(header.Filename)
			if other, ok := seenNames[name]; ok {
				report.NameUniqueOk = false
				report.Discrepancies = append(report.Discrepancies, fmt.Sprintf(
					"slots %d and %d share filename %q", other, i, name))
			}
			seenNames[name] = i
		}
	}

	if expectedOffset != table.freeMemoryPointer {
		report.TailOk = false
		report.Discrepancies = append(report.Discrepancies, fmt.Sprintf(
			"last slot's extent ends at %d, FreeMemoryPointer is %d", expectedOffset, table.freeMemoryPointer))
	}
	if table.freeMemoryPointer-table.base+int64(table.freeMemorySize) != table.medium.Size() {
		report.TailOk = false
		report.Discrepancies = append(report.Discrepancies, "FreeMemoryOffset + FreeMemorySize does not equal the volume size")
	}

	size := table.medium.Size() - table.base
	image := make([]byte, size)
	if err := table.medium.ReadAt(image, table.base); err == nil && size >= 4 {
		fatHeaderBuf := image[:eefsfmt.FATHeaderSize]
		fatHeader := eefsfmt.DecodeFATHeader(table.order, fatHeaderBuf)
		report.StoredImageCrc = uint16(fatHeader.Crc)
		report.ComputedImageCrc = eefsfmt.CRC16(image[4:], 0xFFFF)
		report.ImageCrcOk = report.StoredImageCrc == report.ComputedImageCrc
	}

	return report
}

// PrintChkDsk writes a human-readable rendering of report to w, using the
// godebug pretty printer.
func PrintChkDsk(w io.Writer, report ChkDskReport) {
	fmt.Fprintln(w, pretty.Sprint(report))
}
