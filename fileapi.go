package eefs

import (
	"github.com/jacobsa/reqtrace"
	"github.com/nasa/eefs/eefsfmt"
	"golang.org/x/net/context"
)

// OpenFlags is the flag word accepted by Open. Only the bits named below
// are recognized; any other bit set causes InvalidArgument.
type OpenFlags uint32

// Access-mode and modifier bits for OpenFlags. The access mode occupies
// the low two bits (O_RDONLY is the zero value); O_CREATE and O_TRUNCATE
// are independent modifier bits, mirroring the flag word shape of the
// POSIX open(2) this engine's API was modeled after.
const (
	O_RDONLY   OpenFlags = 0x0
	O_WRONLY   OpenFlags = 0x1
	O_RDWR     OpenFlags = 0x2
	O_CREATE   OpenFlags = 0x4
	O_TRUNCATE OpenFlags = 0x8

	openFlagsValidBits = O_WRONLY | O_RDWR | O_CREATE | O_TRUNCATE
)

// FileStat is the snapshot Stat/Fstat return.
type FileStat struct {
	Index            int
	Attributes       uint32
	FileSize         uint32
	MaxFileSize      uint32
	ModificationDate int32
	CreationDate     int32
	Crc              uint32
	Filename         string
}

func traceReport(report reqtrace.ReportFunc, result Errno) Errno {
	if result.IsError() {
		report(result)
	} else {
		report(nil)
	}
	return result
}

func modeFromFlags(flags OpenFlags) (Mode, Errno) {
	if flags&^openFlagsValidBits != 0 {
		return 0, InvalidArgument
	}

	mode := ModeRead
	switch {
	case flags&O_RDWR != 0:
		mode = ModeRead | ModeWrite
	case flags&O_WRONLY != 0:
		mode = ModeWrite
	}
	return mode, Success
}

// Open opens an existing file on table, or creates it if O_CREATE is set
// and it does not already exist. It returns a non-negative descriptor on
// success or a negative Errno.
func (e *Engine) Open(ctx context.Context, table *InodeTable, name string, flags OpenFlags, attributes uint32) int {
	_, report := reqtrace.StartSpan(ctx, "eefs.Open")

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateName(name); err.IsError() {
		return int(traceReport(report, err))
	}

	table.medium.Lock()
	defer table.medium.Unlock()

	index, findErr := table.findFile(name)
	if findErr.IsError() {
		if flags&O_CREATE != 0 {
			return e.creatLocked(table, name, attributes, report)
		}
		return int(traceReport(report, FileNotFound))
	}

	return e.internalOpenLocked(table, index, flags, report)
}

// internalOpenLocked performs the open-or-attach-descriptor sequence shared
// by Open and Creat. Flag validation happens here, after the name has
// already been resolved to a live slot, so an unsupported flag word on a
// nonexistent file without O_CREATE still surfaces as FileNotFound rather
// than InvalidArgument. Caller must hold e.mu and table.medium's lock.
func (e *Engine) internalOpenLocked(table *InodeTable, index int, flags OpenFlags, report reqtrace.ReportFunc) int {
	mode, err := modeFromFlags(flags)
	if err.IsError() {
		return int(traceReport(report, err))
	}
	truncate := flags&O_TRUNCATE != 0

	if mode&ModeWrite != 0 {
		if table.medium.IsWriteProtected() {
			return int(traceReport(report, ReadOnlyFileSystem))
		}
	}

	header, rerr := table.readFileHeader(index)
	if rerr != nil {
		return int(traceReport(report, Error))
	}

	if mode&ModeWrite != 0 {
		if header.Attributes&eefsfmt.AttributeReadOnly != 0 {
			return int(traceReport(report, PermissionDenied))
		}
		if e.hasWriter(table, index) {
			return int(traceReport(report, PermissionDenied))
		}
	}

	fd, allocErr := e.allocFD()
	if allocErr.IsError() {
		return int(traceReport(report, allocErr))
	}

	fileSize := header.FileSize
	if truncate && mode&ModeWrite != 0 {
		fileSize = 0
	}

	e.fds[fd] = fileDescriptor{
		inUse:         true,
		mode:          mode,
		table:         table,
		index:         index,
		headerPointer: table.files[index].fileHeaderPointer,
		dataPointer:   table.dataPointer(index),
		byteOffset:    0,
		fileSize:      fileSize,
		maxFileSize:   table.files[index].maxFileSize,
	}

	return int(traceReport(report, Errno(fd)))
}

// Creat creates a new file named name on table, or truncates it for
// writing if it already exists live.
func (e *Engine) Creat(ctx context.Context, table *InodeTable, name string, attributes uint32) int {
	_, report := reqtrace.StartSpan(ctx, "eefs.Creat")

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateName(name); err.IsError() {
		return int(traceReport(report, err))
	}

	table.medium.Lock()
	defer table.medium.Unlock()

	return e.creatLocked(table, name, attributes, report)
}

// creatLocked reserves a fresh slot and a descriptor for it. Caller must
// hold e.mu and table.medium's lock, and have already validated name.
func (e *Engine) creatLocked(table *InodeTable, name string, attributes uint32, report reqtrace.ReportFunc) int {
	if index, findErr := table.findFile(name); !findErr.IsError() {
		return e.internalOpenLocked(table, index, O_RDWR|O_TRUNCATE, report)
	}

	if table.medium.IsWriteProtected() {
		return int(traceReport(report, ReadOnlyFileSystem))
	}
	if table.numberOfFiles == MaxFiles {
		return int(traceReport(report, NoSpaceLeftOnDevice))
	}
	if e.hasCreator(table) {
		return int(traceReport(report, PermissionDenied))
	}
	if int64(table.freeMemorySize) <= int64(eefsfmt.FileHeaderSize) {
		return int(traceReport(report, NoSpaceLeftOnDevice))
	}
	if attributes != eefsfmt.AttributeNone && attributes != eefsfmt.AttributeReadOnly {
		return int(traceReport(report, InvalidArgument))
	}

	index := table.numberOfFiles
	headerPointer := table.freeMemoryPointer
	maxFileSize := table.freeMemorySize - uint32(eefsfmt.FileHeaderSize)

	now := table.medium.Now().Unix()
	header := eefsfmt.FileHeader{
		Crc:              0,
		InUse:            1,
		Attributes:       attributes,
		FileSize:         0,
		ModificationDate: int32(now),
		CreationDate:     int32(now),
		Filename:         eefsfmt.FilenameBytes(name),
	}

	table.files[index] = inodeEntry{fileHeaderPointer: headerPointer, maxFileSize: maxFileSize}
	table.numberOfFiles++

	if err := table.writeFileHeader(index, header, true); err != nil {
		table.numberOfFiles--
		return int(traceReport(report, Error))
	}

	fd, allocErr := e.allocFD()
	if allocErr.IsError() {
		return int(traceReport(report, allocErr))
	}

	e.fds[fd] = fileDescriptor{
		inUse:         true,
		mode:          ModeCreat | ModeWrite,
		table:         table,
		index:         index,
		headerPointer: headerPointer,
		dataPointer:   table.dataPointer(index),
		byteOffset:    0,
		fileSize:      0,
		maxFileSize:   maxFileSize,
	}

	return int(traceReport(report, Errno(fd)))
}

func roundUp4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// Close releases fd, committing a newly created file in the ordering: file
// header, then FAT entry, then FAT header last.
func (e *Engine) Close(ctx context.Context, fd int) Errno {
	_, report := reqtrace.StartSpan(ctx, "eefs.Close")

	e.mu.Lock()
	defer e.mu.Unlock()

	if fd < 0 || fd >= MaxOpenFiles || !e.fds[fd].inUse {
		return traceReport(report, InvalidArgument)
	}

	desc := &e.fds[fd]
	table := desc.table

	table.medium.Lock()
	defer table.medium.Unlock()

	switch {
	case desc.mode&ModeCreat != 0:
		spare := DefaultCreatSpareBytes
		maxFileSize := roundUp4(desc.fileSize + uint32(spare))
		ceiling := table.freeMemorySize - uint32(eefsfmt.FileHeaderSize)
		if maxFileSize > ceiling {
			maxFileSize = ceiling
		}

		table.freeMemoryPointer += int64(eefsfmt.FileHeaderSize) + int64(maxFileSize)
		table.freeMemorySize -= uint32(eefsfmt.FileHeaderSize) + maxFileSize
		table.files[desc.index].maxFileSize = maxFileSize

		header, err := table.readFileHeader(desc.index)
		if err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}
		header.FileSize = desc.fileSize
		if err := table.writeFileHeader(desc.index, header, true); err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}

		entryBuf := make([]byte, eefsfmt.FATEntrySize)
		eefsfmt.EncodeFATEntry(table.order, eefsfmt.FATEntry{
			FileHeaderOffset: uint32(table.files[desc.index].fileHeaderPointer - table.base),
			MaxFileSize:      maxFileSize,
		}, entryBuf)
		entryOff := table.base + int64(eefsfmt.FATHeaderSize) + int64(desc.index)*int64(eefsfmt.FATEntrySize)
		if err := table.medium.WriteAt(entryBuf, entryOff); err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}
		if err := table.medium.Flush(); err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}

		fatHeaderBuf := make([]byte, eefsfmt.FATHeaderSize)
		if err := table.medium.ReadAt(fatHeaderBuf, table.base); err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}
		fatHeader := eefsfmt.DecodeFATHeader(table.order, fatHeaderBuf)
		fatHeader.FreeMemoryOffset = uint32(table.freeMemoryPointer - table.base)
		fatHeader.FreeMemorySize = table.freeMemorySize
		fatHeader.NumberOfFiles = uint32(table.numberOfFiles)
		eefsfmt.EncodeFATHeader(table.order, fatHeader, fatHeaderBuf)
		if err := table.medium.WriteAt(fatHeaderBuf, table.base); err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}
		if err := table.medium.Flush(); err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}

	case desc.mode&ModeWrite != 0:
		header, err := table.readFileHeader(desc.index)
		if err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}
		header.FileSize = desc.fileSize
		header.ModificationDate = int32(table.medium.Now().Unix())
		header.Crc = 0
		if err := table.writeFileHeader(desc.index, header, true); err != nil {
			e.freeFD(fd)
			return traceReport(report, Error)
		}
	}

	e.freeFD(fd)
	return traceReport(report, Success)
}

// Read copies up to len(buf) bytes from fd's current offset.
func (e *Engine) Read(ctx context.Context, fd int, buf []byte) int {
	_, report := reqtrace.StartSpan(ctx, "eefs.Read")

	e.mu.Lock()
	defer e.mu.Unlock()

	if fd < 0 || fd >= MaxOpenFiles || !e.fds[fd].inUse {
		return int(traceReport(report, InvalidArgument))
	}
	desc := &e.fds[fd]
	if desc.mode&ModeRead == 0 {
		return int(traceReport(report, InvalidArgument))
	}

	desc.table.medium.Lock()
	defer desc.table.medium.Unlock()

	remaining := int64(desc.fileSize) - desc.byteOffset
	if remaining < 0 {
		remaining = 0
	}
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}

	if n > 0 {
		if err := desc.table.medium.ReadAt(buf[:n], desc.dataPointer+desc.byteOffset); err != nil {
			return int(traceReport(report, Error))
		}
		desc.byteOffset += n
	}

	return int(traceReport(report, Errno(n)))
}

// Write copies up to len(buf) bytes to fd's current offset, clamped to the slot's MaxFileSize.
func (e *Engine) Write(ctx context.Context, fd int, buf []byte) int {
	_, report := reqtrace.StartSpan(ctx, "eefs.Write")

	e.mu.Lock()
	defer e.mu.Unlock()

	if fd < 0 || fd >= MaxOpenFiles || !e.fds[fd].inUse {
		return int(traceReport(report, InvalidArgument))
	}
	desc := &e.fds[fd]
	if desc.mode&ModeWrite == 0 {
		return int(traceReport(report, InvalidArgument))
	}

	desc.table.medium.Lock()
	defer desc.table.medium.Unlock()

	remaining := int64(desc.maxFileSize) - desc.byteOffset
	if remaining < 0 {
		remaining = 0
	}
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}

	if n > 0 {
		if err := desc.table.medium.WriteAt(buf[:n], desc.dataPointer+desc.byteOffset); err != nil {
			return int(traceReport(report, Error))
		}
		desc.byteOffset += n
		if uint32(desc.byteOffset) > desc.fileSize {
			desc.fileSize = uint32(desc.byteOffset)
		}
	}

	return int(traceReport(report, Errno(n)))
}

// SeekOrigin selects LSeek's reference point.
type SeekOrigin int

const (
	SeekSet SeekOrigin = iota
	SeekCur
	SeekEnd
)

// LSeek repositions fd's offset. Positions past end-of-file are clamped to
// FileSize, which is not an error; only a negative effective position is.
func (e *Engine) LSeek(ctx context.Context, fd int, offset int64, origin SeekOrigin) int64 {
	_, report := reqtrace.StartSpan(ctx, "eefs.LSeek")

	e.mu.Lock()
	defer e.mu.Unlock()

	if fd < 0 || fd >= MaxOpenFiles || !e.fds[fd].inUse {
		return int64(traceReport(report, InvalidArgument))
	}
	desc := &e.fds[fd]

	var base int64
	switch origin {
	case SeekSet:
		base = 0
	case SeekCur:
		base = desc.byteOffset
	case SeekEnd:
		base = int64(desc.fileSize)
	default:
		return int64(traceReport(report, InvalidArgument))
	}

	pos := base + offset
	if pos < 0 {
		return int64(traceReport(report, InvalidArgument))
	}
	if pos > int64(desc.fileSize) {
		pos = int64(desc.fileSize)
	}

	desc.byteOffset = pos
	report(nil)
	return pos
}

// Remove deletes the live file named name from table.
func (e *Engine) Remove(ctx context.Context, table *InodeTable, name string) Errno {
	_, report := reqtrace.StartSpan(ctx, "eefs.Remove")

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateName(name); err.IsError() {
		return traceReport(report, err)
	}

	table.medium.Lock()
	defer table.medium.Unlock()

	if table.medium.IsWriteProtected() {
		return traceReport(report, ReadOnlyFileSystem)
	}

	index, findErr := table.findFile(name)
	if findErr.IsError() {
		return traceReport(report, FileNotFound)
	}

	header, err := table.readFileHeader(index)
	if err != nil {
		return traceReport(report, Error)
	}
	if header.Attributes&eefsfmt.AttributeReadOnly != 0 {
		return traceReport(report, PermissionDenied)
	}
	if e.descriptorsOpenOnIndex(table, index) {
		return traceReport(report, PermissionDenied)
	}

	if err := table.writeFileHeader(index, eefsfmt.FileHeader{}, true); err != nil {
		return traceReport(report, Error)
	}

	return traceReport(report, Success)
}

// descriptorsOpenOnIndex reports whether any file descriptor, in any mode,
// currently points at (table, index). Caller must hold e.mu.
func (e *Engine) descriptorsOpenOnIndex(table *InodeTable, index int) bool {
	for i := range e.fds {
		fd := &e.fds[i]
		if fd.inUse && fd.table == table && fd.index == index {
			return true
		}
	}
	return false
}

// Rename renames oldName to newName on table. Rename(old, old) is rejected as
// PermissionDenied, matching the stricter reading of the design notes'
// open question.
func (e *Engine) Rename(ctx context.Context, table *InodeTable, oldName, newName string) Errno {
	_, report := reqtrace.StartSpan(ctx, "eefs.Rename")

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateName(oldName); err.IsError() {
		return traceReport(report, err)
	}
	if err := validateName(newName); err.IsError() {
		return traceReport(report, err)
	}

	table.medium.Lock()
	defer table.medium.Unlock()

	if table.medium.IsWriteProtected() {
		return traceReport(report, ReadOnlyFileSystem)
	}

	if _, findErr := table.findFile(newName); !findErr.IsError() {
		return traceReport(report, PermissionDenied)
	}

	index, findErr := table.findFile(oldName)
	if findErr.IsError() {
		return traceReport(report, FileNotFound)
	}

	header, err := table.readFileHeader(index)
	if err != nil {
		return traceReport(report, Error)
	}
	if header.Attributes&eefsfmt.AttributeReadOnly != 0 {
		return traceReport(report, PermissionDenied)
	}

	header.Filename = eefsfmt.FilenameBytes(newName)
	if err := table.writeFileHeader(index, header, true); err != nil {
		return traceReport(report, Error)
	}

	return traceReport(report, Success)
}

func statFromHeader(index int, maxFileSize uint32, h eefsfmt.FileHeader) FileStat {
	return FileStat{
		Index:            index,
		Attributes:       h.Attributes,
		FileSize:         h.FileSize,
		MaxFileSize:      maxFileSize,
		ModificationDate: h.ModificationDate,
		CreationDate:     h.CreationDate,
		Crc:              h.Crc,
		Filename:         eefsfmt.FilenameString(h.Filename),
	}
}

// Stat returns the metadata of the live file named name.
func (e *Engine) Stat(ctx context.Context, table *InodeTable, name string) (FileStat, Errno) {
	_, report := reqtrace.StartSpan(ctx, "eefs.Stat")

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateName(name); err.IsError() {
		return FileStat{}, traceReport(report, err)
	}

	table.medium.Lock()
	defer table.medium.Unlock()

	index, findErr := table.findFile(name)
	if findErr.IsError() {
		return FileStat{}, traceReport(report, FileNotFound)
	}

	header, err := table.readFileHeader(index)
	if err != nil {
		return FileStat{}, traceReport(report, Error)
	}

	return statFromHeader(index, table.files[index].maxFileSize, header), traceReport(report, Success)
}

// Fstat returns the metadata of the file open on fd.
func (e *Engine) Fstat(ctx context.Context, fd int) (FileStat, Errno) {
	_, report := reqtrace.StartSpan(ctx, "eefs.Fstat")

	e.mu.Lock()
	defer e.mu.Unlock()

	if fd < 0 || fd >= MaxOpenFiles || !e.fds[fd].inUse {
		return FileStat{}, traceReport(report, InvalidArgument)
	}
	desc := &e.fds[fd]

	desc.table.medium.Lock()
	defer desc.table.medium.Unlock()

	header, err := desc.table.readFileHeader(desc.index)
	if err != nil {
		return FileStat{}, traceReport(report, Error)
	}

	return statFromHeader(desc.index, desc.maxFileSize, header), traceReport(report, Success)
}

// SetFileAttributes updates the attribute word of the live file named name.
func (e *Engine) SetFileAttributes(ctx context.Context, table *InodeTable, name string, attributes uint32) Errno {
	_, report := reqtrace.StartSpan(ctx, "eefs.SetFileAttributes")

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateName(name); err.IsError() {
		return traceReport(report, err)
	}
	if attributes != eefsfmt.AttributeNone && attributes != eefsfmt.AttributeReadOnly {
		return traceReport(report, InvalidArgument)
	}

	table.medium.Lock()
	defer table.medium.Unlock()

	if table.medium.IsWriteProtected() {
		return traceReport(report, ReadOnlyFileSystem)
	}

	index, findErr := table.findFile(name)
	if findErr.IsError() {
		return traceReport(report, FileNotFound)
	}

	header, err := table.readFileHeader(index)
	if err != nil {
		return traceReport(report, Error)
	}
	header.Attributes = attributes
	if err := table.writeFileHeader(index, header, true); err != nil {
		return traceReport(report, Error)
	}

	return traceReport(report, Success)
}
