package eefs_test

import (
	"encoding/binary"
	"testing"
	"time"

	. "github.com/jacobsa/ogletest"
	"golang.org/x/net/context"

	"github.com/nasa/eefs"
	"github.com/nasa/eefs/eefsfmt"
	"github.com/nasa/eefs/medium"
)

func TestEefs(t *testing.T) { RunTests(t) }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// buildEmptyImage lays down a fresh FAT header with no files at offset 0
// of a size-byte image, mirroring what the image builder produces for a
// manifest with no entries.
func buildEmptyImage(order binary.ByteOrder, size int64) []byte {
	buf := make([]byte, size)
	header := eefsfmt.FATHeader{
		Magic:            eefsfmt.Magic,
		Version:          eefsfmt.Version,
		FreeMemoryOffset: uint32(eefsfmt.FATHeaderSize),
		FreeMemorySize:   uint32(size) - uint32(eefsfmt.FATHeaderSize),
		NumberOfFiles:    0,
	}
	eefsfmt.EncodeFATHeader(order, header, buf[:eefsfmt.FATHeaderSize])
	return buf
}

func roundUp4(n int) uint32 {
	return uint32((n + 3) &^ 3)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

type EngineTest struct {
	clock  *fakeClock
	engine *eefs.Engine
	ram    *medium.RAMMedium
	table  *eefs.InodeTable
	ctx    context.Context
}

func init() { RegisterTestSuite(&EngineTest{}) }

func (t *EngineTest) SetUp(ti *TestInfo) {
	t.clock = &fakeClock{now: time.Unix(1700000000, 0)}
	t.engine = eefs.NewEngine(t.clock)
	t.ctx = context.Background()

	image := buildEmptyImage(binary.BigEndian, 1024)
	t.ram = medium.NewRAMMediumFromBytes(t.clock, image)

	table, errno := t.engine.InitFS(t.ram, binary.BigEndian, 0)
	AssertEq(eefs.Success, errno)
	t.table = table
}

func (t *EngineTest) EmptyMountReportsFreshVolumeGeometry() {
	ExpectEq(0, t.table.NumberOfFiles())
	ExpectEq(int64(eefsfmt.FATHeaderSize), t.table.FreeMemoryPointer())
	ExpectEq(uint32(1024-eefsfmt.FATHeaderSize), t.table.FreeMemorySize())
}

func (t *EngineTest) CreatWriteCloseThenStat() {
	fd := t.engine.Creat(t.ctx, t.table, "a", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)

	n := t.engine.Write(t.ctx, fd, []byte("hello"))
	AssertEq(5, n)

	errno := t.engine.Close(t.ctx, fd)
	AssertEq(eefs.Success, errno)

	stat, errno := t.engine.Stat(t.ctx, t.table, "a")
	AssertEq(eefs.Success, errno)
	ExpectEq(uint32(5), stat.FileSize)
	ExpectEq(roundUp4(5+eefs.DefaultCreatSpareBytes), stat.MaxFileSize)
}

func (t *EngineTest) WriteReadRoundTrips() {
	fd := t.engine.Creat(t.ctx, t.table, "a", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(5, t.engine.Write(t.ctx, fd, []byte("hello")))
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	rfd := t.engine.Open(t.ctx, t.table, "a", eefs.O_RDONLY, eefsfmt.AttributeNone)
	AssertTrue(rfd >= 0)

	out := make([]byte, 5)
	n := t.engine.Read(t.ctx, rfd, out)
	AssertEq(5, n)
	ExpectEq("hello", string(out))

	AssertEq(eefs.Success, t.engine.Close(t.ctx, rfd))
}

func (t *EngineTest) WritePastMaxFileSizeIsClamped() {
	fd := t.engine.Creat(t.ctx, t.table, "a", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(5, t.engine.Write(t.ctx, fd, []byte("hello")))
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	stat, errno := t.engine.Stat(t.ctx, t.table, "a")
	AssertEq(eefs.Success, errno)

	rfd := t.engine.Open(t.ctx, t.table, "a", eefs.O_WRONLY, eefsfmt.AttributeNone)
	AssertTrue(rfd >= 0)

	filler := make([]byte, stat.MaxFileSize)
	n := t.engine.Write(t.ctx, rfd, filler)
	AssertEq(int(stat.MaxFileSize), n)

	extra := t.engine.Write(t.ctx, rfd, []byte("x"))
	ExpectEq(0, extra)

	AssertEq(eefs.Success, t.engine.Close(t.ctx, rfd))
}

func (t *EngineTest) CreatWriteRenameThenOpenRead() {
	fd := t.engine.Creat(t.ctx, t.table, "n", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(5, t.engine.Write(t.ctx, fd, []byte("world")))
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	AssertEq(eefs.Success, t.engine.Rename(t.ctx, t.table, "n", "m"))

	rfd := t.engine.Open(t.ctx, t.table, "m", eefs.O_RDONLY, eefsfmt.AttributeNone)
	AssertTrue(rfd >= 0)
	out := make([]byte, 5)
	AssertEq(5, t.engine.Read(t.ctx, rfd, out))
	ExpectEq("world", string(out))
	AssertEq(eefs.Success, t.engine.Close(t.ctx, rfd))
}

func (t *EngineTest) OpenNonexistentWithoutCreateFails() {
	fd := t.engine.Open(t.ctx, t.table, "missing", eefs.O_RDONLY, eefsfmt.AttributeNone)
	ExpectEq(int(eefs.FileNotFound), fd)
}

func (t *EngineTest) RemoveOfOpenFileFails() {
	fd := t.engine.Creat(t.ctx, t.table, "p", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	rfd := t.engine.Open(t.ctx, t.table, "p", eefs.O_RDONLY, eefsfmt.AttributeNone)
	AssertTrue(rfd >= 0)

	errno := t.engine.Remove(t.ctx, t.table, "p")
	ExpectEq(eefs.PermissionDenied, errno)

	AssertEq(eefs.Success, t.engine.Close(t.ctx, rfd))
}

func (t *EngineTest) RenameConflictLeavesBothNamesLive() {
	efd := t.engine.Creat(t.ctx, t.table, "e", eefsfmt.AttributeNone)
	AssertTrue(efd >= 0)
	AssertEq(eefs.Success, t.engine.Close(t.ctx, efd))

	ffd := t.engine.Creat(t.ctx, t.table, "f", eefsfmt.AttributeNone)
	AssertTrue(ffd >= 0)
	AssertEq(eefs.Success, t.engine.Close(t.ctx, ffd))

	errno := t.engine.Rename(t.ctx, t.table, "e", "f")
	ExpectEq(eefs.PermissionDenied, errno)

	_, errno = t.engine.Stat(t.ctx, t.table, "e")
	ExpectEq(eefs.Success, errno)
	_, errno = t.engine.Stat(t.ctx, t.table, "f")
	ExpectEq(eefs.Success, errno)
}

func (t *EngineTest) RenameOntoSelfIsAnError() {
	fd := t.engine.Creat(t.ctx, t.table, "same", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	errno := t.engine.Rename(t.ctx, t.table, "same", "same")
	ExpectEq(eefs.PermissionDenied, errno)
}

func (t *EngineTest) LSeekClampsPastEndOfFile() {
	fd := t.engine.Creat(t.ctx, t.table, "s", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(4, t.engine.Write(t.ctx, fd, []byte("abcd")))

	pos := t.engine.LSeek(t.ctx, fd, 1000, eefs.SeekSet)
	ExpectEq(int64(4), pos)

	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))
}

func (t *EngineTest) LSeekNegativeIsInvalid() {
	fd := t.engine.Creat(t.ctx, t.table, "s2", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)

	pos := t.engine.LSeek(t.ctx, fd, -1, eefs.SeekSet)
	ExpectEq(int64(eefs.InvalidArgument), pos)

	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))
}

func (t *EngineTest) CreatFailsWhenSlotTableIsFull() {
	// Big enough to hold MaxFiles empty files at the default spare so that
	// the slot-table cap, not free space, is what Creat trips over.
	const slotBytes = int64(eefsfmt.FileHeaderSize + eefs.DefaultCreatSpareBytes + 4)
	size := int64(eefsfmt.FATHeaderSize) + slotBytes*int64(eefs.MaxFiles)

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	engine := eefs.NewEngine(clock)
	ram := medium.NewRAMMediumFromBytes(clock, buildEmptyImage(binary.BigEndian, size))
	table, errno := engine.InitFS(ram, binary.BigEndian, 0)
	AssertEq(eefs.Success, errno)

	for i := 0; i < eefs.MaxFiles; i++ {
		fd := engine.Creat(t.ctx, table, nameForIndex(i), eefsfmt.AttributeNone)
		AssertTrue(fd >= 0, "index %d", i)
		AssertEq(eefs.Success, engine.Close(t.ctx, fd))
	}

	fd := engine.Creat(t.ctx, table, "overflow", eefsfmt.AttributeNone)
	ExpectEq(int(eefs.NoSpaceLeftOnDevice), fd)
}

func nameForIndex(i int) string {
	return string(rune('a'+i%26)) + string(rune('A'+(i/26)%26))
}

func (t *EngineTest) DirIterationSeesDeletedSlots() {
	fd := t.engine.Creat(t.ctx, t.table, "live", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	dfd := t.engine.Creat(t.ctx, t.table, "dead", eefsfmt.AttributeNone)
	AssertTrue(dfd >= 0)
	AssertEq(eefs.Success, t.engine.Close(t.ctx, dfd))
	AssertEq(eefs.Success, t.engine.Remove(t.ctx, t.table, "dead"))

	AssertEq(eefs.Success, t.engine.OpenDir(t.ctx, t.table))

	var names []string
	var sawDeleted bool
	for {
		entry, ok, errno := t.engine.ReadDir(t.ctx)
		AssertEq(eefs.Success, errno)
		if !ok {
			break
		}
		names = append(names, entry.Filename)
		if !entry.InUse {
			sawDeleted = true
		}
	}

	AssertEq(eefs.Success, t.engine.CloseDir(t.ctx))

	// Remove zeroes the whole header, so the deleted slot reads back with an
	// empty filename.
	ExpectTrue(containsString(names, "live"))
	ExpectTrue(containsString(names, ""))
	ExpectTrue(sawDeleted)
}

func (t *EngineTest) OpenDirWhileAlreadyOpenFails() {
	AssertEq(eefs.Success, t.engine.OpenDir(t.ctx, t.table))
	errno := t.engine.OpenDir(t.ctx, t.table)
	ExpectEq(eefs.DeviceIsBusy, errno)
	AssertEq(eefs.Success, t.engine.CloseDir(t.ctx))
}

func (t *EngineTest) ChkDskReportsNoDiscrepanciesOnAFreshVolume() {
	fd := t.engine.Creat(t.ctx, t.table, "q", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(3, t.engine.Write(t.ctx, fd, []byte("abc")))
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	report := t.engine.ChkDsk(t.ctx, t.table)
	ExpectTrue(report.PackOk)
	ExpectTrue(report.TailOk)
	ExpectTrue(report.NameUniqueOk)
	ExpectEq(0, len(report.Discrepancies))
}

func (t *EngineTest) CrashBeforeFATCommitHidesTheFile() {
	// Flush sequence for Creat+Write+Close on a brand new file is: (1) the
	// fresh header write in Creat, (2) the final header rewrite in Close,
	// (3) the FAT entry write in Close, (4) the FAT header write in Close.
	// Dropping everything issued after flush 3 discards exactly the FAT
	// header commit, reproducing a reset between the FAT-entry flush and
	// the FAT-header flush.
	crash := &medium.CrashMedium{Medium: t.ram, DropAfterFlush: 3}
	crashEngine := eefs.NewEngine(t.clock)
	crashTable, errno := crashEngine.InitFS(crash, binary.BigEndian, 0)
	AssertEq(eefs.Success, errno)

	fd := crashEngine.Creat(t.ctx, crashTable, "c", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(1, crashEngine.Write(t.ctx, fd, []byte("x")))
	crashEngine.Close(t.ctx, fd)

	remountEngine := eefs.NewEngine(t.clock)
	remountTable, errno := remountEngine.InitFS(t.ram, binary.BigEndian, 0)
	AssertEq(eefs.Success, errno)
	ExpectEq(0, remountTable.NumberOfFiles())
}

func (t *EngineTest) FreeFSFailsWhileDescriptorsAreOpen() {
	fd := t.engine.Creat(t.ctx, t.table, "r", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	rfd := t.engine.Open(t.ctx, t.table, "r", eefs.O_RDONLY, eefsfmt.AttributeNone)
	AssertTrue(rfd >= 0)

	errno := t.engine.FreeFS(t.table)
	ExpectEq(eefs.DeviceIsBusy, errno)

	AssertEq(eefs.Success, t.engine.Close(t.ctx, rfd))

	errno = t.engine.FreeFS(t.table)
	ExpectEq(eefs.Success, errno)
}
