package eefsvol_test

import (
	"encoding/binary"
	"testing"
	"time"

	. "github.com/jacobsa/ogletest"
	"golang.org/x/net/context"

	"github.com/nasa/eefs"
	"github.com/nasa/eefs/eefsfmt"
	"github.com/nasa/eefs/eefsvol"
	"github.com/nasa/eefs/medium"
)

func TestEefsvol(t *testing.T) { RunTests(t) }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func buildEmptyImage(order binary.ByteOrder, size int64) []byte {
	buf := make([]byte, size)
	header := eefsfmt.FATHeader{
		Magic:            eefsfmt.Magic,
		Version:          eefsfmt.Version,
		FreeMemoryOffset: uint32(eefsfmt.FATHeaderSize),
		FreeMemorySize:   uint32(size) - uint32(eefsfmt.FATHeaderSize),
	}
	eefsfmt.EncodeFATHeader(order, header, buf[:eefsfmt.FATHeaderSize])
	return buf
}

type ManagerTest struct {
	clock  *fakeClock
	engine *eefs.Engine
	ram    *medium.RAMMedium
	mgr    *eefsvol.Manager
	ctx    context.Context
}

func init() { RegisterTestSuite(&ManagerTest{}) }

func (t *ManagerTest) SetUp(ti *TestInfo) {
	t.clock = &fakeClock{now: time.Unix(1700000000, 0)}
	t.engine = eefs.NewEngine(t.clock)
	t.ctx = context.Background()

	image := buildEmptyImage(binary.BigEndian, 1024)
	t.ram = medium.NewRAMMediumFromBytes(t.clock, image)
	t.mgr = eefsvol.NewManager(t.engine, t.ram)
}

func (t *ManagerTest) InitFSRejectsDuplicateDeviceName() {
	AssertEq(eefs.Success, t.mgr.InitFS(t.ctx, "/EEFS0", binary.BigEndian, 0))
	ExpectEq(eefs.Error, t.mgr.InitFS(t.ctx, "/EEFS0", binary.BigEndian, 0))
}

func (t *ManagerTest) InitFSRejectsInvalidName() {
	ExpectEq(eefs.InvalidArgument, t.mgr.InitFS(t.ctx, "EEFS0", binary.BigEndian, 0))
	ExpectEq(eefs.InvalidArgument, t.mgr.InitFS(t.ctx, "", binary.BigEndian, 0))
}

func (t *ManagerTest) MountRequiresRegisteredDevice() {
	ExpectEq(eefs.Error, t.mgr.Mount("/EEFS0", "/ee"))

	AssertEq(eefs.Success, t.mgr.InitFS(t.ctx, "/EEFS0", binary.BigEndian, 0))
	ExpectEq(eefs.Success, t.mgr.Mount("/EEFS0", "/ee"))
	ExpectEq(eefs.Error, t.mgr.Mount("/EEFS0", "/ee"))
}

func (t *ManagerTest) CreatWriteReadThroughQualifiedPath() {
	AssertEq(eefs.Success, t.mgr.InitFS(t.ctx, "/EEFS0", binary.BigEndian, 0))
	AssertEq(eefs.Success, t.mgr.Mount("/EEFS0", "/ee"))

	fd := t.mgr.Creat(t.ctx, "/ee/a", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)
	AssertEq(5, t.engine.Write(t.ctx, fd, []byte("hello")))
	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))

	stat, errno := t.mgr.Stat(t.ctx, "/ee/a")
	AssertEq(eefs.Success, errno)
	ExpectEq(uint32(5), stat.FileSize)

	rfd := t.mgr.Open(t.ctx, "/ee/a", eefs.O_RDONLY, eefsfmt.AttributeNone)
	AssertTrue(rfd >= 0)
	out := make([]byte, 5)
	AssertEq(5, t.engine.Read(t.ctx, rfd, out))
	ExpectEq("hello", string(out))
	AssertEq(eefs.Success, t.engine.Close(t.ctx, rfd))
}

func (t *ManagerTest) OpenOfUnknownMountPointIsNotFound() {
	ExpectEq(int(eefs.FileNotFound), t.mgr.Open(t.ctx, "/nope/a", eefs.O_RDONLY, eefsfmt.AttributeNone))
}

func (t *ManagerTest) OpenRejectsMalformedPath() {
	ExpectEq(int(eefs.InvalidArgument), t.mgr.Open(t.ctx, "noleadslash", eefs.O_RDONLY, eefsfmt.AttributeNone))
	ExpectEq(int(eefs.InvalidArgument), t.mgr.Open(t.ctx, "/onlymount", eefs.O_RDONLY, eefsfmt.AttributeNone))
}

func (t *ManagerTest) UnMountRefusesWhileFileOpen() {
	AssertEq(eefs.Success, t.mgr.InitFS(t.ctx, "/EEFS0", binary.BigEndian, 0))
	AssertEq(eefs.Success, t.mgr.Mount("/EEFS0", "/ee"))

	fd := t.mgr.Creat(t.ctx, "/ee/a", eefsfmt.AttributeNone)
	AssertTrue(fd >= 0)

	ExpectEq(eefs.DeviceIsBusy, t.mgr.UnMount("/ee"))

	AssertEq(eefs.Success, t.engine.Close(t.ctx, fd))
	ExpectEq(eefs.Success, t.mgr.UnMount("/ee"))
}

func (t *ManagerTest) RenameRejectsCrossMountPoint() {
	AssertEq(eefs.Success, t.mgr.InitFS(t.ctx, "/EEFS0", binary.BigEndian, 0))
	AssertEq(eefs.Success, t.mgr.Mount("/EEFS0", "/ee"))

	ExpectEq(eefs.Error, t.mgr.Rename(t.ctx, "/ee/a", "/other/b"))
}
