package medium_test

import (
	"testing"
	"time"

	. "github.com/jacobsa/oglematchers"
	"github.com/jacobsa/oglemock"
	. "github.com/jacobsa/ogletest"

	"github.com/nasa/eefs/medium"
	"github.com/nasa/eefs/medium/mock_medium"
)

func TestPageWindowMedium(t *testing.T) { RunTests(t) }

type PageWindowMediumTest struct {
	backing mock_medium.MockMedium
	pw      *medium.PageWindowMedium
}

func init() { RegisterTestSuite(&PageWindowMediumTest{}) }

func (t *PageWindowMediumTest) SetUp(ti *TestInfo) {
	t.backing = mock_medium.NewMockMedium(ti.MockController, "backing")
	t.pw = medium.NewPageWindowMedium(t.backing)
}

// WriteAt stages into the window without writing to or flushing the
// backing medium until Flush, or until a write lands on a different page;
// it only queries write protection and loads the page from backing.
func (t *PageWindowMediumTest) WriteWithinOnePageDoesNotTouchBackingUntilFlush() {
	ExpectCall(t.backing, "IsWriteProtected")().
		WillOnce(oglemock.Return(false))
	ExpectCall(t.backing, "ReadAt")(Any(), int64(0)).
		WillOnce(oglemock.Return(nil))

	err := t.pw.WriteAt([]byte{1, 2, 3, 4}, 0)
	AssertEq(nil, err)
}

// Flush writes the staged page, flushes the backing medium, reads the page
// back, and succeeds when the readback matches what was written.
func (t *PageWindowMediumTest) FlushSucceedsWhenReadbackMatches() {
	ExpectCall(t.backing, "IsWriteProtected")().
		WillOnce(oglemock.Return(false))
	ExpectCall(t.backing, "ReadAt")(Any(), int64(0)).
		WillOnce(oglemock.Return(nil))

	err := t.pw.WriteAt([]byte{0xAA}, 0)
	AssertEq(nil, err)

	var written []byte
	ExpectCall(t.backing, "WriteAt")(Any(), int64(0)).
		WillOnce(oglemock.Invoke(func(src []byte, off int64) error {
			written = append([]byte(nil), src...)
			return nil
		}))
	ExpectCall(t.backing, "Flush")().
		WillOnce(oglemock.Return(nil))
	ExpectCall(t.backing, "ReadAt")(Any(), int64(0)).
		WillOnce(oglemock.Invoke(func(dst []byte, off int64) error {
			copy(dst, written)
			return nil
		}))

	err = t.pw.Flush()
	ExpectEq(nil, err)
}

// Flush reports an error, the way a real EEPROM programmer's readback-
// verify step would, when the bytes read back from the backing medium
// don't match what was staged.
func (t *PageWindowMediumTest) FlushFailsWhenReadbackMismatches() {
	ExpectCall(t.backing, "IsWriteProtected")().
		WillOnce(oglemock.Return(false))
	ExpectCall(t.backing, "ReadAt")(Any(), int64(0)).
		WillOnce(oglemock.Return(nil))

	err := t.pw.WriteAt([]byte{0xAA}, 0)
	AssertEq(nil, err)

	ExpectCall(t.backing, "WriteAt")(Any(), int64(0)).
		WillOnce(oglemock.Return(nil))
	ExpectCall(t.backing, "Flush")().
		WillOnce(oglemock.Return(nil))
	ExpectCall(t.backing, "ReadAt")(Any(), int64(0)).
		WillOnce(oglemock.Invoke(func(dst []byte, off int64) error {
			dst[0] = 0xFF // corrupted byte, unlike anything staged
			return nil
		}))

	err = t.pw.Flush()
	ExpectThat(err, Error(HasSubstr("readback verify failed")))
}

// WriteAt rejects an in-progress write once the backing medium reports
// write protection, without ever staging a byte.
func (t *PageWindowMediumTest) WriteRejectedWhileWriteProtected() {
	ExpectCall(t.backing, "IsWriteProtected")().
		WillOnce(oglemock.Return(true))

	err := t.pw.WriteAt([]byte{1}, 0)
	ExpectThat(err, Error(HasSubstr("write-protected")))
}

// Lock and Unlock simply arbitrate through to the backing medium, since a
// page window buffer carries no cross-process state of its own.
func (t *PageWindowMediumTest) LockAndUnlockForwardToBacking() {
	ExpectCall(t.backing, "Lock")()
	ExpectCall(t.backing, "Unlock")()

	t.pw.Lock()
	t.pw.Unlock()
}

func (t *PageWindowMediumTest) SizeForwardsToBacking() {
	ExpectCall(t.backing, "Size")().
		WillOnce(oglemock.Return(int64(4096)))

	ExpectEq(int64(4096), t.pw.Size())
}

func (t *PageWindowMediumTest) NowForwardsToBacking() {
	now := time.Unix(1700000000, 0)
	ExpectCall(t.backing, "Now")().
		WillOnce(oglemock.Return(now))

	ExpectTrue(now.Equal(t.pw.Now()))
}
