package medium

import (
	"fmt"
	"os"
	"time"

	fallocate "github.com/detailyang/go-fallocate"
	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"
)

// FileMedium maps a regular host file into memory and serves reads and
// writes directly against the mapping, the way an EEPROM part maps into a
// flight processor's address space. It is the Medium a developer reaches
// for to exercise the engine against a real file on disk instead of a pure
// RAM image.
type FileMedium struct {
	clock timeutil.Clock
	f     *os.File
	data  []byte

	writeProtected bool
}

// OpenFileMedium preallocates size bytes in the file at path (creating it
// if necessary), memory-maps it read/write, and returns a Medium over the
// mapping. The caller must call Close when done.
func OpenFileMedium(clock timeutil.Clock, path string, size int64) (*FileMedium, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := fallocate.Fallocate(f, 0, size); err != nil {
		f.Close()
		return nil, fmt.Errorf("fallocate %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &FileMedium{clock: clock, f: f, data: data}, nil
}

// Close unmaps the file and releases its advisory lock.
func (m *FileMedium) Close() error {
	err := unix.Munmap(m.data)
	unix.Flock(int(m.f.Fd()), unix.LOCK_UN)
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *FileMedium) ReadAt(dst []byte, off int64) error {
	if off < 0 || off+int64(len(dst)) > int64(len(m.data)) {
		return fmt.Errorf("medium: read [%d,%d) out of range [0,%d)", off, off+int64(len(dst)), len(m.data))
	}
	copy(dst, m.data[off:off+int64(len(dst))])
	return nil
}

func (m *FileMedium) WriteAt(src []byte, off int64) error {
	if m.writeProtected {
		return fmt.Errorf("medium: write-protected")
	}
	if off < 0 || off+int64(len(src)) > int64(len(m.data)) {
		return fmt.Errorf("medium: write [%d,%d) out of range [0,%d)", off, off+int64(len(src)), len(m.data))
	}
	copy(m.data[off:off+int64(len(src))], src)
	return nil
}

// Flush synchronously pushes the mapping's dirty pages back to the
// underlying file. It does not read the pages back to verify them.
func (m *FileMedium) Flush() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *FileMedium) Now() time.Time {
	return m.clock.Now()
}

func (m *FileMedium) IsWriteProtected() bool {
	return m.writeProtected
}

// SetWriteProtected toggles write protection, mirroring a hardware
// write-enable gate being deasserted.
func (m *FileMedium) SetWriteProtected(protected bool) {
	m.writeProtected = protected
}

func (m *FileMedium) Lock() {
	unix.Flock(int(m.f.Fd()), unix.LOCK_EX)
}

func (m *FileMedium) Unlock() {
	unix.Flock(int(m.f.Fd()), unix.LOCK_UN)
}

func (m *FileMedium) Size() int64 {
	return int64(len(m.data))
}
