package medium

import (
	"fmt"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
)

// RAMMedium is a plain in-memory Medium backed by a byte slice. It is the
// medium used by every engine test and by tools that want to build or
// inspect an image without touching a physical device.
type RAMMedium struct {
	clock timeutil.Clock

	mu sync.Mutex

	// GUARDED_BY(mu)
	contents []byte

	// GUARDED_BY(mu)
	writeProtected bool
}

// NewRAMMedium returns a Medium of the given size, all bytes initially
// zero, backed by clock for Now().
func NewRAMMedium(clock timeutil.Clock, size int64) *RAMMedium {
	return &RAMMedium{
		clock:    clock,
		contents: make([]byte, size),
	}
}

// NewRAMMediumFromBytes wraps an existing image without copying it, so that
// a builder-produced image can be mounted directly in tests.
func NewRAMMediumFromBytes(clock timeutil.Clock, contents []byte) *RAMMedium {
	return &RAMMedium{
		clock:    clock,
		contents: contents,
	}
}

func (m *RAMMedium) ReadAt(dst []byte, off int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off+int64(len(dst)) > int64(len(m.contents)) {
		return fmt.Errorf("medium: read [%d,%d) out of range [0,%d)", off, off+int64(len(dst)), len(m.contents))
	}

	copy(dst, m.contents[off:off+int64(len(dst))])
	return nil
}

func (m *RAMMedium) WriteAt(src []byte, off int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeProtected {
		return fmt.Errorf("medium: write-protected")
	}

	if off < 0 || off+int64(len(src)) > int64(len(m.contents)) {
		return fmt.Errorf("medium: write [%d,%d) out of range [0,%d)", off, off+int64(len(src)), len(m.contents))
	}

	copy(m.contents[off:off+int64(len(src))], src)
	return nil
}

// Flush is a no-op; RAMMedium writes are durable as soon as WriteAt
// returns.
func (m *RAMMedium) Flush() error {
	return nil
}

func (m *RAMMedium) Now() time.Time {
	return m.clock.Now()
}

func (m *RAMMedium) IsWriteProtected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeProtected
}

// SetWriteProtected toggles write protection, for exercising
// ReadOnlyFileSystem behavior in tests.
func (m *RAMMedium) SetWriteProtected(protected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeProtected = protected
}

func (m *RAMMedium) Lock() {}

func (m *RAMMedium) Unlock() {}

func (m *RAMMedium) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.contents))
}

// Bytes returns the medium's current contents. Callers must not retain or
// mutate the returned slice past a subsequent WriteAt.
func (m *RAMMedium) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contents
}
