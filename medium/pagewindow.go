package medium

import (
	"fmt"
	"time"
)

// PageWindowSize is the page window buffer size. It matches the hardware
// page window size assumed by the EEPROM programmer this type models and
// must evenly divide the size of any underlying Medium it wraps.
const PageWindowSize = 1024

// PageWindowMedium wraps another Medium and batches writes through a
// single page-sized buffer, the way a real EEPROM programmer must stage an
// entire page before it can assert the part's write-enable line. Writes
// that land in a new page flush the previously loaded page first. Flush
// both commits the loaded page to the backing medium and reads it back to
// verify the write stuck, mirroring the readback-verify step flight EEPROM
// drivers perform because page programming can silently fail.
type PageWindowMedium struct {
	backing Medium

	loaded       bool
	lowerAddress int64
	buffer       [PageWindowSize]byte
}

// NewPageWindowMedium returns a PageWindowMedium over backing. backing's
// size must be a multiple of PageWindowSize.
func NewPageWindowMedium(backing Medium) *PageWindowMedium {
	return &PageWindowMedium{backing: backing}
}

func pageWindowBase(off int64) int64 {
	return off &^ (PageWindowSize - 1)
}

func (m *PageWindowMedium) ReadAt(dst []byte, off int64) error {
	return m.backing.ReadAt(dst, off)
}

// WriteAt stages src into the page window buffer. If off falls outside the
// currently loaded page, the loaded page is flushed to the backing medium
// first and a new page is loaded from it.
func (m *PageWindowMedium) WriteAt(src []byte, off int64) error {
	if m.backing.IsWriteProtected() {
		return fmt.Errorf("medium: write-protected")
	}

	base := pageWindowBase(off)
	if !m.loaded || base != m.lowerAddress {
		if err := m.flushWindow(); err != nil {
			return err
		}

		if err := m.backing.ReadAt(m.buffer[:], base); err != nil {
			return err
		}

		m.loaded = true
		m.lowerAddress = base
	}

	pageOff := off - m.lowerAddress
	if pageOff < 0 || pageOff+int64(len(src)) > PageWindowSize {
		return fmt.Errorf("medium: write [%d,%d) crosses a page window boundary", off, off+int64(len(src)))
	}

	copy(m.buffer[pageOff:pageOff+int64(len(src))], src)
	return nil
}

func (m *PageWindowMedium) flushWindow() error {
	if !m.loaded {
		return nil
	}

	if err := m.backing.WriteAt(m.buffer[:], m.lowerAddress); err != nil {
		return err
	}
	if err := m.backing.Flush(); err != nil {
		return err
	}

	var readback [PageWindowSize]byte
	if err := m.backing.ReadAt(readback[:], m.lowerAddress); err != nil {
		return err
	}
	if readback != m.buffer {
		return fmt.Errorf("medium: readback verify failed at page 0x%x", m.lowerAddress)
	}

	m.loaded = false
	return nil
}

// Flush commits and verifies the currently loaded page, if any. With no
// page loaded it only flushes the backing medium.
func (m *PageWindowMedium) Flush() error {
	if m.loaded {
		return m.flushWindow()
	}
	return m.backing.Flush()
}

func (m *PageWindowMedium) Now() time.Time {
	return m.backing.Now()
}

func (m *PageWindowMedium) IsWriteProtected() bool {
	return m.backing.IsWriteProtected()
}

func (m *PageWindowMedium) Lock() {
	m.backing.Lock()
}

func (m *PageWindowMedium) Unlock() {
	m.backing.Unlock()
}

func (m *PageWindowMedium) Size() int64 {
	return m.backing.Size()
}
