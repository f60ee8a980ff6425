package medium

// CrashMedium wraps a Medium and simulates a mid-operation reset: it counts
// Flush calls and, once a configured flush has been reached, silently
// discards every WriteAt that happens after it instead of applying it. This
// lets tests reproduce the "crash before FAT commit" scenario without a
// real power-cycling EEPROM part.
type CrashMedium struct {
	Medium

	// DropAfterFlush is the flush count after which writes are discarded.
	// Zero means never drop.
	DropAfterFlush int

	flushes int
	dropped bool
}

func (m *CrashMedium) WriteAt(src []byte, off int64) error {
	if m.dropped {
		return nil
	}
	return m.Medium.WriteAt(src, off)
}

func (m *CrashMedium) Flush() error {
	m.flushes++
	if m.DropAfterFlush > 0 && m.flushes >= m.DropAfterFlush {
		m.dropped = true
	}
	return m.Medium.Flush()
}

// FlushCount reports how many times Flush has been called so far.
func (m *CrashMedium) FlushCount() int {
	return m.flushes
}
