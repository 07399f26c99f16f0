package geocsv

// markTracker detects that the scanner has read one full cycle of the
// backing file since a search started.
type markTracker struct {
	at     ScanState
	passed bool
}

// mark starts a new cycle at cur.
func (m *markTracker) mark(cur ScanState) {
	m.at = cur
	m.passed = false
}

// update records cur and reports whether the mark has been passed. Once
// passed, it stays passed until the next mark.
func (m *markTracker) update(cur ScanState) bool {
	if !m.passed && cur.Wrap == m.at.Wrap+1 && cur.Line == m.at.Line {
		m.passed = true
	}
	return m.passed
}

// hasPassed reports whether a full cycle has elapsed since mark.
func (m *markTracker) hasPassed() bool {
	return m.passed
}
