package lifecycle

// LockEntries counts the per-room locks currently held in the map.
func (m *Manager) LockEntries() int {
	n := 0
	m.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
