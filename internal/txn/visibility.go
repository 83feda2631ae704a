package txn

// Header is the minimal MVCC header VisibilityChecker needs: a
// record's xmin/xmax, decoupled from the table package's RecordHeader
// so this rule can be unit tested without paging.
type Header struct {
	Xmin uint64
	Xmax uint64
}

// IsVisible implements §4.8 exactly, including its rule-ordering
// requirement: "xmax equals currentTxn" must be evaluated before
// "xmax committed", because a transaction must not see its own
// deletes.
func (m *Manager) IsVisible(h Header, currentTxn ID) bool {
	xminState := m.State(h.Xmin)
	xminVisible := h.Xmin == currentTxn || xminState == Committed
	if !xminVisible {
		return false
	}
	if xminState == Aborted {
		return false
	}
	if h.Xmax == 0 {
		return true
	}
	if h.Xmax == currentTxn {
		return false
	}
	if m.State(h.Xmax) == Committed {
		return false
	}
	return true
}
