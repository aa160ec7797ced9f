package security

import "time"

// SealingWindow is the period in which a key seals new secrets, from
// ActiveFrom up to but excluding RetiredAt. A zero bound leaves that side
// open. Opening sealed values never consults the window.
type SealingWindow struct {
	ActiveFrom time.Time
	RetiredAt  time.Time
}

// Seals reports whether the window is open at the given instant.
func (w SealingWindow) Seals(at time.Time) bool {
	ts := at.UTC()
	if !w.ActiveFrom.IsZero() && ts.Before(w.ActiveFrom.UTC()) {
		return false
	}
	if !w.RetiredAt.IsZero() && !ts.Before(w.RetiredAt.UTC()) {
		return false
	}
	return true
}

// selectSealingKey returns the most recently activated key whose window is
// open at the given instant. Keys activated at the same time keep
// registration order.
func selectSealingKey(keys []*AppKey, at time.Time) *AppKey {
	var selected *AppKey
	for _, key := range keys {
		if key == nil || !key.window.Seals(at) {
			continue
		}
		if selected == nil || key.window.ActiveFrom.After(selected.window.ActiveFrom) {
			selected = key
		}
	}
	return selected
}
