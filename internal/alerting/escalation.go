package alerting

import (
	"time"

	"github.com/tidwall/btree"
)

// escalationEntry is one pending "escalation due" item. ruleIdx indexes the
// config's EscalationRules slice.
type escalationEntry struct {
	dueAt   time.Time
	alertID string
	ruleIdx int
}

func escalationLess(a, b escalationEntry) bool {
	if !a.dueAt.Equal(b.dueAt) {
		return a.dueAt.Before(b.dueAt)
	}
	if a.alertID != b.alertID {
		return a.alertID < b.alertID
	}
	return a.ruleIdx < b.ruleIdx
}

// escalationSchedule is a time-ordered queue of pending escalations. One
// periodic sweep drains due entries; no per-alert timers are created, so
// resource usage stays bounded under many simultaneous alerts.
type escalationSchedule struct {
	tree *btree.BTreeG[escalationEntry]
}

func newEscalationSchedule() *escalationSchedule {
	return &escalationSchedule{tree: btree.NewBTreeG(escalationLess)}
}

func (s *escalationSchedule) add(alertID string, ruleIdx int, dueAt time.Time) {
	s.tree.Set(escalationEntry{dueAt: dueAt, alertID: alertID, ruleIdx: ruleIdx})
}

// due pops and returns every entry whose due time is at or before now.
func (s *escalationSchedule) due(now time.Time) []escalationEntry {
	var out []escalationEntry
	for {
		entry, ok := s.tree.Min()
		if !ok || entry.dueAt.After(now) {
			return out
		}
		s.tree.PopMin()
		out = append(out, entry)
	}
}

// cancel removes every pending entry for the alert.
func (s *escalationSchedule) cancel(alertID string) {
	var stale []escalationEntry
	s.tree.Scan(func(e escalationEntry) bool {
		if e.alertID == alertID {
			stale = append(stale, e)
		}
		return true
	})
	for _, e := range stale {
		s.tree.Delete(e)
	}
}
