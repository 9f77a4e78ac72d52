package dedupe

import (
	"testing"
	"time"
)

func TestRejectorFirstSeenIsNotDuplicate(t *testing.T) {
	r := NewRejector()
	if r.Seen("evt-1") {
		t.Errorf("first occurrence should not be a duplicate")
	}
}

func TestRejectorRepeatWithinWindowIsDuplicate(t *testing.T) {
	r := NewRejector()
	r.Seen("evt-1")
	if !r.Seen("evt-1") {
		t.Errorf("repeat within the window should be rejected as a duplicate")
	}
}

func TestRejectorRepeatAfterWindowIsNotDuplicate(t *testing.T) {
	fixed := time.Now()
	r := NewRejector()
	r.now = func() time.Time { return fixed }
	r.Seen("evt-1")

	r.now = func() time.Time { return fixed.Add(31 * time.Second) }
	if r.Seen("evt-1") {
		t.Errorf("repeat after the 30s window should not be rejected")
	}
}

func TestRejectorEmptyKeyNeverDuplicate(t *testing.T) {
	r := NewRejector()
	if r.Seen("") || r.Seen("") {
		t.Errorf("an empty key should never be treated as a duplicate")
	}
}

func TestRejectorPruneRemovesExpiredOnly(t *testing.T) {
	fixed := time.Now()
	r := NewRejector()
	r.now = func() time.Time { return fixed }
	r.Seen("old")

	r.now = func() time.Time { return fixed.Add(15 * time.Second) }
	r.Seen("fresh")

	r.now = func() time.Time { return fixed.Add(31 * time.Second) }
	if n := r.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1 (only \"old\" expired)", n)
	}
	if r.Seen("fresh") {
		t.Errorf("\"fresh\" should not have expired yet")
	}
}
