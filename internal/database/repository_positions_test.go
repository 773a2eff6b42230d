package database

import "testing"

// The per-strategy cap counts every position whose exposure is still live.
// A position stranded in CLOSING by an unknown sell outcome must keep its
// slot occupied, otherwise the worker opens a second position on the same
// asset.
func TestActivePositionStatusesHoldCapSlots(t *testing.T) {
	want := map[string]bool{
		PositionOpen:    true,
		PositionClosing: true,
	}

	if len(activePositionStatuses) != len(want) {
		t.Fatalf("activePositionStatuses = %v, want exactly %d states", activePositionStatuses, len(want))
	}
	for _, status := range activePositionStatuses {
		if !want[status] {
			t.Errorf("unexpected cap-holding status %q", status)
		}
		delete(want, status)
	}
	for status := range want {
		t.Errorf("status %q missing from activePositionStatuses", status)
	}
}
