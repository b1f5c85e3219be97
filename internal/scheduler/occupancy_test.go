package scheduler

import (
	"reflect"
	"testing"
)

func TestOccupancy(t *testing.T) {
	occ := CountBySlot([]string{"s-1", "s-2", "s-1", "s-3", "s-3", "s-3"})

	if occ.Reserved("s-1") != 2 || occ.Reserved("s-2") != 1 || occ.Reserved("missing") != 0 {
		t.Fatalf("unexpected counts: %v", occ)
	}
	if occ.HasRoom("s-1") {
		t.Fatal("slot with two reservations must be full")
	}
	if !occ.HasRoom("s-2") || !occ.HasRoom("missing") {
		t.Fatal("slots below capacity must have room")
	}
	if !IsFull(2) || IsFull(1) {
		t.Fatal("IsFull must flip at MaxCapacity")
	}
	if got := occ.Overbooked(); !reflect.DeepEqual(got, []string{"s-3"}) {
		t.Fatalf("expected s-3 overbooked, got %v", got)
	}
}

func TestLess(t *testing.T) {
	if !Less("2024-05-01", "17:30", "2024-05-02", "08:00") {
		t.Fatal("earlier date must sort first")
	}
	if !Less("2024-05-01", "08:00", "2024-05-01", "08:30") {
		t.Fatal("earlier start must sort first on the same date")
	}
	if Less("2024-05-01", "08:00", "2024-05-01", "08:00") {
		t.Fatal("equal keys are not less")
	}
}
