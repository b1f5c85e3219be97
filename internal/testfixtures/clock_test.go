package testfixtures

import (
	"testing"
	"time"
)

func TestClockStartsAtReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
	if clock.Date() != ReferenceTime().Format("2006-01-02") {
		t.Fatalf("unexpected date %q", clock.Date())
	}
}

func TestClockCrossesIntoNextBookingDay(t *testing.T) {
	clock := NewClock(time.Date(2024, time.May, 1, 17, 30, 0, 0, time.UTC))

	if got := clock.Advance(30 * time.Minute); got.Hour() != 18 {
		t.Fatalf("advance returned %v", got)
	}
	if clock.Date() != "2024-05-01" {
		t.Fatalf("expected same day after closing time, got %s", clock.Date())
	}

	clock.Advance(6 * time.Hour)
	if clock.Date() != "2024-05-02" {
		t.Fatalf("expected next day, got %s", clock.Date())
	}

	clock.Set(time.Date(2024, time.May, 6, 8, 0, 0, 0, time.UTC))
	if got := clock.Current(); got.Weekday() != time.Monday {
		t.Fatalf("expected Monday after Set, got %v", got.Weekday())
	}
}

func TestClockSetSlot(t *testing.T) {
	clock := NewClock(time.Time{})

	if err := clock.SetSlot("2024-05-03", "09:30"); err != nil {
		t.Fatalf("SetSlot returned error: %v", err)
	}
	want := time.Date(2024, time.May, 3, 9, 30, 0, 0, ReferenceTime().Location())
	if !clock.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, clock.Now())
	}

	if err := clock.SetSlot("2024-05-03", "9am"); err == nil {
		t.Fatal("expected malformed start time to be rejected")
	}
	if !clock.Now().Equal(want) {
		t.Fatalf("failed SetSlot must not move the clock, got %v", clock.Now())
	}
}

func TestClockNowFuncTracksChanges(t *testing.T) {
	clock := NewClock(time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC))
	nowFn := clock.NowFunc()

	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected updated time %v, got %v", clock.Current(), got)
	}

	var nilClock *Clock
	if nilClock.NowFunc() == nil {
		t.Fatal("nil clock must fall back to a real time source")
	}
}
