package testfixtures

import (
	"sync"
	"time"
)

// Clock is a hand-driven time source. Services receive NowFunc so tests can
// pin creation and update timestamps on slots and reservations.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NowFunc returns Now as an injectable func. A nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// SetSlot moves the clock to date (YYYY-MM-DD) at start (HH:mm) in the clock's
// current location.
func (c *Clock) SetSlot(date, start string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+start, c.now.Location())
	if err != nil {
		return err
	}
	c.now = t
	return nil
}

// Advance adds d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Current is Now under a name that reads better in assertions.
func (c *Clock) Current() time.Time {
	return c.Now()
}

// Date is the clock's calendar day as YYYY-MM-DD.
func (c *Clock) Date() string {
	return c.Now().Format("2006-01-02")
}
