package virtualclock

import (
	"fmt"
	"sync"
	"time"
)

// Clock derives the date the proxy believes it is from a configured
// base date of the form YYYYMMDD. With day sync enabled, month and day
// track the real wall clock while the year stays pinned to the base
// date, so a long-running proxy drifts through its chosen year.
type Clock struct {
	mu       sync.RWMutex
	baseDate int
	daySync  bool
	now      func() time.Time
}

func New(baseDate int, daySync bool) *Clock {
	return &Clock{
		baseDate: baseDate,
		daySync:  daySync,
		now:      time.Now,
	}
}

// CurrentDate returns the virtual (year, month, day).
func (c *Clock) CurrentDate() (int, int, int) {
	c.mu.RLock()
	base := c.baseDate
	c.mu.RUnlock()
	year := base / 10000
	month := base / 100 % 100
	day := base % 100
	if c.daySync {
		n := c.now()
		month = int(n.Month())
		day = n.Day()
	}
	return year, month, day
}

// Date returns the virtual date at midnight local time.
func (c *Clock) Date() time.Time {
	year, month, day := c.CurrentDate()
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
}

// QueryTimestamp renders the archive query timestamp (YYYYMMDDhhmmss).
// The time of day is always midnight, day sync or not.
func (c *Clock) QueryTimestamp() string {
	year, month, day := c.CurrentDate()
	return fmt.Sprintf("%04d%02d%02d000000", year, month, day)
}

// SetBaseDate changes the base date at runtime.
func (c *Clock) SetBaseDate(baseDate int) {
	c.mu.Lock()
	c.baseDate = baseDate
	c.mu.Unlock()
}
