package utils

import (
	"time"
)

// TimeProvider stamps pending transfers; tests swap in a fixed clock
type TimeProvider interface {
	// Now returns current time
	Now() time.Time
}

// TimeProviderSystemLocalTime reads the system clock
type TimeProviderSystemLocalTime struct{}

// NewTimeProviderSystemLocalTime returns the system clock
func NewTimeProviderSystemLocalTime() *TimeProviderSystemLocalTime {
	return &TimeProviderSystemLocalTime{}
}

// Now returns current time
func (d TimeProviderSystemLocalTime) Now() time.Time {
	return time.Now()
}

// TimeProviderFixedTime always returns FixedTime until advanced
type TimeProviderFixedTime struct {
	FixedTime time.Time
}

// Now returns FixedTime
func (d *TimeProviderFixedTime) Now() time.Time {
	return d.FixedTime
}

// Advance moves the clock forward by dur
func (d *TimeProviderFixedTime) Advance(dur time.Duration) {
	d.FixedTime = d.FixedTime.Add(dur)
}
