package models

import (
	"time"
)

// OneTimeCode is the emailed signup code. There is at most one per email.
type OneTimeCode struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Email    string    `gorm:"size:255;not null;uniqueIndex:uk_one_time_codes_email" json:"email"`
	Code     string    `gorm:"size:6;not null" json:"-"`
	IssuedAt time.Time `gorm:"not null;index:idx_one_time_codes_issued_at" json:"issued_at"`
}

func (OneTimeCode) TableName() string {
	return "one_time_codes"
}

// ExpiresAt is the last instant at which the code still verifies.
func (c *OneTimeCode) ExpiresAt(window time.Duration) time.Time {
	return c.IssuedAt.Add(window)
}

// IsValidAt reports whether now falls inside the inclusive validity window.
func (c *OneTimeCode) IsValidAt(now time.Time, window time.Duration) bool {
	return !now.After(c.ExpiresAt(window))
}

// SecondsRemaining rounds the time left in the window up to whole seconds.
// It returns 0 once the window has elapsed.
func (c *OneTimeCode) SecondsRemaining(now time.Time, window time.Duration) int {
	left := c.ExpiresAt(window).Sub(now)
	if left <= 0 {
		return 0
	}
	secs := int(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}

type OneTimeCodeFilter struct {
	ID           *uint
	Email        *string
	IssuedBefore *time.Time
}
