package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour

	// OTPExpiry is the validity window of an emailed signup code (3 minutes)
	OTPExpiry = 3 * time.Minute

	// PasswordResetTTL is how long an emailed reset token stays usable
	PasswordResetTTL = time.Hour

	// PendingSignupTTL is how long an unverified signup is kept around
	PendingSignupTTL = 30 * time.Minute
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Profile defaults
const (
	DefaultAddress = "Beni Municipality"
)

// Wards lists the ward identifiers accepted on profiles.
var Wards = []string{
	"Ward 1", "Ward 2", "Ward 3", "Ward 4", "Ward 5",
	"Ward 6", "Ward 7", "Ward 8", "Ward 9", "Ward 10",
}

// MessageTimestampLayout is the wall-clock format pushed to chat subscribers.
const MessageTimestampLayout = "2006-01-02 15:04"
