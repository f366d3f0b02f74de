package config

import "time"

// ElevationDuration returns how long an elevated conversation keeps admin rights.
func (a AuthConfig) ElevationDuration() time.Duration {
	return time.Duration(a.ElevationDurationSeconds) * time.Second
}

// LockoutDuration returns how long PIN submissions are refused after too many failures.
func (a AuthConfig) LockoutDuration() time.Duration {
	return time.Duration(a.LockoutDurationSeconds) * time.Second
}

// Timeout returns the inactivity period after which a conversation resets to idle.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// SweepInterval returns the period of the background expiry sweep.
func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// Threshold returns the default low-stock threshold.
func (i InventoryConfig) Threshold() int64 {
	if i.LowStockThreshold == nil {
		return DefaultLowStockThreshold
	}
	return *i.LowStockThreshold
}
