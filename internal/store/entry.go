package store

import "time"

// entry is a keyspace slot: a typed value plus an optional absolute expiry.
// A nil expiresAt means the key never expires.
type entry struct {
	value     Value
	expiresAt *time.Time
}

// expired reports whether the entry's TTL has passed as of now.
func (e *entry) expired(now time.Time) bool {
	return e.expiresAt != nil && now.After(*e.expiresAt)
}
