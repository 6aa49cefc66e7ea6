package models

import "time"

// CacheEntry is a persisted response-cache row.
type CacheEntry struct {
	Key       string
	Value     []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// CrashReport is one captured failure.
type CrashReport struct {
	ID         string
	OccurredAt time.Time
	Context    string
	Message    string
	Extra      map[string]string
}
