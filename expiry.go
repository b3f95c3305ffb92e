package elasticcache

import "time"

// expiresAtFor returns the absolute expiry, in epoch seconds, of an entry written at now with
// the given lifetime. A zero lifetime yields 0 (never expires). Partial seconds round up so a
// positive lifetime can never collapse into an unlimited one.
func expiresAtFor(now time.Time, lifetime time.Duration) int64 {
	if lifetime <= 0 {
		return 0
	}
	seconds := int64(lifetime / time.Second)
	if lifetime%time.Second != 0 {
		seconds++
	}
	return now.Unix() + seconds
}

// isExpired reports whether an entry with the given expiresAt is logically absent at now.
// Entries expire at the start of their expiry second.
func isExpired(expiresAt int64, now time.Time) bool {
	return expiresAt > 0 && expiresAt <= now.Unix()
}

// ExpiredQuery selects every document isExpired considers expired at now.
func ExpiredQuery(now time.Time) Query {
	return ExpiresAtRangeQuery(1, now.Unix())
}
