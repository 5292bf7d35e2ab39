package pool

// QuotaUnused is the raw sentinel for a quota that has never received real
// usage feedback. Such tokens are assumed to have capacity available.
const QuotaUnused = -1

// Quota is the remaining call budget of a token, expressed as a closed
// variant (unused, exhausted, or a known remaining count). The raw integer
// encoding (-1 unused, 0 exhausted, n remaining) only appears at the
// storage boundary.
type Quota struct {
	known bool
	n     int
}

// QuotaFromRaw converts the stored integer encoding into a Quota.
// Any negative value is treated as the unused sentinel.
func QuotaFromRaw(raw int) Quota {
	if raw < 0 {
		return Quota{}
	}
	return Quota{known: true, n: raw}
}

// Raw converts a Quota back to the stored integer encoding.
func (q Quota) Raw() int {
	if !q.known {
		return QuotaUnused
	}
	return q.n
}

// Unused reports whether the quota has never been exercised.
func (q Quota) Unused() bool {
	return !q.known
}

// Exhausted reports whether the quota is known to be fully spent.
func (q Quota) Exhausted() bool {
	return q.known && q.n == 0
}

// Remaining returns the known remaining count, or 0 when unused.
func (q Quota) Remaining() int {
	if !q.known {
		return 0
	}
	return q.n
}

// Available reports whether the quota still admits calls, counting the
// unused sentinel as available.
func (q Quota) Available() bool {
	return !q.known || q.n > 0
}
