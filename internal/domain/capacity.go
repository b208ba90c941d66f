package domain

// CapacityState is derived from one fetch and must not outlive it.
// MaxAttendees <= 0 means the event has no attendee limit.
type CapacityState struct {
	MaxAttendees int `json:"maxAttendees"`
	Confirmed    int `json:"currentAttendees"`
}

func (c CapacityState) Unlimited() bool { return c.MaxAttendees <= 0 }

func (c CapacityState) Remaining() int {
	if c.Unlimited() {
		return -1
	}
	r := c.MaxAttendees - c.Confirmed
	if r < 0 {
		return 0
	}
	return r
}

// Fits reports whether quantity seats can be taken right now.
func (c CapacityState) Fits(quantity int) bool {
	return !GoesToWaitlist(quantity, c.Confirmed, c.MaxAttendees)
}

// GoesToWaitlist is the capacity gate: requested > max - current.
func GoesToWaitlist(requested, current, max int) bool {
	if max <= 0 {
		return false
	}
	return requested > max-current
}
