package domain

// CanApprove is checked on the client for a quick answer and again by the
// server while holding the event's capacity row.
func CanApprove(entry WaitlistEntry, capacity CapacityState) error {
	if entry.Status != WaitlistPending {
		return ErrWaitlistNotPending
	}
	if !capacity.Fits(entry.Quantity) {
		return ErrInsufficientCapacity
	}
	return nil
}

// NextPromotable returns the oldest pending entry whose quantity fits.
// Entries must already be ordered by RequestedAt.
func NextPromotable(entries []WaitlistEntry, capacity CapacityState) (WaitlistEntry, bool) {
	for _, e := range entries {
		if e.Status != WaitlistPending {
			continue
		}
		if capacity.Fits(e.Quantity) {
			return e, true
		}
	}
	return WaitlistEntry{}, false
}

// CanMarkNoShow only accepts confirmed tickets.
func CanMarkNoShow(t Ticket) error {
	if t.Status != TicketConfirmed {
		return ErrTicketNotConfirmed
	}
	return nil
}

// CanRestore needs a no-show ticket and a free seat at restore time.
func CanRestore(t Ticket, capacity CapacityState) error {
	if t.Status != TicketCancelled || !t.Metadata.NoShow {
		return ErrTicketNotNoShow
	}
	if !capacity.Fits(1) {
		return ErrInsufficientCapacity
	}
	return nil
}

func MarkNoShow(t *Ticket) {
	t.Status = TicketCancelled
	t.Metadata.NoShow = true
	t.CheckInStatus = CheckInNoShow
	t.CheckedIn = false
}

func Restore(t *Ticket) {
	t.Status = TicketConfirmed
	t.Metadata.NoShow = false
	t.CheckInStatus = CheckInPending
}
