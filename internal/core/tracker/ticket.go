package tracker

// RevertTicket is a one-shot undo for a freeze exclusion. It stays valid
// until it is used, expired, or the tracker switches subject.
type RevertTicket struct {
	keeper     *Tracker
	generation uint64
	excluded   int64
	consumed   bool
}

// ExcludedSeconds returns the seconds a successful Revert gives back.
func (ticket *RevertTicket) ExcludedSeconds() int64 {
	return ticket.excluded
}

// Revert credits the excluded seconds back to the subject. Only the first
// call on a live ticket has an effect; it reports whether time was credited.
func (ticket *RevertTicket) Revert() bool {
	if ticket == nil || ticket.keeper == nil {
		return false
	}
	return ticket.keeper.revert(ticket)
}

// Expire disables the ticket without crediting anything.
func (ticket *RevertTicket) Expire() {
	if ticket == nil || ticket.keeper == nil {
		return
	}
	ticket.keeper.mu.Lock()
	ticket.consumed = true
	ticket.keeper.mu.Unlock()
}

// Live reports whether Revert would still credit time.
func (ticket *RevertTicket) Live() bool {
	if ticket == nil || ticket.keeper == nil {
		return false
	}
	ticket.keeper.mu.Lock()
	defer ticket.keeper.mu.Unlock()
	return !ticket.consumed && ticket.generation == ticket.keeper.subjectGeneration
}
