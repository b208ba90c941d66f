package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrentTierPrice is the highest price among the holder's confirmed tickets for the event.
func CurrentTierPrice(tickets []Ticket, eventID uuid.UUID) (decimal.Decimal, error) {
	found := false
	best := decimal.Zero
	for _, t := range tickets {
		if t.EventID != eventID || t.Status != TicketConfirmed {
			continue
		}
		if !found || t.Price.GreaterThan(best) {
			best = t.Price
			found = true
		}
	}
	if !found {
		return decimal.Zero, ErrNoExistingTicket
	}
	return best, nil
}

// BaseTicket picks the confirmed ticket an upgrade is recorded against.
func BaseTicket(tickets []Ticket, eventID uuid.UUID) (Ticket, error) {
	var base *Ticket
	for i := range tickets {
		t := tickets[i]
		if t.EventID != eventID || t.Status != TicketConfirmed {
			continue
		}
		if base == nil || t.Price.GreaterThan(base.Price) {
			base = &tickets[i]
		}
	}
	if base == nil {
		return Ticket{}, ErrNoExistingTicket
	}
	return *base, nil
}

func UpgradeOptions(catalog *TierCatalog, current decimal.Decimal) []TicketTier {
	var out []TicketTier
	for _, t := range catalog.Tiers() {
		if t.Price.GreaterThan(current) {
			out = append(out, t)
		}
	}
	return out
}

func UpgradeCost(target TicketTier, current decimal.Decimal) (decimal.Decimal, error) {
	if !target.Price.GreaterThan(current) {
		return decimal.Zero, ErrNotAnUpgrade
	}
	return target.Price.Sub(current), nil
}
