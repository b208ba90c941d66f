package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxTicketsPerOrder caps one checkout across all tiers.
const MaxTicketsPerOrder = 50

type TicketSelection struct {
	TierID   uuid.UUID       `json:"tierId"`
	TierName string          `json:"tierName"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// SelectionState tracks the chosen quantity per tier. It never does I/O.
type SelectionState struct {
	items []TicketSelection
}

func NewSelectionState(catalog *TierCatalog) *SelectionState {
	s := &SelectionState{}
	for _, t := range catalog.Tiers() {
		s.items = append(s.items, TicketSelection{
			TierID:   t.ID,
			TierName: t.Name,
			Price:    t.Price,
		})
	}
	return s
}

// RestoreSelectionState rebuilds a selection from stored items, clamping
// quantities an older writer may have persisted out of range.
func RestoreSelectionState(items []TicketSelection) *SelectionState {
	s := &SelectionState{items: make([]TicketSelection, len(items))}
	copy(s.items, items)
	for i := range s.items {
		if s.items[i].Quantity < 0 {
			s.items[i].Quantity = 0
		}
		if s.items[i].Quantity > MaxTicketsPerOrder {
			s.items[i].Quantity = MaxTicketsPerOrder
		}
	}
	return s
}

// UpdateQuantity applies delta to the tier and clamps it to
// [0, MaxTicketsPerOrder]. It reports whether the stored quantity changed;
// unknown tiers are a no-op.
func (s *SelectionState) UpdateQuantity(tierID uuid.UUID, delta int) bool {
	for i := range s.items {
		if s.items[i].TierID != tierID {
			continue
		}
		cur := s.items[i].Quantity
		var next int
		switch {
		case delta > MaxTicketsPerOrder-cur:
			next = MaxTicketsPerOrder
		case delta < -cur:
			next = 0
		default:
			next = cur + delta
		}
		if next == s.items[i].Quantity {
			return false
		}
		s.items[i].Quantity = next
		return true
	}
	return false
}

func (s *SelectionState) Quantity(tierID uuid.UUID) int {
	for _, it := range s.items {
		if it.TierID == tierID {
			return it.Quantity
		}
	}
	return 0
}

func (s *SelectionState) TotalTickets() int {
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

func (s *SelectionState) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (s *SelectionState) Items() []TicketSelection {
	out := make([]TicketSelection, len(s.items))
	copy(out, s.items)
	return out
}

// Chosen returns only the tiers with a positive quantity.
func (s *SelectionState) Chosen() []TicketSelection {
	var out []TicketSelection
	for _, it := range s.items {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}
