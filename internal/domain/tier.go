package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TicketTier struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
}

// TierCatalog holds the tiers of one event in the order the organizer defined them.
type TierCatalog struct {
	tiers []TicketTier
	index map[uuid.UUID]int
}

func NewTierCatalog(tiers []TicketTier) (*TierCatalog, error) {
	c := &TierCatalog{
		tiers: make([]TicketTier, 0, len(tiers)),
		index: make(map[uuid.UUID]int, len(tiers)),
	}
	for _, t := range tiers {
		if t.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: missing id", ErrInvalidTier)
		}
		if t.Price.IsNegative() {
			return nil, fmt.Errorf("%w: negative price for %q", ErrInvalidTier, t.Name)
		}
		if _, dup := c.index[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidTier, t.ID)
		}
		c.index[t.ID] = len(c.tiers)
		c.tiers = append(c.tiers, t)
	}
	return c, nil
}

func (c *TierCatalog) Tier(id uuid.UUID) (TicketTier, bool) {
	i, ok := c.index[id]
	if !ok {
		return TicketTier{}, false
	}
	return c.tiers[i], true
}

func (c *TierCatalog) Tiers() []TicketTier {
	out := make([]TicketTier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

func (c *TierCatalog) Len() int { return len(c.tiers) }
