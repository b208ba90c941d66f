package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPromoState_Apply(t *testing.T) {
	catalog := DefaultPromoCatalog()

	t.Run("case_insensitive", func(t *testing.T) {
		var p PromoState
		require.NoError(t, p.Apply(catalog, " save10 "))
		assert.Equal(t, PromoState{PromoCode: "SAVE10", DiscountPercent: 10, Applied: true}, p)
	})

	t.Run("table", func(t *testing.T) {
		for code, want := range map[string]int{"WELCOME20": 20, "EARLYBIRD": 15, "STUDENT": 25} {
			var p PromoState
			require.NoError(t, p.Apply(catalog, code))
			assert.Equal(t, want, p.DiscountPercent, code)
		}
	})

	t.Run("miss_leaves_state", func(t *testing.T) {
		p := PromoState{PromoCode: "SAVE10", DiscountPercent: 10, Applied: true}
		err := p.Apply(catalog, "BOGUS")
		assert.ErrorIs(t, err, ErrInvalidPromoCode)
		assert.Equal(t, "SAVE10", p.PromoCode)
		assert.True(t, p.Applied)

		var empty PromoState
		assert.ErrorIs(t, empty.Apply(catalog, "nope"), ErrInvalidPromoCode)
		assert.False(t, empty.Applied)
	})

	t.Run("remove_clears", func(t *testing.T) {
		var p PromoState
		require.NoError(t, p.Apply(catalog, "STUDENT"))
		p.Remove()
		assert.Equal(t, PromoState{}, p)
	})
}

func TestResolvePromo(t *testing.T) {
	code, pct, err := ResolvePromo(DefaultPromoCatalog(), "")
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Zero(t, pct)

	code, pct, err = ResolvePromo(DefaultPromoCatalog(), "earlybird")
	require.NoError(t, err)
	assert.Equal(t, "EARLYBIRD", code)
	assert.Equal(t, 15, pct)

	_, _, err = ResolvePromo(DefaultPromoCatalog(), "FREE100")
	assert.ErrorIs(t, err, ErrInvalidPromoCode)
}

func TestComputeDiscount(t *testing.T) {
	assert.True(t, dec("10").Equal(ComputeDiscount(dec("100"), 10)))
	assert.True(t, dec("22.5").Equal(ComputeDiscount(dec("90"), 25)))
	assert.True(t, ComputeDiscount(dec("90"), 0).IsZero())
}

func TestUpgrade(t *testing.T) {
	eventID := uuid.New()
	ga, mid, vip := tier("GA", "20"), tier("Cheap", "15"), tier("VIP", "50")
	catalog, err := NewTierCatalog([]TicketTier{ga, mid, vip})
	require.NoError(t, err)

	held := []Ticket{
		{ID: uuid.New(), EventID: eventID, Price: dec("20"), Status: TicketConfirmed},
		{ID: uuid.New(), EventID: eventID, Price: dec("80"), Status: TicketCancelled},
		{ID: uuid.New(), EventID: uuid.New(), Price: dec("99"), Status: TicketConfirmed},
	}

	t.Run("current_price_ignores_cancelled_and_other_events", func(t *testing.T) {
		p, err := CurrentTierPrice(held, eventID)
		require.NoError(t, err)
		assert.True(t, dec("20").Equal(p))
	})

	t.Run("no_existing_ticket", func(t *testing.T) {
		_, err := CurrentTierPrice(held[1:2], eventID)
		assert.ErrorIs(t, err, ErrNoExistingTicket)
	})

	t.Run("options_only_higher", func(t *testing.T) {
		opts := UpgradeOptions(catalog, dec("20"))
		require.Len(t, opts, 1)
		assert.Equal(t, vip.ID, opts[0].ID)
	})

	t.Run("cost_is_delta", func(t *testing.T) {
		cost, err := UpgradeCost(vip, dec("20"))
		require.NoError(t, err)
		assert.True(t, dec("30").Equal(cost))

		_, err = UpgradeCost(mid, dec("20"))
		assert.ErrorIs(t, err, ErrNotAnUpgrade)
		_, err = UpgradeCost(ga, dec("20"))
		assert.ErrorIs(t, err, ErrNotAnUpgrade)
	})
}
