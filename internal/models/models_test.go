package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"customer", "admin", "super_admin"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, s, r.String())
	}

	_, err := ParseRole("root")
	assert.Error(t, err)
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleSuperAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.False(t, RoleCustomer.AtLeast(RoleAdmin))
	assert.False(t, Role("ghost").AtLeast(Role("ghost")))
}

func TestVariantUnitPrice(t *testing.T) {
	base := decimal.RequireFromString("49.99")

	assert.True(t, Variant{}.UnitPrice(base).Equal(base))

	override := decimal.RequireFromString("59.99")
	assert.True(t, Variant{PriceOverride: &override}.UnitPrice(base).Equal(override))
}

func TestRaffleAcceptingEntries(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Raffle{Status: RaffleStatusActive, EntryStart: start, EntryEnd: start.Add(time.Hour)}

	assert.False(t, r.AcceptingEntries(start.Add(-time.Second)))
	assert.True(t, r.AcceptingEntries(start))
	assert.True(t, r.AcceptingEntries(start.Add(59*time.Minute)))
	assert.False(t, r.AcceptingEntries(start.Add(time.Hour)))

	r.Status = RaffleStatusDrawn
	assert.False(t, r.AcceptingEntries(start.Add(time.Minute)))
}
