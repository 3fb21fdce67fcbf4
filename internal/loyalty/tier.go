// Package loyalty holds the pure rules of the points program: tiers, point
// accrual and the reward catalog. Persistence lives in the store package.
package loyalty

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierStarter  Tier = "STARTER"
	TierElevated Tier = "ELEVATED"
	TierElite    Tier = "ELITE"
)

const (
	ElevatedThreshold = 1000
	EliteThreshold    = 5000
)

// TierFor maps a point total onto a tier.
func TierFor(points int) Tier {
	switch {
	case points >= EliteThreshold:
		return TierElite
	case points >= ElevatedThreshold:
		return TierElevated
	default:
		return TierStarter
	}
}

func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierStarter, TierElevated, TierElite:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

func (t Tier) String() string { return string(t) }

func (t Tier) Rank() int {
	switch t {
	case TierElevated:
		return 1
	case TierElite:
		return 2
	default:
		return 0
	}
}

func (t Tier) AtLeast(min Tier) bool {
	return t.Rank() >= min.Rank()
}

// Multiplier is the raffle weight granted to an entrant of this tier.
func (t Tier) Multiplier() int {
	switch t {
	case TierElite:
		return 5
	case TierElevated:
		return 2
	default:
		return 1
	}
}

// Next returns the following tier and the points needed to reach it. ok is
// false at the top tier.
func (t Tier) Next() (next Tier, threshold int, ok bool) {
	switch t {
	case TierStarter:
		return TierElevated, ElevatedThreshold, true
	case TierElevated:
		return TierElite, EliteThreshold, true
	default:
		return "", 0, false
	}
}

type Source string

const (
	SourcePurchase Source = "purchase"
	SourceReview   Source = "review"
	SourceReferral Source = "referral"
	SourceBonus    Source = "bonus"
)

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourcePurchase, SourceReview, SourceReferral, SourceBonus:
		return Source(s), nil
	default:
		return "", fmt.Errorf("unknown points source %q", s)
	}
}

const (
	PointsPerDollar = 2
	ReviewPoints    = 50
	ReferralPoints  = 500
)

// PurchasePoints awards PointsPerDollar for every whole half-dollar spent,
// i.e. floor(amount * 2).
func PurchasePoints(amount decimal.Decimal) int {
	if amount.IsNegative() {
		return 0
	}
	return int(amount.Mul(decimal.NewFromInt(PointsPerDollar)).Floor().IntPart())
}

// PointsFor resolves how many points an earn event is worth. bonus is only
// consulted for SourceBonus.
func PointsFor(source Source, amount decimal.Decimal, bonus int) (int, error) {
	switch source {
	case SourcePurchase:
		return PurchasePoints(amount), nil
	case SourceReview:
		return ReviewPoints, nil
	case SourceReferral:
		return ReferralPoints, nil
	case SourceBonus:
		if bonus <= 0 {
			return 0, fmt.Errorf("bonus points must be positive")
		}
		return bonus, nil
	default:
		return 0, fmt.Errorf("unknown points source %q", source)
	}
}
