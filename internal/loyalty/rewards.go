package loyalty

import "github.com/shopspring/decimal"

type RewardType string

const (
	RewardDiscount     RewardType = "discount"
	RewardFreeShipping RewardType = "free_shipping"
	RewardEarlyAccess  RewardType = "early_access"
	RewardExclusive    RewardType = "exclusive_access"
)

type Reward struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	PointsCost  int             `json:"pointsCost"`
	MinTier     Tier            `json:"minTier"`
	Type        RewardType      `json:"type"`
	Value       decimal.Decimal `json:"value"`
}

var catalog = []Reward{
	{ID: "free-shipping", Name: "Free Shipping", Description: "Free standard shipping on one order", PointsCost: 300, MinTier: TierStarter, Type: RewardFreeShipping},
	{ID: "discount-5", Name: "$5 Off", Description: "$5 off your next order", PointsCost: 500, MinTier: TierStarter, Type: RewardDiscount, Value: decimal.NewFromInt(5)},
	{ID: "discount-15", Name: "$15 Off", Description: "$15 off your next order", PointsCost: 1250, MinTier: TierElevated, Type: RewardDiscount, Value: decimal.NewFromInt(15)},
	{ID: "early-access", Name: "Early Drop Access", Description: "Shop the next drop 24 hours early", PointsCost: 2000, MinTier: TierElevated, Type: RewardEarlyAccess},
	{ID: "discount-50", Name: "$50 Off", Description: "$50 off your next order", PointsCost: 4000, MinTier: TierElite, Type: RewardDiscount, Value: decimal.NewFromInt(50)},
	{ID: "exclusive-drop", Name: "Members-Only Release", Description: "Guaranteed access to a members-only release", PointsCost: 5000, MinTier: TierElite, Type: RewardExclusive},
}

func Rewards() []Reward {
	out := make([]Reward, len(catalog))
	copy(out, catalog)
	return out
}

func FindReward(id string) (Reward, bool) {
	for _, r := range catalog {
		if r.ID == id {
			return r, true
		}
	}
	return Reward{}, false
}

// Availability describes whether an account can redeem a reward right now.
type Availability struct {
	Reward
	CanRedeem  bool `json:"canRedeem"`
	TierLocked bool `json:"tierLocked"`
	Deficit    int  `json:"deficit,omitempty"`
}

func Evaluate(r Reward, tier Tier, balance int) Availability {
	a := Availability{Reward: r}
	a.TierLocked = !tier.AtLeast(r.MinTier)
	if balance < r.PointsCost {
		a.Deficit = r.PointsCost - balance
	}
	a.CanRedeem = !a.TierLocked && a.Deficit == 0
	return a
}

func EvaluateAll(tier Tier, balance int) []Availability {
	out := make([]Availability, 0, len(catalog))
	for _, r := range catalog {
		out = append(out, Evaluate(r, tier, balance))
	}
	return out
}
