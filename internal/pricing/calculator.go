package pricing

import (
	"errors"
	"math"
)

// PriceBracket is the customer's stated budget range for a job.
type PriceBracket string

// UrgencyTier is how soon the customer wants the job started.
type UrgencyTier string

const (
	BracketUnder500 PriceBracket = "under_500"
	Bracket500To2K  PriceBracket = "500_2000"
	Bracket2KTo10K  PriceBracket = "2000_10000"
	BracketOver10K  PriceBracket = "over_10000"

	UrgencyFlexible UrgencyTier = "flexible"
	UrgencySoon     UrgencyTier = "soon"
	UrgencyUrgent   UrgencyTier = "urgent"
)

var ErrUnknownBracket = errors.New("unknown price bracket")
var ErrUnknownUrgency = errors.New("unknown urgency tier")

// baseCosts is the credit cost per bracket before urgency weighting.
var baseCosts = map[PriceBracket]int{
	BracketUnder500: 3,
	Bracket500To2K:  8,
	Bracket2KTo10K:  14,
	BracketOver10K:  20,
}

// urgencyMultipliers weight the base cost; urgent leads cost half again as much.
var urgencyMultipliers = map[UrgencyTier]float64{
	UrgencyFlexible: 1.0,
	UrgencySoon:     1.25,
	UrgencyUrgent:   1.5,
}

// Cost maps a price bracket and urgency tier to an integer credit cost:
// ceil(base * multiplier), never below 1. Pure, no side effects.
func Cost(bracket PriceBracket, tier UrgencyTier) (int, error) {
	base, ok := baseCosts[bracket]
	if !ok {
		return 0, ErrUnknownBracket
	}

	multiplier, ok := urgencyMultipliers[tier]
	if !ok {
		return 0, ErrUnknownUrgency
	}

	cost := int(math.Ceil(float64(base) * multiplier))
	if cost < 1 {
		cost = 1
	}
	return cost, nil
}
