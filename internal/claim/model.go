package claim

import (
	"time"

	"proledger/internal/pricing"
)

// Claim records that a professional bought access to a lead.
type Claim struct {
	ID          int       `db:"id" json:"id"`
	AccountID   int       `db:"account_id" json:"account_id"`
	LeadID      string    `db:"lead_id" json:"lead_id"`
	CostCredits int       `db:"cost_credits" json:"cost_credits"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type ClaimRequest struct {
	PriceBracket pricing.PriceBracket `json:"price_bracket" binding:"required"`
	UrgencyTier  pricing.UrgencyTier  `json:"urgency_tier" binding:"required"`
}

type ClaimResponse struct {
	Claim            *Claim `json:"claim"`
	CreditsSpent     int    `json:"credits_spent"`
	RemainingCredits int    `json:"remaining_credits"`
}
