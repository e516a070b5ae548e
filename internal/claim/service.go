package claim

import (
	"context"
	"fmt"

	"proledger/internal/account"
	"proledger/internal/email"
	"proledger/internal/ledger"
	"proledger/internal/logger"
	"proledger/internal/pricing"
)

// lowBalanceThreshold triggers a top-up reminder after a spend.
const lowBalanceThreshold = 5

// CreditEngine is the slice of the ledger engine the claim flow needs.
type CreditEngine interface {
	SpendCredits(ctx context.Context, accountID, amount int, description string, meta ledger.Metadata) (*ledger.Balance, *ledger.Entry, error)
	RefundCredits(ctx context.Context, accountID, amount int, reason string, meta ledger.Metadata) (*ledger.Balance, *ledger.Entry, error)
}

type Service interface {
	ClaimLead(ctx context.Context, accountID int, leadID string, bracket pricing.PriceBracket, tier pricing.UrgencyTier) (*ClaimResponse, error)
	ListClaims(ctx context.Context, accountID int) ([]Claim, error)
}

type service struct {
	repo     Repository
	engine   CreditEngine
	accounts account.Repository
	email    *email.Service
}

func NewService(repo Repository, engine CreditEngine, accounts account.Repository, emailService *email.Service) Service {
	return &service{
		repo:     repo,
		engine:   engine,
		accounts: accounts,
		email:    emailService,
	}
}

// ClaimLead prices the lead, spends credits, then records the claim. If the
// claim record cannot be written after a successful spend, the same amount is
// refunded with the lead id as correlation.
func (s *service) ClaimLead(ctx context.Context, accountID int, leadID string, bracket pricing.PriceBracket, tier pricing.UrgencyTier) (*ClaimResponse, error) {
	cost, err := pricing.Cost(bracket, tier)
	if err != nil {
		return nil, err
	}

	already, err := s.repo.HasClaim(ctx, accountID, leadID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, ErrAlreadyClaimed
	}

	bal, _, err := s.engine.SpendCredits(
		ctx,
		accountID,
		cost,
		fmt.Sprintf("Claimed lead %s", leadID),
		ledger.Metadata{"lead_id": leadID},
	)
	if err != nil {
		return nil, err
	}

	cl, err := s.repo.CreateClaim(ctx, accountID, leadID, cost)
	if err != nil {
		// Spend landed but the claim didn't: compensate.
		if _, _, refundErr := s.engine.RefundCredits(
			ctx,
			accountID,
			cost,
			fmt.Sprintf("Refund for failed claim of lead %s", leadID),
			ledger.Metadata{"lead_id": leadID},
		); refundErr != nil {
			logger.Error("refund after failed claim also failed",
				"account_id", accountID,
				"lead_id", leadID,
				"amount", cost,
				"error", refundErr,
			)
		}
		return nil, err
	}

	logger.Info("lead claimed",
		"account_id", accountID,
		"lead_id", leadID,
		"cost", cost,
		"remaining", bal.TotalBalance,
	)

	if bal.TotalBalance <= lowBalanceThreshold {
		s.sendLowBalanceWarning(ctx, accountID, bal.TotalBalance)
	}

	return &ClaimResponse{
		Claim:            cl,
		CreditsSpent:     cost,
		RemainingCredits: bal.TotalBalance,
	}, nil
}

func (s *service) ListClaims(ctx context.Context, accountID int) ([]Claim, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

func (s *service) sendLowBalanceWarning(ctx context.Context, accountID, balance int) {
	if s.email == nil || s.accounts == nil {
		return
	}

	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		logger.Error("low-balance warning skipped, account lookup failed", "account_id", accountID, "error", err)
		return
	}

	if err := s.email.SendLowBalanceWarning(ctx, acc.Email, acc.Name, balance); err != nil {
		logger.Error("failed to queue low-balance warning", "account_id", accountID, "error", err)
	}
}
