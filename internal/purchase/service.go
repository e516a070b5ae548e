package purchase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"proledger/internal/account"
	"proledger/internal/email"
	"proledger/internal/ledger"
	"proledger/internal/logger"
	"proledger/internal/metrics"
)

var ErrUnknownPackage = errors.New("unknown credit package")

// CreditEngine is the slice of the ledger engine the purchase flow needs.
type CreditEngine interface {
	AddCredits(ctx context.Context, accountID, amount int, class ledger.CreditClass, description string, expiresAt *time.Time, meta ledger.Metadata) (*ledger.Balance, *ledger.Entry, error)
}

type Service interface {
	CreatePurchase(ctx context.Context, accountID int, packageID string) (*Purchase, error)
	CompletePurchase(ctx context.Context, paymentRef string) (*Purchase, error)
	FailPurchase(ctx context.Context, paymentRef string) (*Purchase, error)
	RefundPurchase(ctx context.Context, paymentRef string) (*Purchase, error)
	ListPurchases(ctx context.Context, accountID int) ([]Purchase, error)
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

func (s *service) CreatePurchase(ctx context.Context, accountID int, packageID string) (*Purchase, error) {
	pkg, ok := Packages[packageID]
	if !ok {
		return nil, ErrUnknownPackage
	}

	paymentRef, err := newPaymentRef()
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Create(ctx, accountID, pkg, paymentRef)
	if err != nil {
		return nil, err
	}

	logger.Info("purchase created",
		"account_id", accountID,
		"package_id", packageID,
		"payment_ref", paymentRef,
	)
	return p, nil
}

// CompletePurchase is idempotent: the gateway may deliver the same
// "payment succeeded" notification more than once, and only the first
// delivery credits the account.
func (s *service) CompletePurchase(ctx context.Context, paymentRef string) (*Purchase, error) {
	p, err := s.repo.CompletePending(ctx, paymentRef)
	if errors.Is(err, ErrNotPending) {
		existing, getErr := s.repo.GetByPaymentRef(ctx, paymentRef)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Status == StatusCompleted || existing.Status == StatusRefunded {
			logger.Info("duplicate purchase completion ignored", "payment_ref", paymentRef)
			return existing, nil
		}
		return nil, fmt.Errorf("purchase %s is %s: %w", paymentRef, existing.Status, ErrNotPending)
	}
	if err != nil {
		return nil, err
	}

	_, _, err = s.engine.AddCredits(
		ctx,
		p.AccountID,
		p.Credits,
		ledger.ClassPaid,
		fmt.Sprintf("Purchased %s package", p.PackageID),
		nil,
		ledger.Metadata{"payment_ref": p.PaymentRef, "package_id": p.PackageID},
	)
	if err != nil {
		// Put the row back so the gateway's retry re-runs the whole unit.
		if revertErr := s.repo.RevertToPending(ctx, paymentRef); revertErr != nil {
			logger.Error("failed to revert purchase after crediting error",
				"payment_ref", paymentRef,
				"error", revertErr,
			)
		}
		return nil, err
	}

	metrics.RecordPurchaseCompleted()
	logger.Info("purchase completed",
		"account_id", p.AccountID,
		"payment_ref", paymentRef,
		"credits", p.Credits,
	)

	s.sendReceipt(ctx, p)

	return p, nil
}

func (s *service) FailPurchase(ctx context.Context, paymentRef string) (*Purchase, error) {
	p, err := s.repo.FailPending(ctx, paymentRef)
	if errors.Is(err, ErrNotPending) {
		existing, getErr := s.repo.GetByPaymentRef(ctx, paymentRef)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Status == StatusFailed {
			return existing, nil
		}
		return nil, fmt.Errorf("purchase %s is %s: %w", paymentRef, existing.Status, ErrNotPending)
	}
	if err != nil {
		return nil, err
	}

	logger.Warn("purchase failed", "payment_ref", paymentRef)
	return p, nil
}

// RefundPurchase transitions completed -> refunded. The gateway returns the
// money; the credit side is compensated separately through the ledger's
// refund operation by whoever triggered the refund.
func (s *service) RefundPurchase(ctx context.Context, paymentRef string) (*Purchase, error) {
	p, err := s.repo.RefundCompleted(ctx, paymentRef)
	if err != nil {
		return nil, err
	}

	logger.Info("purchase refunded", "payment_ref", paymentRef, "account_id", p.AccountID)
	return p, nil
}

func (s *service) ListPurchases(ctx context.Context, accountID int) ([]Purchase, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

func (s *service) sendReceipt(ctx context.Context, p *Purchase) {
	if s.email == nil || s.accounts == nil {
		return
	}

	acc, err := s.accounts.FindByID(ctx, p.AccountID)
	if err != nil {
		logger.Error("receipt skipped, account lookup failed", "account_id", p.AccountID, "error", err)
		return
	}

	if err := s.email.SendPurchaseReceipt(ctx, acc.Email, acc.Name, p.PackageID, p.Credits); err != nil {
		logger.Error("failed to queue receipt", "account_id", p.AccountID, "error", err)
	}
}

func newPaymentRef() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "pay_" + hex.EncodeToString(buf), nil
}
