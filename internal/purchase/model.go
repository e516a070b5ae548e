package purchase

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Package is a purchasable bundle of paid credits.
type Package struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Credits    int    `json:"credits"`
	PriceCents int64  `json:"price_cents"`
}

// Packages is the fixed catalog. The gateway charges PriceCents; the ledger
// only ever sees Credits.
var Packages = map[string]Package{
	"starter": {ID: "starter", Name: "Starter", Credits: 20, PriceCents: 4900},
	"growth":  {ID: "growth", Name: "Growth", Credits: 50, PriceCents: 9900},
	"pro":     {ID: "pro", Name: "Pro", Credits: 120, PriceCents: 19900},
}

// Purchase tracks one checkout: pending -> completed | failed, and a
// completed purchase may later become refunded.
type Purchase struct {
	ID         int       `db:"id" json:"id"`
	AccountID  int       `db:"account_id" json:"account_id"`
	PackageID  string    `db:"package_id" json:"package_id"`
	Credits    int       `db:"credits" json:"credits"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	Status     Status    `db:"status" json:"status"`
	PaymentRef string    `db:"payment_ref" json:"payment_ref"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type CreatePurchaseRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

// WebhookRequest is the payment gateway callback payload. Signature
// verification happens upstream of this service.
type WebhookRequest struct {
	PaymentRef string `json:"payment_ref" binding:"required"`
	Status     string `json:"status" binding:"required"`
}
