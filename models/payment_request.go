package models

import "time"

// PaymentKind distinguishes deposits from withdrawals
type PaymentKind string

const (
	PaymentKindDeposit    PaymentKind = "deposit"
	PaymentKindWithdrawal PaymentKind = "withdrawal"
)

// PaymentStatus represents the lifecycle of a payment request.
// Only pending requests can move, and only once.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusDeclined PaymentStatus = "declined"
	PaymentStatusExpired  PaymentStatus = "expired"
)

// PaymentRequest is a deposit or withdrawal awaiting operator action
type PaymentRequest struct {
	ID     int64         `db:"id" json:"id"`
	UserID int64         `db:"user_id" json:"userId"`
	Kind   PaymentKind   `db:"kind" json:"kind"`
	Status PaymentStatus `db:"status" json:"status"`
	Amount int64         `db:"amount" json:"amount"`
	Fee    int64         `db:"fee" json:"fee"`
	// DebitedAmount is what left the wallet when the request was created.
	// Declines and expiries refund exactly this value.
	DebitedAmount int64      `db:"debited_amount" json:"debitedAmount"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expiresAt"`
	ResolvedAt    *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// PlatformSettings holds platform-wide switches
type PlatformSettings struct {
	PaymentsEnabled bool      `db:"payments_enabled" json:"paymentsEnabled"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}
