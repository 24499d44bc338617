package models

import (
	"time"
)

// TransactionType represents the type of balance change
type TransactionType string

const (
	TransactionTypeInitial          TransactionType = "initial"
	TransactionTypeBetPlaced        TransactionType = "bet_placed"
	TransactionTypeBetPayout        TransactionType = "bet_payout"
	TransactionTypeDuelEscrow       TransactionType = "duel_escrow"
	TransactionTypeDuelRefund       TransactionType = "duel_refund"
	TransactionTypeDeposit          TransactionType = "deposit"
	TransactionTypeWithdrawal       TransactionType = "withdrawal"
	TransactionTypeWithdrawalRefund TransactionType = "withdrawal_refund"
)

// RelatedType represents what type of entity the related_id refers to
type RelatedType string

const (
	RelatedTypeBet            RelatedType = "bet"
	RelatedTypeDuelMatch      RelatedType = "duel_match"
	RelatedTypePaymentRequest RelatedType = "payment_request"
)

// BalanceHistory represents a historical balance change
type BalanceHistory struct {
	ID                  int64           `db:"id" json:"id"`
	UserID              int64           `db:"user_id" json:"userId"`
	BalanceBefore       int64           `db:"balance_before" json:"balanceBefore"`
	BalanceAfter        int64           `db:"balance_after" json:"balanceAfter"`
	ChangeAmount        int64           `db:"change_amount" json:"changeAmount"`
	TransactionType     TransactionType `db:"transaction_type" json:"transactionType"`
	TransactionMetadata map[string]any  `db:"transaction_metadata" json:"metadata,omitempty"`
	RelatedID           *string         `db:"related_id" json:"relatedId,omitempty"`
	RelatedType         *RelatedType    `db:"related_type" json:"relatedType,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
}
