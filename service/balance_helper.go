package service

import (
	"context"
	"fmt"

	"betengine/events"
	"betengine/models"
)

// RecordBalanceChange records a balance history entry and stages the matching event.
// Every wallet change made through a unit of work goes through here; settlement
// payouts are recorded by the batch writer and published by the engine.
func RecordBalanceChange(ctx context.Context, uow UnitOfWork, history *models.BalanceHistory) error {
	if err := uow.BalanceHistoryRepository().Record(ctx, history); err != nil {
		return fmt.Errorf("failed to record balance history: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          history.UserID,
		OldBalance:      history.BalanceBefore,
		NewBalance:      history.BalanceAfter,
		TransactionType: history.TransactionType,
		ChangeAmount:    history.ChangeAmount,
	})

	if history.TransactionType == models.TransactionTypeInitial {
		if username, ok := history.TransactionMetadata["username"].(string); ok {
			uow.EventBus().Publish(events.UserCreatedEvent{
				UserID:         history.UserID,
				Username:       username,
				InitialBalance: history.BalanceAfter,
			})
		}
	}

	return nil
}

// debitWallet deducts amount and records it as a negative balance change
func debitWallet(ctx context.Context, uow UnitOfWork, userID, amount int64, txType models.TransactionType, related *relatedEntity, metadata map[string]any) (int64, error) {
	balanceAfter, err := uow.UserRepository().DeductBalance(ctx, userID, amount)
	if err != nil {
		return 0, err
	}

	history := &models.BalanceHistory{
		UserID:              userID,
		BalanceBefore:       balanceAfter + amount,
		BalanceAfter:        balanceAfter,
		ChangeAmount:        -amount,
		TransactionType:     txType,
		TransactionMetadata: metadata,
	}
	related.apply(history)

	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return 0, err
	}
	return balanceAfter, nil
}

// creditWallet adds amount and records it as a positive balance change
func creditWallet(ctx context.Context, uow UnitOfWork, userID, amount int64, txType models.TransactionType, related *relatedEntity, metadata map[string]any) (int64, error) {
	balanceAfter, err := uow.UserRepository().AddBalance(ctx, userID, amount)
	if err != nil {
		return 0, err
	}

	history := &models.BalanceHistory{
		UserID:              userID,
		BalanceBefore:       balanceAfter - amount,
		BalanceAfter:        balanceAfter,
		ChangeAmount:        amount,
		TransactionType:     txType,
		TransactionMetadata: metadata,
	}
	related.apply(history)

	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return 0, err
	}
	return balanceAfter, nil
}

type relatedEntity struct {
	id  string
	typ models.RelatedType
}

func relatedTo(typ models.RelatedType, id string) *relatedEntity {
	return &relatedEntity{id: id, typ: typ}
}

func (r *relatedEntity) apply(h *models.BalanceHistory) {
	if r == nil {
		return
	}
	id, typ := r.id, r.typ
	h.RelatedID = &id
	h.RelatedType = &typ
}
