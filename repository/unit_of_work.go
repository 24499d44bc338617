package repository

import (
	"context"
	"errors"
	"fmt"

	"betengine/database"
	"betengine/events"
	"betengine/service"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                 *database.DB
	tx                 pgx.Tx
	ctx                context.Context
	transactionalBus   *events.TransactionalBus
	userRepo           service.UserRepository
	balanceHistoryRepo service.BalanceHistoryRepository
	roundRepo          service.RoundRepository
	betRepo            service.BetRepository
	duelRepo           service.DuelRepository
	paymentRepo        service.PaymentRequestRepository
	settingsRepo       service.SettingsRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.userRepo = newUserRepositoryWithTx(tx)
	u.balanceHistoryRepo = newBalanceHistoryRepositoryWithTx(tx)
	u.roundRepo = newRoundRepositoryWithTx(tx)
	u.betRepo = newBetRepositoryWithTx(tx)
	u.duelRepo = newDuelRepositoryWithTx(tx)
	u.paymentRepo = newPaymentRequestRepositoryWithTx(tx)
	u.settingsRepo = newSettingsRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and flushes staged events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction and discards staged events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

const notStarted = "unit of work not started - call Begin() first"

// UserRepository returns the user repository for this unit of work
func (u *unitOfWork) UserRepository() service.UserRepository {
	if u.userRepo == nil {
		panic(notStarted)
	}
	return u.userRepo
}

// BalanceHistoryRepository returns the balance history repository for this unit of work
func (u *unitOfWork) BalanceHistoryRepository() service.BalanceHistoryRepository {
	if u.balanceHistoryRepo == nil {
		panic(notStarted)
	}
	return u.balanceHistoryRepo
}

// RoundRepository returns the round repository for this unit of work
func (u *unitOfWork) RoundRepository() service.RoundRepository {
	if u.roundRepo == nil {
		panic(notStarted)
	}
	return u.roundRepo
}

// BetRepository returns the bet repository for this unit of work
func (u *unitOfWork) BetRepository() service.BetRepository {
	if u.betRepo == nil {
		panic(notStarted)
	}
	return u.betRepo
}

// DuelRepository returns the duel repository for this unit of work
func (u *unitOfWork) DuelRepository() service.DuelRepository {
	if u.duelRepo == nil {
		panic(notStarted)
	}
	return u.duelRepo
}

// PaymentRequestRepository returns the payment request repository for this unit of work
func (u *unitOfWork) PaymentRequestRepository() service.PaymentRequestRepository {
	if u.paymentRepo == nil {
		panic(notStarted)
	}
	return u.paymentRepo
}

// SettingsRepository returns the settings repository for this unit of work
func (u *unitOfWork) SettingsRepository() service.SettingsRepository {
	if u.settingsRepo == nil {
		panic(notStarted)
	}
	return u.settingsRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic(notStarted)
	}
	return u.transactionalBus
}
