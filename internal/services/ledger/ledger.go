// Package ledger builds transaction records and checks fee reconciliation.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/internal/domain"
)

type transactionRepository interface {
	AddTransaction(ctx context.Context, tx *domain.Transaction) error
}

type transactionTypeRepository interface {
	// FindTypeByCode returns domain.ErrRecordNotFound when the code is not configured.
	FindTypeByCode(ctx context.Context, code domain.TypeCode) (*domain.TransactionType, error)
}

type eventService interface {
	CreatePayInEvent(ctx context.Context, user domain.User, date time.Time) (domain.Event, error)
	CreatePayOutEvent(ctx context.Context, user domain.User, date time.Time) (domain.Event, error)
}

type reportQueue interface {
	Add(ctx context.Context, event domain.Event) error
}

type unitOfWork interface {
	// Transactional runs fn so that every write made through ctx is applied
	// together or not at all.
	Transactional(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ledger creates and persists transactions.
type Ledger struct {
	l            *zap.Logger
	uow          unitOfWork
	transactions transactionRepository
	types        transactionTypeRepository
	events       eventService
	queue        reportQueue
}

// NewLedger returns a ledger writing through the given ports.
func NewLedger(l *zap.Logger, uow unitOfWork, transactions transactionRepository, types transactionTypeRepository,
	events eventService, queue reportQueue) (*Ledger, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if uow == nil || transactions == nil || types == nil {
		return nil, errors.New("unit of work, transaction and type repositories are required")
	}
	if events == nil || queue == nil {
		return nil, errors.New("event service and report queue are required")
	}

	return &Ledger{
		l:            l,
		uow:          uow,
		transactions: transactions,
		types:        types,
		events:       events,
		queue:        queue,
	}, nil
}

// CreatePayInTransaction records incoming funds. Fee is always zero and the
// real amount equals the amount.
func (s *Ledger) CreatePayInTransaction(ctx context.Context, user domain.User, amount decimal.Decimal, date time.Time,
	account *domain.Account) (*domain.Transaction, error) {
	if account == nil {
		return nil, errors.New("receiver account is required")
	}

	var tx *domain.Transaction
	err := s.uow.Transactional(ctx, func(ctx context.Context) error {
		event, err := s.events.CreatePayInEvent(ctx, user, date)
		if err != nil {
			return errors.Wrap(err, "create pay-in event")
		}

		tx = &domain.Transaction{
			ID:              uuid.New().String(),
			Amount:          amount,
			Date:            date,
			ReceiverAccount: account,
			Event:           event,
			RealAmount:      amount,
			Fee:             decimal.Zero,
		}

		return s.persistAndEnqueue(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.logCreated(tx)

	return tx, nil
}

// CreatePayOutTransaction records outgoing funds with caller supplied fee and real amount.
func (s *Ledger) CreatePayOutTransaction(ctx context.Context, user domain.User, date time.Time, amount, fee, realAmount decimal.Decimal,
	account *domain.Account) (*domain.Transaction, error) {
	if account == nil {
		return nil, errors.New("sender account is required")
	}

	var tx *domain.Transaction
	err := s.uow.Transactional(ctx, func(ctx context.Context) error {
		event, err := s.events.CreatePayOutEvent(ctx, user, date)
		if err != nil {
			return errors.Wrap(err, "create pay-out event")
		}

		tx = &domain.Transaction{
			ID:            uuid.New().String(),
			Amount:        amount,
			RealAmount:    realAmount,
			Fee:           fee,
			SenderAccount: account,
			Event:         event,
			Date:          date,
		}

		return s.persistAndEnqueue(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.logCreated(tx)

	return tx, nil
}

// CreateBuyTransaction records the receiving side of a buy.
func (s *Ledger) CreateBuyTransaction(ctx context.Context, date time.Time, amount, fee, realAmount decimal.Decimal,
	receiverAccount *domain.Account, event domain.Event, rateNominal decimal.Decimal, tradingVolume *int64) (*domain.Transaction, error) {
	return s.createTyped(ctx, domain.TypeBuy, &domain.Transaction{
		Date:            date,
		Amount:          amount,
		RealAmount:      realAmount,
		Fee:             fee,
		ReceiverAccount: receiverAccount,
		Event:           event,
		RateNominal:     decimal.NewNullDecimal(rateNominal),
		TradingVolume:   tradingVolume,
	})
}

// CreateSellTransaction records the sending side of a sell.
func (s *Ledger) CreateSellTransaction(ctx context.Context, date time.Time, amount, fee, realAmount decimal.Decimal,
	senderAccount *domain.Account, event domain.Event, rateNominal decimal.Decimal, tradingVolume *int64) (*domain.Transaction, error) {
	return s.createTyped(ctx, domain.TypeSell, &domain.Transaction{
		Date:          date,
		Amount:        amount,
		RealAmount:    realAmount,
		Fee:           fee,
		SenderAccount: senderAccount,
		Event:         event,
		RateNominal:   decimal.NewNullDecimal(rateNominal),
		TradingVolume: tradingVolume,
	})
}

// CreateReceiveTransferTransaction records funds arriving from a transfer.
func (s *Ledger) CreateReceiveTransferTransaction(ctx context.Context, date time.Time, amount, fee, realAmount decimal.Decimal,
	receiveAccount *domain.Account, event domain.Event) (*domain.Transaction, error) {
	return s.createTyped(ctx, domain.TypeReceiveTransfer, &domain.Transaction{
		Date:            date,
		Amount:          amount,
		RealAmount:      realAmount,
		Fee:             fee,
		ReceiverAccount: receiveAccount,
		Event:           event,
	})
}

// CreateSendTransferTransaction records funds leaving through a transfer.
func (s *Ledger) CreateSendTransferTransaction(ctx context.Context, date time.Time, amount, fee, realAmount decimal.Decimal,
	senderAccount *domain.Account, event domain.Event) (*domain.Transaction, error) {
	return s.createTyped(ctx, domain.TypeSendTransfer, &domain.Transaction{
		Date:          date,
		Amount:        amount,
		RealAmount:    realAmount,
		Fee:           fee,
		SenderAccount: senderAccount,
		Event:         event,
	})
}

// UpdateExchangeTransaction overwrites the correctable fields in place.
// Nothing is persisted; the caller commits the change.
func (s *Ledger) UpdateExchangeTransaction(tx *domain.Transaction, date time.Time, amount, fee, realAmount,
	rateNominal decimal.Decimal) *domain.Transaction {
	tx.Date = date
	tx.Amount = amount
	tx.RealAmount = realAmount
	tx.Fee = fee
	tx.RateNominal = decimal.NewNullDecimal(rateNominal)

	return tx
}

// GetTransactionType resolves a configured type by code.
func (s *Ledger) GetTransactionType(ctx context.Context, code domain.TypeCode) (*domain.TransactionType, error) {
	transactionType, err := s.types.FindTypeByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Code: domain.CodeTransactionTypeNotFound, Key: string(code), Err: err}
		}
		return nil, errors.Wrapf(err, "find transaction type %s", code)
	}
	if transactionType == nil {
		return nil, &domain.NotFoundError{Code: domain.CodeTransactionTypeNotFound, Key: string(code)}
	}

	return transactionType, nil
}

func (s *Ledger) createTyped(ctx context.Context, code domain.TypeCode, tx *domain.Transaction) (*domain.Transaction, error) {
	transactionType, err := s.GetTransactionType(ctx, code)
	if err != nil {
		return nil, err
	}

	tx.ID = uuid.New().String()
	tx.Type = transactionType
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	err = s.uow.Transactional(ctx, func(ctx context.Context) error {
		return s.transactions.AddTransaction(ctx, tx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "persist %s transaction", code)
	}

	s.logCreated(tx)

	return tx, nil
}

func (s *Ledger) persistAndEnqueue(ctx context.Context, tx *domain.Transaction) error {
	if err := s.transactions.AddTransaction(ctx, tx); err != nil {
		return errors.Wrap(err, "persist transaction")
	}
	if err := s.queue.Add(ctx, tx.Event); err != nil {
		return errors.Wrapf(err, "enqueue event %s for reporting", tx.Event.ID)
	}
	return nil
}

func (s *Ledger) logCreated(tx *domain.Transaction) {
	fields := []zap.Field{
		zap.String("id", tx.ID),
		zap.String("event_id", tx.Event.ID),
		zap.String("amount", tx.Amount.String()),
		zap.String("fee", tx.Fee.String()),
		zap.String("real_amount", tx.RealAmount.String()),
	}
	if code := tx.TypeCode(); code != "" {
		fields = append(fields, zap.String("type", string(code)))
	} else {
		fields = append(fields, zap.String("event_kind", string(tx.Event.Kind)))
	}

	s.l.Info("transaction created", fields...)
}
