package ledger

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vadiminshakov/tally/internal/domain"
)

type transactionRepositoryMock struct {
	mock.Mock
}

func (m *transactionRepositoryMock) AddTransaction(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

type typeRepositoryMock struct {
	mock.Mock
}

func (m *typeRepositoryMock) FindTypeByCode(ctx context.Context, code domain.TypeCode) (*domain.TransactionType, error) {
	args := m.Called(ctx, code)
	tt, _ := args.Get(0).(*domain.TransactionType)
	return tt, args.Error(1)
}

type eventServiceMock struct {
	mock.Mock
}

func (m *eventServiceMock) CreatePayInEvent(ctx context.Context, user domain.User, date time.Time) (domain.Event, error) {
	args := m.Called(ctx, user, date)
	return args.Get(0).(domain.Event), args.Error(1)
}

func (m *eventServiceMock) CreatePayOutEvent(ctx context.Context, user domain.User, date time.Time) (domain.Event, error) {
	args := m.Called(ctx, user, date)
	return args.Get(0).(domain.Event), args.Error(1)
}

type reportQueueMock struct {
	mock.Mock
}

func (m *reportQueueMock) Add(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// recordingUnitOfWork runs fn directly and remembers whether it was rolled back.
type recordingUnitOfWork struct {
	calls      int
	rolledBack int
}

func (u *recordingUnitOfWork) Transactional(ctx context.Context, fn func(ctx context.Context) error) error {
	u.calls++
	if err := fn(ctx); err != nil {
		u.rolledBack++
		return err
	}
	return nil
}
