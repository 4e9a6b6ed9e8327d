package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/avoronin/liblend/internal/clock"
	"github.com/avoronin/liblend/internal/errs"
	"github.com/avoronin/liblend/internal/model"
	"github.com/avoronin/liblend/internal/repository"
)

// LoanPeriod is how long a borrower may keep a book. The due date is always
// loan date plus exactly this much.
const LoanPeriod = 14 * 24 * time.Hour

// MaxActiveLoans is the per-user cap on simultaneous active loans.
const MaxActiveLoans = 3

// LendingService drives the book loan state machine:
// available --loan--> loaned --return--> available, and nothing else.
type LendingService interface {
	// Loan lends an available book to the user.
	Loan(ctx context.Context, bookID, userID uuid.UUID) (*model.Loan, error)
	// Return ends the user's active loan of the book.
	Return(ctx context.Context, bookID, userID uuid.UUID) (*model.Loan, error)
	// ListLoans returns the user's loans, newest first.
	ListLoans(ctx context.Context, userID uuid.UUID) ([]model.Loan, error)
}

type LendingServiceImpl struct {
	loans repository.LoanRepository
	clk   clock.Clock
}

// NewLendingService constructs LendingService on the given time source.
func NewLendingService(loans repository.LoanRepository, clk clock.Clock) *LendingServiceImpl {
	if clk == nil {
		clk = clock.System{}
	}
	return &LendingServiceImpl{loans: loans, clk: clk}
}

// Loan computes the loan window and delegates the transactional transition
// to the repository. Availability and the borrow cap are re-checked there,
// under the book row lock; no loan state is ever cached in-process.
func (s *LendingServiceImpl) Loan(ctx context.Context, bookID, userID uuid.UUID) (*model.Loan, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	if bookID == uuid.Nil {
		return nil, errs.ErrNotFound
	}
	now := s.clk.Now()
	return s.loans.Loan(ctx, bookID, userID, now, now.Add(LoanPeriod))
}

// Return stamps the active loan with the current time.
func (s *LendingServiceImpl) Return(ctx context.Context, bookID, userID uuid.UUID) (*model.Loan, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	if bookID == uuid.Nil {
		return nil, errs.ErrNotFound
	}
	return s.loans.Return(ctx, bookID, userID, s.clk.Now())
}

// ListLoans returns the user's past and active loans, newest first.
func (s *LendingServiceImpl) ListLoans(ctx context.Context, userID uuid.UUID) ([]model.Loan, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	return s.loans.ListByUser(ctx, userID)
}
