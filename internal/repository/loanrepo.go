package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/avoronin/liblend/internal/model"
)

// LoanRepository owns the book/loan state machine. Loan and Return execute
// as single transactions serialized on the book row (SELECT ... FOR UPDATE),
// so concurrent check-then-act sequences cannot both win.
type LoanRepository interface {
	// Loan locks the book row, verifies it is available and that the user is
	// under the active-loan cap, then flips the book to loaned and inserts
	// the loan — all in one transaction.
	// Returns errs.ErrNotFound when the book does not exist and
	// errs.ErrConflict when it is already loaned or the cap is reached.
	Loan(ctx context.Context, bookID, userID uuid.UUID, loanDate, dueDate time.Time) (*model.Loan, error)

	// Return locks the book row, finds the active loan, verifies the caller
	// is the borrower, then stamps return_date and flips the book back to
	// available — all in one transaction.
	// Returns errs.ErrNotFound when the book or active loan is missing and
	// errs.ErrForbidden when the caller did not borrow the book.
	Return(ctx context.Context, bookID, userID uuid.UUID, returnDate time.Time) (*model.Loan, error)

	// ListByUser returns the user's loans, past and active, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Loan, error)
}
