package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/avoronin/liblend/internal/errs"
	"github.com/avoronin/liblend/internal/model"
)

// LoanRepo implements LoanRepository using PostgreSQL. Loan and Return take
// a FOR UPDATE lock on the book row before reading any loan state, so two
// concurrent requests for the same book are ordered and exactly one of a
// pair of conflicting ones wins. Loan additionally locks the borrower's user
// row so the active-loan count stays serialized across different books.
type LoanRepo struct {
	db        *DB
	maxActive int
}

// NewLoanRepo constructs a loan repository enforcing the given per-user
// active-loan cap.
func NewLoanRepo(db *DB, maxActive int) *LoanRepo {
	if maxActive <= 0 {
		maxActive = 3
	}
	return &LoanRepo{db: db, maxActive: maxActive}
}

// Loan flips an available book to loaned and records the loan, atomically.
func (r *LoanRepo) Loan(
	ctx context.Context, bookID, userID uuid.UUID, loanDate, dueDate time.Time,
) (loan *model.Loan, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			// The partial unique index on active loans backstops the row
			// lock; a violation at commit means a concurrent loan won.
			if isUniqueViolation(e) || isSerializationFailure(e) {
				e = errs.ErrConflict
			}
			err = e
			loan = nil
		}
	}()

	const selBook = `SELECT loaned FROM books WHERE id=$1 FOR UPDATE`
	var loaned bool
	if err = tx.QueryRow(ctx, selBook, bookID).Scan(&loaned); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if loaned {
		return nil, fmt.Errorf("book already loaned: %w", errs.ErrConflict)
	}

	// The borrower's user row is the serialization point for the per-user
	// cap: two loans by the same user on different books share no book row,
	// so without this lock both could count the same active total and push
	// the user over the limit. Lock order is always book then user.
	const selUser = `SELECT id FROM users WHERE id=$1 FOR UPDATE`
	var uid uuid.UUID
	if err = tx.QueryRow(ctx, selUser, userID).Scan(&uid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	// Cap check happens after both locks, inside the same transaction,
	// so the user can never transiently exceed the limit.
	const cnt = `SELECT COUNT(*) FROM loans WHERE user_id=$1 AND return_date IS NULL`
	var active int
	if err = tx.QueryRow(ctx, cnt, userID).Scan(&active); err != nil {
		return nil, err
	}
	if active >= r.maxActive {
		return nil, fmt.Errorf("borrow limit reached: %w", errs.ErrConflict)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	const updBook = `UPDATE books SET loaned=true, borrower_id=$2 WHERE id=$1`
	if _, err = tx.Exec(ctx, updBook, bookID, userID); err != nil {
		return nil, err
	}
	const ins = `
INSERT INTO loans (id, book_id, user_id, loan_date, due_date)
VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.Exec(ctx, ins, id, bookID, userID, loanDate, dueDate); err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ErrConflict
		}
		return nil, err
	}

	return &model.Loan{
		ID:       id,
		BookID:   bookID,
		UserID:   userID,
		LoanDate: loanDate,
		DueDate:  dueDate,
	}, nil
}

// Return stamps the active loan and flips the book back, atomically.
func (r *LoanRepo) Return(
	ctx context.Context, bookID, userID uuid.UUID, returnDate time.Time,
) (loan *model.Loan, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			if isSerializationFailure(e) {
				e = errs.ErrConflict
			}
			err = e
			loan = nil
		}
	}()

	const selBook = `SELECT loaned FROM books WHERE id=$1 FOR UPDATE`
	var loaned bool
	if err = tx.QueryRow(ctx, selBook, bookID).Scan(&loaned); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	const selLoan = `
SELECT id, user_id, loan_date, due_date
FROM loans WHERE book_id=$1 AND return_date IS NULL`
	var l model.Loan
	l.BookID = bookID
	if err = tx.QueryRow(ctx, selLoan, bookID).Scan(&l.ID, &l.UserID, &l.LoanDate, &l.DueDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no active loan: %w", errs.ErrNotFound)
		}
		return nil, err
	}
	// Only the borrower may return; the catalog owner has no say here.
	if l.UserID != userID {
		return nil, errs.ErrForbidden
	}

	const updLoan = `UPDATE loans SET return_date=$2 WHERE id=$1`
	if _, err = tx.Exec(ctx, updLoan, l.ID, returnDate); err != nil {
		return nil, err
	}
	const updBook = `UPDATE books SET loaned=false, borrower_id=NULL WHERE id=$1`
	if _, err = tx.Exec(ctx, updBook, bookID); err != nil {
		return nil, err
	}

	l.ReturnDate = &returnDate
	return &l, nil
}

// ListByUser returns the user's loans ordered by loan date descending.
func (r *LoanRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Loan, error) {
	const q = `
SELECT id, book_id, user_id, loan_date, due_date, return_date
FROM loans
WHERE user_id=$1
ORDER BY loan_date DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Loan
	for rows.Next() {
		var l model.Loan
		if err = rows.Scan(&l.ID, &l.BookID, &l.UserID, &l.LoanDate, &l.DueDate, &l.ReturnDate); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
