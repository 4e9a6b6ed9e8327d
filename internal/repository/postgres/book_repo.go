package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/avoronin/liblend/internal/errs"
	"github.com/avoronin/liblend/internal/model"
)

// BookRepo implements BookRepository using PostgreSQL.
type BookRepo struct{ db *DB }

// NewBookRepo constructs a book repository.
func NewBookRepo(db *DB) *BookRepo { return &BookRepo{db: db} }

const bookColumns = `id, title, author, COALESCE(isbn,''), COALESCE(description,''), registered_by, loaned, borrower_id, created_at`

// Create inserts a new book row. An empty ISBN is stored as NULL so the
// unique constraint only applies to real ISBNs.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	const q = `
INSERT INTO books (id, title, author, isbn, description, registered_by, loaned)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, false)`
	_, err := r.db.Pool.Exec(ctx, q, b.ID, b.Title, b.Author, b.ISBN, b.Description, b.RegisteredBy)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

// GetByID selects a book by ID.
func (r *BookRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books WHERE id=$1`
	b, err := scanBook(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetView selects a book joined with its active loan's due date, if any.
func (r *BookRepo) GetView(ctx context.Context, id uuid.UUID) (*model.BookView, error) {
	const q = `
SELECT b.id, b.title, b.author, COALESCE(b.isbn,''), COALESCE(b.description,''),
       b.registered_by, b.loaned, b.borrower_id, b.created_at, l.due_date
FROM books b
LEFT JOIN loans l ON l.book_id = b.id AND l.return_date IS NULL
WHERE b.id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)

	var (
		v        model.BookView
		borrower *uuid.UUID
		loaned   bool
		due      *time.Time
	)
	err := row.Scan(&v.ID, &v.Title, &v.Author, &v.ISBN, &v.Description,
		&v.RegisteredBy, &loaned, &borrower, &v.CreatedAt, &due)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	v.State = loanState(loaned)
	if borrower != nil {
		v.BorrowerID = *borrower
	}
	v.DueDate = due
	return &v, nil
}

// List returns all books ordered by title ascending.
func (r *BookRepo) List(ctx context.Context) ([]model.Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books ORDER BY title ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Update persists catalog fields of an existing book. Loan state and
// ownership columns are intentionally not in the statement.
func (r *BookRepo) Update(ctx context.Context, b *model.Book) error {
	const q = `
UPDATE books
SET title=$2, author=$3, isbn=NULLIF($4,''), description=NULLIF($5,'')
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, b.ID, b.Title, b.Author, b.ISBN, b.Description)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a book and its loan history in one transaction. The row
// lock keeps a concurrent loan from slipping in between the guard check
// and the delete.
func (r *BookRepo) Delete(ctx context.Context, callerID, bookID uuid.UUID) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT registered_by, loaned FROM books WHERE id=$1 FOR UPDATE`
	var (
		owner  uuid.UUID
		loaned bool
	)
	if err = tx.QueryRow(ctx, sel, bookID).Scan(&owner, &loaned); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	if owner != callerID {
		return errs.ErrForbidden
	}
	if loaned {
		return errs.ErrConflict
	}

	// Two explicit deletes: loan history first, then the book itself.
	if _, err = tx.Exec(ctx, `DELETE FROM loans WHERE book_id=$1`, bookID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM books WHERE id=$1`, bookID); err != nil {
		return err
	}
	return nil
}

func loanState(loaned bool) model.LoanState {
	if loaned {
		return model.Loaned
	}
	return model.Available
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var (
		b        model.Book
		borrower *uuid.UUID
		loaned   bool
	)
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description,
		&b.RegisteredBy, &loaned, &borrower, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	b.State = loanState(loaned)
	if borrower != nil {
		b.BorrowerID = *borrower
	}
	return &b, nil
}
