package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/avoronin/liblend/internal/model"
)

// BookRepository provides access to catalog entries.
//
// Delete is transactional: it locks the book row, refuses while the book is
// on loan, removes the book's loan history, then the book itself.
type BookRepository interface {
	// Create inserts a new book. Returns errs.ErrConflict on ISBN collision.
	Create(ctx context.Context, b *model.Book) error
	// GetByID loads a book by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Book, error)
	// GetView loads a book and, while loaned, joins the active loan's due date.
	GetView(ctx context.Context, id uuid.UUID) (*model.BookView, error)
	// List returns all books ordered by title ascending.
	List(ctx context.Context) ([]model.Book, error)
	// Update persists title/author/isbn/description of an existing book.
	// Loan state and ownership columns are never written here.
	Update(ctx context.Context, b *model.Book) error
	// Delete removes a book and its loan history in one transaction.
	// Returns errs.ErrNotFound, errs.ErrForbidden when callerID is not the
	// registrant, and errs.ErrConflict while the book is on loan.
	Delete(ctx context.Context, callerID, bookID uuid.UUID) error
}
