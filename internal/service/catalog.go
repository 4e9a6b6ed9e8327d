package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/avoronin/liblend/internal/errs"
	"github.com/avoronin/liblend/internal/model"
	"github.com/avoronin/liblend/internal/repository"
)

// CatalogService defines catalog operations. Edit and delete are gated on
// ownership: only the registrant may change or remove an entry.
type CatalogService interface {
	// AddBook registers a new catalog entry owned by ownerID.
	AddBook(ctx context.Context, ownerID uuid.UUID, title, author, isbn, description string) (*model.Book, error)
	// UpdateBook applies a partial update to an entry owned by callerID.
	UpdateBook(ctx context.Context, callerID, bookID uuid.UUID, patch model.BookPatch) (*model.Book, error)
	// DeleteBook removes an entry owned by callerID along with its loan history.
	DeleteBook(ctx context.Context, callerID, bookID uuid.UUID) error
	// GetBook returns book details with the active loan's due date while loaned.
	GetBook(ctx context.Context, bookID uuid.UUID) (*model.BookView, error)
	// ListBooks returns the whole catalog ordered by title.
	ListBooks(ctx context.Context) ([]model.Book, error)
}

type CatalogServiceImpl struct {
	books repository.BookRepository
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(books repository.BookRepository) *CatalogServiceImpl {
	return &CatalogServiceImpl{books: books}
}

// AddBook validates input and persists a new available book.
func (s *CatalogServiceImpl) AddBook(
	ctx context.Context, ownerID uuid.UUID, title, author, isbn, description string,
) (*model.Book, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" {
		return nil, fmt.Errorf("empty title/author: %w", errs.ErrValidation)
	}
	if ownerID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	b := &model.Book{
		ID:           id,
		Title:        title,
		Author:       author,
		ISBN:         strings.TrimSpace(isbn),
		Description:  description,
		RegisteredBy: ownerID,
		State:        model.Available,
	}
	if err := s.books.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBook applies the provided fields to the caller's own entry.
// Required fields may not be blanked out by a partial update.
func (s *CatalogServiceImpl) UpdateBook(
	ctx context.Context, callerID, bookID uuid.UUID, patch model.BookPatch,
) (*model.Book, error) {
	b, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b.RegisteredBy != callerID {
		return nil, errs.ErrForbidden
	}

	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return nil, fmt.Errorf("title cannot be blank: %w", errs.ErrValidation)
		}
		b.Title = t
	}
	if patch.Author != nil {
		a := strings.TrimSpace(*patch.Author)
		if a == "" {
			return nil, fmt.Errorf("author cannot be blank: %w", errs.ErrValidation)
		}
		b.Author = a
	}
	if patch.ISBN != nil {
		b.ISBN = strings.TrimSpace(*patch.ISBN)
	}
	if patch.Description != nil {
		b.Description = *patch.Description
	}

	if err := s.books.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBook removes the caller's own entry; refused while the book is loaned.
// Ownership and loan-state checks run inside the repository transaction so a
// concurrent loan cannot race the delete.
func (s *CatalogServiceImpl) DeleteBook(ctx context.Context, callerID, bookID uuid.UUID) error {
	if callerID == uuid.Nil {
		return errs.ErrUnauthorized
	}
	return s.books.Delete(ctx, callerID, bookID)
}

// GetBook returns the detail view of one book.
func (s *CatalogServiceImpl) GetBook(ctx context.Context, bookID uuid.UUID) (*model.BookView, error) {
	return s.books.GetView(ctx, bookID)
}

// ListBooks returns the catalog ordered by title ascending.
func (s *CatalogServiceImpl) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.books.List(ctx)
}
