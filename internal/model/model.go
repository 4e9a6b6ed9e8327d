// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// LoanState tells whether a book sits on the shelf or is out with a borrower.
type LoanState string

const (
	// Available means the book can be loaned out.
	Available LoanState = "available"
	// Loaned means exactly one active loan references the book.
	Loaned LoanState = "loaned"
)

// Tokens collects issued session tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User is a library member. The credential hash never leaves the server.
type User struct {
	ID        uuid.UUID // PK
	Name      string    // unique
	Email     string    // unique
	PwdHash   []byte    // Argon2id(password, SaltAuth)
	SaltAuth  []byte    // per-user auth salt
	CreatedAt time.Time
}

// Book is a catalog entry. RegisteredBy is the owner and holds edit/delete
// rights; BorrowerID is whoever currently holds the book, set iff State==Loaned.
// The owner and the borrower are independent roles.
type Book struct {
	ID           uuid.UUID
	Title        string
	Author       string
	ISBN         string // optional; unique when non-empty
	Description  string
	RegisteredBy uuid.UUID
	State        LoanState
	BorrowerID   uuid.UUID // uuid.Nil unless State==Loaned
	CreatedAt    time.Time
}

// BookPatch carries a partial catalog update. Nil fields are left untouched.
// Loan state and ownership are never patchable.
type BookPatch struct {
	Title       *string
	Author      *string
	ISBN        *string
	Description *string
}

// BookView is the detail read model: the book plus, while loaned, the active
// loan's due date resolved by a join (the due date is never stored twice).
type BookView struct {
	Book
	DueDate *time.Time // non-nil iff State==Loaned
}

// Loan is one borrow/return cycle. ReturnDate==nil marks the loan active.
type Loan struct {
	ID         uuid.UUID
	BookID     uuid.UUID
	UserID     uuid.UUID
	LoanDate   time.Time
	DueDate    time.Time // LoanDate + loan period, exactly
	ReturnDate *time.Time
}

// Active reports whether the loan has not been returned yet.
func (l Loan) Active() bool { return l.ReturnDate == nil }
