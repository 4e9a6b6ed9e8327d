package httpapi

import (
	"time"

	"github.com/avoronin/liblend/internal/model"
)

// Wire shapes. The credential hash and salt are never serialized.

type userJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type bookJSON struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	ISBN         string `json:"isbn,omitempty"`
	Description  string `json:"description,omitempty"`
	RegisteredBy string `json:"registered_by"`
	IsLoaned     bool   `json:"is_loaned"`
	BorrowerID   string `json:"borrower_id,omitempty"`
}

type bookViewJSON struct {
	bookJSON
	DueDate *time.Time `json:"due_date,omitempty"`
}

type loanJSON struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	UserID     string     `json:"user_id"`
	LoanDate   time.Time  `json:"loan_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	BookTitle  string     `json:"book_title,omitempty"`
	UserName   string     `json:"user_name,omitempty"`
}

func toUserJSON(u model.User) userJSON {
	return userJSON{ID: u.ID.String(), Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func toBookJSON(b model.Book) bookJSON {
	out := bookJSON{
		ID:           b.ID.String(),
		Title:        b.Title,
		Author:       b.Author,
		ISBN:         b.ISBN,
		Description:  b.Description,
		RegisteredBy: b.RegisteredBy.String(),
		IsLoaned:     b.State == model.Loaned,
	}
	if out.IsLoaned {
		out.BorrowerID = b.BorrowerID.String()
	}
	return out
}

func toBookViewJSON(v model.BookView) bookViewJSON {
	return bookViewJSON{bookJSON: toBookJSON(v.Book), DueDate: v.DueDate}
}

// toLoanJSON converts a loan; bookTitle and userName come from explicit
// lookups by the handler, never from entity traversal.
func toLoanJSON(l model.Loan, bookTitle, userName string) loanJSON {
	return loanJSON{
		ID:         l.ID.String(),
		BookID:     l.BookID.String(),
		UserID:     l.UserID.String(),
		LoanDate:   l.LoanDate,
		DueDate:    l.DueDate,
		ReturnDate: l.ReturnDate,
		BookTitle:  bookTitle,
		UserName:   userName,
	}
}
