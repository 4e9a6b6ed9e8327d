// Package httpapi exposes the lending tracker's HTTP/JSON API.
package httpapi

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/avoronin/liblend/internal/errs"
	"github.com/avoronin/liblend/internal/model"
	"github.com/avoronin/liblend/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	catalog service.CatalogService
	lending service.LendingService
	signKey []byte
	log     *zap.Logger
}

// New constructs the HTTP server with injected services.
func New(auth service.AuthService, catalog service.CatalogService, lending service.LendingService, signKey []byte, log *zap.Logger) *Server {
	return &Server{auth: auth, catalog: catalog, lending: lending, signKey: signKey, log: log}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log))
	r.Use(Logging(s.log))
	r.Use(s.Authenticate)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Get("/users", s.handleListUsers)
		r.Get("/books", s.handleListBooks)
		r.Get("/books/{id}", s.handleGetBook)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)
			r.Post("/logout", s.handleLogout)
			r.Post("/books", s.handleAddBook)
			r.Patch("/books/{id}", s.handleUpdateBook)
			r.Delete("/books/{id}", s.handleDeleteBook)
			r.Post("/loan", s.handleLoan)
			r.Post("/return/{bookID}", s.handleReturn)
			r.Get("/loans", s.handleListLoans)
		})
	})

	return r
}

// --- Membership ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	// Registration doubles as login for the new member.
	tok, err := s.auth.IssueToken(u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	setSessionCookie(w, tok)
	writeJSON(w, http.StatusCreated, toUserJSON(*u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tok, u, err := s.auth.LoginWithIP(r.Context(), req.Email, req.Password, remoteIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	setSessionCookie(w, tok)
	writeJSON(w, http.StatusOK, struct {
		userJSON
		AccessToken string `json:"access_token"`
	}{toUserJSON(*u), tok.AccessToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]userJSON, 0, len(users))
	for _, u := range users {
		out = append(out, toUserJSON(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Catalog ---

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.catalog.ListBooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]bookJSON, 0, len(books))
	for _, b := range books {
		out = append(out, toBookJSON(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.catalog.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookViewJSON(*v))
}

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	callerID, _ := UserIDFromCtx(r.Context())
	var req struct {
		Title       string `json:"title"`
		Author      string `json:"author"`
		ISBN        string `json:"isbn"`
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.catalog.AddBook(r.Context(), callerID, req.Title, req.Author, req.ISBN, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookJSON(*b))
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	callerID, _ := UserIDFromCtx(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Title       *string `json:"title"`
		Author      *string `json:"author"`
		ISBN        *string `json:"isbn"`
		Description *string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	patch := model.BookPatch{Title: req.Title, Author: req.Author, ISBN: req.ISBN, Description: req.Description}
	b, err := s.catalog.UpdateBook(r.Context(), callerID, id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookJSON(*b))
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	callerID, _ := UserIDFromCtx(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.catalog.DeleteBook(r.Context(), callerID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Lending ---

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	callerID, _ := UserIDFromCtx(r.Context())
	var req struct {
		BookID string `json:"book_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	bookID, err := uuid.FromString(req.BookID)
	if err != nil {
		writeError(w, errs.ErrValidation)
		return
	}
	l, err := s.lending.Loan(r.Context(), bookID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.enrichLoan(r, *l))
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	callerID, _ := UserIDFromCtx(r.Context())
	bookID, err := pathID(r, "bookID")
	if err != nil {
		writeError(w, err)
		return
	}
	l, err := s.lending.Return(r.Context(), bookID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.enrichLoan(r, *l))
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	callerID, _ := UserIDFromCtx(r.Context())
	loans, err := s.lending.ListLoans(r.Context(), callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]loanJSON, 0, len(loans))
	for _, l := range loans {
		out = append(out, s.enrichLoan(r, l))
	}
	writeJSON(w, http.StatusOK, out)
}

// enrichLoan resolves the loan's book title and member name with explicit
// secondary lookups. Either may be gone (book deleted since); the loan
// payload then simply omits the field.
func (s *Server) enrichLoan(r *http.Request, l model.Loan) loanJSON {
	var title, name string
	if v, err := s.catalog.GetBook(r.Context(), l.BookID); err == nil {
		title = v.Title
	}
	if u, err := s.auth.GetUser(r.Context(), l.UserID); err == nil {
		name = u.Name
	}
	return toLoanJSON(l, title, name)
}

// --- helpers ---

func pathID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, errors.Join(errs.ErrNotFound, err)
	}
	return id, nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setSessionCookie(w http.ResponseWriter, tok model.Tokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    tok.AccessToken,
		Path:     "/",
		Expires:  tok.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Timeouts for the outer http.Server; exported so cmd/server and tests agree.
const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 30 * time.Second
)
