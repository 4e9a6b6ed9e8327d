package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avoronin/liblend/internal/clock"
	"github.com/avoronin/liblend/internal/errs"
	"github.com/avoronin/liblend/internal/model"
	"github.com/avoronin/liblend/internal/repository"
	"github.com/avoronin/liblend/internal/service"
)

// In-memory repositories backing a full server instance. A single mutex per
// store stands in for the database's row locks.

type memUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.User
}

var _ repository.UserRepository = (*memUsers)(nil)

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.byID {
		if other.Name == u.Name || other.Email == u.Email {
			return errs.ErrConflict
		}
	}
	cpy := *u
	cpy.CreatedAt = time.Now()
	m.byID[u.ID] = &cpy
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memUsers) List(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memStore struct {
	mu    sync.Mutex
	books map[uuid.UUID]*model.Book
	loans []*model.Loan
}

var (
	_ repository.BookRepository = (*memStore)(nil)
	_ repository.LoanRepository = (*memStore)(nil)
)

func (m *memStore) Create(_ context.Context, b *model.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ISBN != "" {
		for _, other := range m.books {
			if other.ISBN == b.ISBN {
				return errs.ErrConflict
			}
		}
	}
	cpy := *b
	m.books[b.ID] = &cpy
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (m *memStore) GetView(_ context.Context, id uuid.UUID) (*model.BookView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	v := model.BookView{Book: *b}
	for _, l := range m.loans {
		if l.BookID == id && l.ReturnDate == nil {
			due := l.DueDate
			v.DueDate = &due
		}
	}
	return &v, nil
}

func (m *memStore) List(_ context.Context) ([]model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Book
	for _, b := range m.books {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *memStore) Update(_ context.Context, b *model.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.books[b.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Title, cur.Author, cur.ISBN, cur.Description = b.Title, b.Author, b.ISBN, b.Description
	return nil
}

func (m *memStore) Delete(_ context.Context, callerID, bookID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return errs.ErrNotFound
	}
	if b.RegisteredBy != callerID {
		return errs.ErrForbidden
	}
	if b.State == model.Loaned {
		return errs.ErrConflict
	}
	var kept []*model.Loan
	for _, l := range m.loans {
		if l.BookID != bookID {
			kept = append(kept, l)
		}
	}
	m.loans = kept
	delete(m.books, bookID)
	return nil
}

func (m *memStore) Loan(_ context.Context, bookID, userID uuid.UUID, loanDate, dueDate time.Time) (*model.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if b.State == model.Loaned {
		return nil, fmt.Errorf("book already loaned: %w", errs.ErrConflict)
	}
	active := 0
	for _, l := range m.loans {
		if l.UserID == userID && l.ReturnDate == nil {
			active++
		}
	}
	if active >= service.MaxActiveLoans {
		return nil, fmt.Errorf("borrow limit reached: %w", errs.ErrConflict)
	}
	b.State = model.Loaned
	b.BorrowerID = userID
	l := &model.Loan{ID: uuid.Must(uuid.NewV4()), BookID: bookID, UserID: userID, LoanDate: loanDate, DueDate: dueDate}
	m.loans = append(m.loans, l)
	cpy := *l
	return &cpy, nil
}

func (m *memStore) Return(_ context.Context, bookID, userID uuid.UUID, returnDate time.Time) (*model.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[bookID]; !ok {
		return nil, errs.ErrNotFound
	}
	for _, l := range m.loans {
		if l.BookID == bookID && l.ReturnDate == nil {
			if l.UserID != userID {
				return nil, errs.ErrForbidden
			}
			rd := returnDate
			l.ReturnDate = &rd
			b := m.books[bookID]
			b.State = model.Available
			b.BorrowerID = uuid.Nil
			cpy := *l
			return &cpy, nil
		}
	}
	return nil, fmt.Errorf("no active loan: %w", errs.ErrNotFound)
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Loan
	for i := len(m.loans) - 1; i >= 0; i-- {
		if m.loans[i].UserID == userID {
			out = append(out, *m.loans[i])
		}
	}
	return out, nil
}

type noLimit struct{}

func (noLimit) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}
func (noLimit) Success(context.Context, string, []byte) error { return nil }
func (noLimit) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}

const testSignKey = "httpapi-test-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	users := &memUsers{byID: map[uuid.UUID]*model.User{}}
	store := &memStore{books: map[uuid.UUID]*model.Book{}}

	authSvc := service.NewAuthService(users, []byte(testSignKey), time.Hour, noLimit{})
	catalogSvc := service.NewCatalogService(store)
	lendingSvc := service.NewLendingService(store, clock.System{})

	srv := New(authSvc, catalogSvc, lendingSvc, []byte(testSignKey), zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func registerAndLogin(t *testing.T, ts *httptest.Server, name, email string) string {
	t.Helper()
	resp, _ := doJSON(t, "POST", ts.URL+"/api/register", "",
		fmt.Sprintf(`{"name":%q,"email":%q,"password":"pw"}`, name, email))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, "POST", ts.URL+"/api/login", "",
		fmt.Sprintf(`{"email":%q,"password":"pw"}`, email))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok, _ := body["access_token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func TestHTTP_Register_SetsSessionAndHidesCredential(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, "POST", ts.URL+"/api/register", "",
		`{"name":"alice","email":"a@x.com","password":"pw"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "alice", body["name"])
	_, hasPwd := body["password"]
	require.False(t, hasPwd)

	var sessionSet bool
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie && c.Value != "" {
			sessionSet = true
			require.True(t, c.HttpOnly)
		}
	}
	require.True(t, sessionSet, "register must establish a session")

	// Same name again: conflict.
	resp, _ = doJSON(t, "POST", ts.URL+"/api/register", "",
		`{"name":"alice","email":"b@x.com","password":"pw"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing fields: validation.
	resp, _ = doJSON(t, "POST", ts.URL+"/api/register", "", `{"name":"x"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Login_BadCredentials(t *testing.T) {
	ts := newTestServer(t)
	_ = registerAndLogin(t, ts, "alice", "a@x.com")

	resp, _ := doJSON(t, "POST", ts.URL+"/api/login", "", `{"email":"a@x.com","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_AuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, "POST", ts.URL+"/api/books", "", `{"title":"Dune","author":"Herbert"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, "GET", ts.URL+"/api/loans", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Public reads stay open.
	resp, _ = doJSON(t, "GET", ts.URL+"/api/books", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_LoanLifecycle(t *testing.T) {
	ts := newTestServer(t)
	aliceTok := registerAndLogin(t, ts, "alice", "a@x.com")
	bobTok := registerAndLogin(t, ts, "bob", "b@x.com")

	// alice registers Dune.
	resp, book := doJSON(t, "POST", ts.URL+"/api/books", aliceTok, `{"title":"Dune","author":"Herbert"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, false, book["is_loaned"])
	bookID := book["id"].(string)

	// alice borrows it.
	resp, loan := doJSON(t, "POST", ts.URL+"/api/loan", aliceTok, fmt.Sprintf(`{"book_id":%q}`, bookID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "Dune", loan["book_title"])
	require.Equal(t, "alice", loan["user_name"])
	require.NotEmpty(t, loan["due_date"])

	// bob cannot borrow it now.
	resp, _ = doJSON(t, "POST", ts.URL+"/api/loan", bobTok, fmt.Sprintf(`{"book_id":%q}`, bookID))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Book details carry the due date while loaned.
	resp, view := doJSON(t, "GET", ts.URL+"/api/books/"+bookID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, view["is_loaned"])
	require.NotEmpty(t, view["due_date"])

	// Owner status does not grant return rights: bob holds nothing,
	// and bob is not the borrower.
	resp, _ = doJSON(t, "POST", ts.URL+"/api/return/"+bookID, bobTok, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// alice returns it.
	resp, ret := doJSON(t, "POST", ts.URL+"/api/return/"+bookID, aliceTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, ret["return_date"])

	resp, view = doJSON(t, "GET", ts.URL+"/api/books/"+bookID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, view["is_loaned"])
	_, hasDue := view["due_date"]
	require.False(t, hasDue)
}

func TestHTTP_OwnershipOnCatalog(t *testing.T) {
	ts := newTestServer(t)
	aliceTok := registerAndLogin(t, ts, "alice", "a@x.com")
	bobTok := registerAndLogin(t, ts, "bob", "b@x.com")

	resp, book := doJSON(t, "POST", ts.URL+"/api/books", aliceTok, `{"title":"Dune","author":"Herbert"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bookID := book["id"].(string)

	resp, _ = doJSON(t, "PATCH", ts.URL+"/api/books/"+bookID, bobTok, `{"title":"Mine"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, "DELETE", ts.URL+"/api/books/"+bookID, bobTok, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, updated := doJSON(t, "PATCH", ts.URL+"/api/books/"+bookID, aliceTok, `{"description":"sand"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "sand", updated["description"])
	require.Equal(t, "Dune", updated["title"])

	// Blanking a required field is rejected.
	resp, _ = doJSON(t, "PATCH", ts.URL+"/api/books/"+bookID, aliceTok, `{"title":""}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, "DELETE", ts.URL+"/api/books/"+bookID, aliceTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, "GET", ts.URL+"/api/books/"+bookID, "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_BadBookID_NotFound(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, "GET", ts.URL+"/api/books/not-a-uuid", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_Logout_ClearsCookie(t *testing.T) {
	ts := newTestServer(t)
	tok := registerAndLogin(t, ts, "alice", "a@x.com")

	resp, _ := doJSON(t, "POST", ts.URL+"/api/logout", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cleared bool
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared, "logout must clear the session cookie")
}

func TestHTTP_ListLoans_OwnOnly(t *testing.T) {
	ts := newTestServer(t)
	aliceTok := registerAndLogin(t, ts, "alice", "a@x.com")
	bobTok := registerAndLogin(t, ts, "bob", "b@x.com")

	_, b1 := doJSON(t, "POST", ts.URL+"/api/books", aliceTok, `{"title":"Dune","author":"Herbert"}`)
	_, b2 := doJSON(t, "POST", ts.URL+"/api/books", aliceTok, `{"title":"Solaris","author":"Lem"}`)

	doJSON(t, "POST", ts.URL+"/api/loan", aliceTok, fmt.Sprintf(`{"book_id":%q}`, b1["id"]))
	doJSON(t, "POST", ts.URL+"/api/loan", bobTok, fmt.Sprintf(`{"book_id":%q}`, b2["id"]))

	req, err := http.NewRequest("GET", ts.URL+"/api/loans", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceTok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loans []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loans))
	require.Len(t, loans, 1)
	require.Equal(t, "Dune", loans[0]["book_title"])
	require.Equal(t, "alice", loans[0]["user_name"])
}
