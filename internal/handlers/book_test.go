package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bookhive/apiserver/internal/auth"
	"github.com/bookhive/apiserver/internal/services"
	"github.com/bookhive/apiserver/internal/store"
	"github.com/bookhive/apiserver/types"
	"github.com/go-chi/chi/v5"
)

type memBookRepo struct {
	books  map[int]types.Book
	nextID int
}

func newMemBookRepo() *memBookRepo {
	return &memBookRepo{books: map[int]types.Book{}, nextID: 1}
}

func (m *memBookRepo) List(ctx context.Context, offset, limit int) ([]types.Book, int, error) {
	items := make([]types.Book, 0, len(m.books))
	for _, book := range m.books {
		items = append(items, book)
	}
	return items, len(m.books), nil
}

func (m *memBookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (m *memBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	for _, existing := range m.books {
		if existing.ISBN == book.ISBN {
			return types.Book{}, store.ErrDuplicateISBN
		}
	}
	book.ID = m.nextID
	m.nextID++
	m.books[book.ID] = book
	return book, nil
}

func (m *memBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	if _, ok := m.books[book.ID]; !ok {
		return types.Book{}, store.ErrNotFound
	}
	m.books[book.ID] = book
	return book, nil
}

func (m *memBookRepo) SetCoverKey(ctx context.Context, id int, key string) error {
	book, ok := m.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.CoverKey = key
	m.books[id] = book
	return nil
}

func (m *memBookRepo) Delete(ctx context.Context, id int) error {
	if _, ok := m.books[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.books, id)
	return nil
}

func newBookTestRouter(t *testing.T) (*chi.Mux, *auth.Issuer) {
	t.Helper()
	issuer := auth.NewIssuer([]byte(testJWTSecret), time.Hour)
	books := services.NewBookService(newMemBookRepo(), nil, nil, nil)

	router := chi.NewRouter()
	router.Route("/books", func(r chi.Router) {
		BookRouter(r, books, RequireAuth(issuer), nil)
	})
	return router, issuer
}

func bookPayload() map[string]any {
	return map[string]any{
		"title":          "SICP",
		"author":         "Abelson",
		"isbn":           "9780262510875",
		"published_year": 1996,
		"pages":          657,
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestBookRoutes_PublicReads(t *testing.T) {
	router, issuer := newBookTestRouter(t)
	librarian, err := issuer.Issue(1, types.RoleLibrarian, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec := doJSON(t, router, http.MethodPost, "/books/", bookPayload(), librarian); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// List and Get require no token.
	rec := doJSON(t, router, http.MethodGet, "/books/", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list BookListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("unexpected list response: %+v", list)
	}

	if rec := doJSON(t, router, http.MethodGet, "/books/1", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/books/99", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBookRoutes_MutationsAreGated(t *testing.T) {
	router, issuer := newBookTestRouter(t)

	// No token at all.
	rec := doJSON(t, router, http.MethodPost, "/books/", bookPayload(), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Auth token is not supplied" {
		t.Errorf("expected %q, got %q", "Auth token is not supplied", msg)
	}

	// Valid token, insufficient role.
	member, err := issuer.Issue(2, types.RoleMember, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec = doJSON(t, router, http.MethodPost, "/books/", bookPayload(), member)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	// Librarian role passes.
	librarian, err := issuer.Issue(1, types.RoleLibrarian, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec = doJSON(t, router, http.MethodPost, "/books/", bookPayload(), librarian)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBookRoutes_DuplicateISBN(t *testing.T) {
	router, issuer := newBookTestRouter(t)
	librarian, err := issuer.Issue(1, types.RoleLibrarian, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec := doJSON(t, router, http.MethodPost, "/books/", bookPayload(), librarian); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec := doJSON(t, router, http.MethodPost, "/books/", bookPayload(), librarian)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "ISBN exists" {
		t.Errorf("expected %q, got %q", "ISBN exists", msg)
	}
}

func TestBookRoutes_UpdateAndDelete(t *testing.T) {
	router, issuer := newBookTestRouter(t)
	librarian, err := issuer.Issue(1, types.RoleLibrarian, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec := doJSON(t, router, http.MethodPost, "/books/", bookPayload(), librarian); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	payload := bookPayload()
	payload["title"] = "Structure and Interpretation of Computer Programs"
	rec := doJSON(t, router, http.MethodPut, "/books/1", payload, librarian)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated types.Book
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Title != payload["title"] {
		t.Errorf("expected updated title, got %q", updated.Title)
	}

	if rec := doJSON(t, router, http.MethodDelete, "/books/1", nil, librarian); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodDelete, "/books/1", nil, librarian); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
