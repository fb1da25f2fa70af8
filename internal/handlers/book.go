package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/bookhive/apiserver/internal/services"
	"github.com/bookhive/apiserver/internal/store"
	"github.com/bookhive/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPage        = 1
	defaultLimit       = 20
	maxLimit           = 100
	maxCoverBytes      = 5 << 20
	formFieldCover     = "cover"
	maxMultipartMemory = 8 << 20
)

// BookHandler provides HTTP handlers for the catalogue.
type BookHandler struct {
	books  *services.BookService
	logger *slog.Logger
}

// NewBookHandler constructs a handler with the provided service.
func NewBookHandler(books *services.BookService, logger *slog.Logger) *BookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookHandler{books: books, logger: logger}
}

// BookRouter registers catalogue routes on the given router. Reads are
// public; mutations pass the token gate and a librarian-or-better role
// check.
func BookRouter(r chi.Router, books *services.BookService, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) {
	handler := NewBookHandler(books, logger)
	gate := chi.Middlewares{authMiddleware, RequireRole(types.RoleLibrarian)}

	r.Get("/", handler.ListBooks)
	r.With(gate...).Post("/", handler.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.Get("/", handler.GetBook)
		r.With(gate...).Put("/", handler.UpdateBook)
		r.With(gate...).Delete("/", handler.DeleteBook)
		r.Get("/cover", handler.GetCover)
		r.With(gate...).Put("/cover", handler.UploadCover)
	})
}

// BookUpsertRequest is the create/update payload.
type BookUpsertRequest struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	Description   string `json:"description"`
	PublishedYear int    `json:"published_year"`
	Pages         int    `json:"pages"`
}

// BookListResponse is the paginated list response payload.
type BookListResponse struct {
	Items []types.Book `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.books.List(r.Context(), offset, limit)
	if err != nil {
		h.logger.Error("failed to list books", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list books")
		return
	}

	writeJSON(w, http.StatusOK, BookListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.books.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		h.logger.Error("failed to fetch book", "book_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch book")
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	req, err := parseBookRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.books.Create(r.Context(), types.Book{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Description:   req.Description,
		PublishedYear: req.PublishedYear,
		Pages:         req.Pages,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateISBN) {
			writeError(w, http.StatusBadRequest, "ISBN exists")
			return
		}
		h.logger.Error("failed to create book", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create book")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseBookRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.books.Update(r.Context(), types.Book{
		ID:            id,
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Description:   req.Description,
		PublishedYear: req.PublishedYear,
		Pages:         req.Pages,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Book not found")
		case errors.Is(err, store.ErrDuplicateISBN):
			writeError(w, http.StatusBadRequest, "ISBN exists")
		default:
			h.logger.Error("failed to update book", "book_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to update book")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.books.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		h.logger.Error("failed to delete book", "book_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete book")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadCover stores a cover image uploaded as multipart form data.
func (h *BookHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Cover file is required")
		return
	}
	defer file.Close()

	if header.Size > maxCoverBytes {
		writeError(w, http.StatusBadRequest, "Cover file too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	err = h.books.UploadCover(r.Context(), id, io.LimitReader(file, maxCoverBytes), header.Size, contentType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		h.logger.Error("failed to upload cover", "book_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload cover")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCover streams the stored cover image.
func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obj, err := h.books.GetCover(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Book not found")
		case errors.Is(err, services.ErrNoCover):
			writeError(w, http.StatusNotFound, "Cover not found")
		default:
			h.logger.Error("failed to fetch cover", "book_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to fetch cover")
		}
		return
	}
	defer obj.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, obj)
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseBookID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "bookID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid book id")
	}
	return id, nil
}

func parseBookRequest(r *http.Request) (BookUpsertRequest, error) {
	var req BookUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return BookUpsertRequest{}, errors.New("invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.ISBN = strings.TrimSpace(req.ISBN)
	if req.Title == "" {
		return BookUpsertRequest{}, errors.New("title is required")
	}
	if req.Author == "" {
		return BookUpsertRequest{}, errors.New("author is required")
	}
	if req.ISBN == "" {
		return BookUpsertRequest{}, errors.New("isbn is required")
	}
	return req, nil
}
