package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/bookhive/apiserver/internal/mq"
	"github.com/bookhive/apiserver/internal/storage"
	"github.com/bookhive/apiserver/types"
)

// EventChannel is the broker channel carrying catalogue change events.
const EventChannel = "catalogue-events"

// Catalogue event types.
const (
	EventBookCreated = "book.created"
	EventBookUpdated = "book.updated"
	EventBookDeleted = "book.deleted"
)

// BookEvent is the JSON payload published on catalogue changes.
type BookEvent struct {
	Type       string    `json:"type"`
	BookID     int       `json:"book_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BookRepository defines persistence operations for books.
type BookRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Book, int, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	SetCoverKey(ctx context.Context, id int, key string) error
	Delete(ctx context.Context, id int) error
}

// BookService encapsulates catalogue use-cases: CRUD, cover images,
// and change-event publishing.
type BookService struct {
	repo      BookRepository
	covers    storage.ObjectStorage
	publisher mq.Publisher
	logger    *slog.Logger
}

func NewBookService(repo BookRepository, covers storage.ObjectStorage, publisher mq.Publisher, logger *slog.Logger) *BookService {
	if publisher == nil {
		publisher = mq.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookService{
		repo:      repo,
		covers:    covers,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *BookService) List(ctx context.Context, offset, limit int) ([]types.Book, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	return s.repo.Get(ctx, id)
}

func (s *BookService) Create(ctx context.Context, book types.Book) (types.Book, error) {
	created, err := s.repo.Create(ctx, book)
	if err != nil {
		return types.Book{}, err
	}
	s.publishEvent(ctx, EventBookCreated, created.ID)
	return created, nil
}

func (s *BookService) Update(ctx context.Context, book types.Book) (types.Book, error) {
	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		return types.Book{}, err
	}
	s.publishEvent(ctx, EventBookUpdated, updated.ID)
	return updated, nil
}

func (s *BookService) Delete(ctx context.Context, id int) error {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if book.CoverKey != "" && s.covers != nil {
		if err := s.covers.Delete(ctx, book.CoverKey); err != nil {
			s.logger.Warn("failed to delete cover object",
				"book_id", id, "key", book.CoverKey, "error", err)
		}
	}
	s.publishEvent(ctx, EventBookDeleted, id)
	return nil
}

// UploadCover stores a cover image for an existing book and records
// its object key.
func (s *BookService) UploadCover(ctx context.Context, id int, r io.Reader, size int64, contentType string) error {
	if s.covers == nil {
		return fmt.Errorf("cover storage is not configured")
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	key := coverKey(id)
	if err := s.covers.Put(ctx, key, r, size, contentType); err != nil {
		return err
	}
	return s.repo.SetCoverKey(ctx, id, key)
}

// GetCover opens the stored cover image for a book.
func (s *BookService) GetCover(ctx context.Context, id int) (storage.Object, error) {
	if s.covers == nil {
		return storage.Object{}, fmt.Errorf("cover storage is not configured")
	}
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return storage.Object{}, err
	}
	if book.CoverKey == "" {
		return storage.Object{}, ErrNoCover
	}
	return s.covers.Get(ctx, book.CoverKey)
}

// ErrNoCover reports a book without an uploaded cover image.
var ErrNoCover = errors.New("no cover")

// publishEvent publishes a change event best-effort: failures are
// logged and never fail the originating request.
func (s *BookService) publishEvent(ctx context.Context, eventType string, bookID int) {
	event := BookEvent{
		Type:       eventType,
		BookID:     bookID,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode catalogue event", "type", eventType, "error", err)
		return
	}
	attrs := map[string]string{
		"type":    eventType,
		"book_id": strconv.Itoa(bookID),
	}
	if _, err := s.publisher.Publish(ctx, EventChannel, data, attrs); err != nil {
		s.logger.Warn("failed to publish catalogue event",
			"type", eventType, "book_id", bookID, "error", err)
	}
}

func coverKey(id int) string {
	return fmt.Sprintf("covers/%d", id)
}
