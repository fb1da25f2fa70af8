package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/bookhive/apiserver/internal/storage"
	"github.com/bookhive/apiserver/internal/store"
	"github.com/bookhive/apiserver/types"
)

type fakeBookRepo struct {
	books  map[int]types.Book
	nextID int
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: map[int]types.Book{}, nextID: 1}
}

func (f *fakeBookRepo) List(ctx context.Context, offset, limit int) ([]types.Book, int, error) {
	items := make([]types.Book, 0, len(f.books))
	for _, book := range f.books {
		items = append(items, book)
	}
	return items, len(f.books), nil
}

func (f *fakeBookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	book, ok := f.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (f *fakeBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	book.ID = f.nextID
	f.nextID++
	f.books[book.ID] = book
	return book, nil
}

func (f *fakeBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	if _, ok := f.books[book.ID]; !ok {
		return types.Book{}, store.ErrNotFound
	}
	f.books[book.ID] = book
	return book, nil
}

func (f *fakeBookRepo) SetCoverKey(ctx context.Context, id int, key string) error {
	book, ok := f.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.CoverKey = key
	f.books[id] = book
	return nil
}

func (f *fakeBookRepo) Delete(ctx context.Context, id int) error {
	if _, ok := f.books[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.books, id)
	return nil
}

type fakePublisher struct {
	published []BookEvent
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	var event BookEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	f.published = append(f.published, event)
	return "msg-1", nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeCoverStorage struct {
	objects map[string][]byte
}

func newFakeCoverStorage() *fakeCoverStorage {
	return &fakeCoverStorage{objects: map[string][]byte{}}
}

func (f *fakeCoverStorage) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeCoverStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeCoverStorage) Get(ctx context.Context, key string) (storage.Object, error) {
	data, ok := f.objects[key]
	if !ok {
		return storage.Object{}, errors.New("object missing")
	}
	return storage.Object{
		ReadCloser:  io.NopCloser(bytes.NewReader(data)),
		ContentType: "image/png",
	}, nil
}

func (f *fakeCoverStorage) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func testBook() types.Book {
	return types.Book{Title: "SICP", Author: "Abelson", ISBN: "9780262510875"}
}

func TestBookService_CreatePublishesEvent(t *testing.T) {
	publisher := &fakePublisher{}
	svc := NewBookService(newFakeBookRepo(), nil, publisher, nil)

	created, err := svc.Create(context.Background(), testBook())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.published))
	}
	event := publisher.published[0]
	if event.Type != EventBookCreated || event.BookID != created.ID {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestBookService_PublishFailureDoesNotFailRequest(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("broker down")}
	svc := NewBookService(newFakeBookRepo(), nil, publisher, nil)

	if _, err := svc.Create(context.Background(), testBook()); err != nil {
		t.Fatalf("expected create to succeed despite broker failure, got %v", err)
	}
}

func TestBookService_CoverRoundTrip(t *testing.T) {
	covers := newFakeCoverStorage()
	svc := NewBookService(newFakeBookRepo(), covers, nil, nil)

	created, err := svc.Create(context.Background(), testBook())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := strings.NewReader("png-bytes")
	if err := svc.UploadCover(context.Background(), created.ID, payload, int64(payload.Len()), "image/png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj, err := svc.GetCover(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected cover payload %q", data)
	}
}

func TestBookService_CoverForMissingBook(t *testing.T) {
	svc := NewBookService(newFakeBookRepo(), newFakeCoverStorage(), nil, nil)

	err := svc.UploadCover(context.Background(), 99, strings.NewReader("x"), 1, "image/png")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookService_GetCoverWithoutUpload(t *testing.T) {
	svc := NewBookService(newFakeBookRepo(), newFakeCoverStorage(), nil, nil)

	created, err := svc.Create(context.Background(), testBook())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.GetCover(context.Background(), created.ID); !errors.Is(err, ErrNoCover) {
		t.Fatalf("expected ErrNoCover, got %v", err)
	}
}

func TestBookService_DeleteRemovesCoverAndPublishes(t *testing.T) {
	covers := newFakeCoverStorage()
	publisher := &fakePublisher{}
	svc := NewBookService(newFakeBookRepo(), covers, publisher, nil)

	created, err := svc.Create(context.Background(), testBook())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := strings.NewReader("png-bytes")
	if err := svc.UploadCover(context.Background(), created.ID, payload, int64(payload.Len()), "image/png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(covers.objects) != 0 {
		t.Errorf("expected cover object to be removed")
	}

	last := publisher.published[len(publisher.published)-1]
	if last.Type != EventBookDeleted || last.BookID != created.ID {
		t.Errorf("unexpected final event: %+v", last)
	}
}
