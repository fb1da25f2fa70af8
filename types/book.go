package types

import "time"

// Book represents a catalogue entry.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the book's title.
	Title string `json:"title" db:"title"`

	// Author is the book's author.
	Author string `json:"author" db:"author"`

	// ISBN is the book's unique ISBN.
	ISBN string `json:"isbn" db:"isbn"`

	// Description is an optional free-text summary.
	Description string `json:"description" db:"description"`

	// PublishedYear is the year of publication, zero when unknown.
	PublishedYear int `json:"published_year" db:"published_year"`

	// Pages is the page count, zero when unknown.
	Pages int `json:"pages" db:"pages"`

	// CoverKey is the object-storage key of the cover image,
	// empty when no cover has been uploaded.
	CoverKey string `json:"cover_key,omitempty" db:"cover_key"`

	// CreatedAt is the timestamp when the book was added.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
