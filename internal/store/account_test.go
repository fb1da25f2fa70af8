package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bookhive/apiserver/types"
	"github.com/lib/pq"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testAccount() types.Account {
	return types.Account{
		FirstName: "A",
		LastName:  "B",
		Username:  "ab1",
		Email:     "ab1@x.com",
		Phone:     "1234567890",
		Role:      3,
	}
}

func TestCreateWithCredential_CommitsBothInserts(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credentials")).
		WithArgs(7, "salt", "digest", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	account, err := repo.CreateWithCredential(context.Background(), testAccount(), "salt", "digest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != 7 {
		t.Fatalf("expected id 7, got %d", account.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateWithCredential_RollsBackOnCredentialFailure(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	repo := NewAccountRepository(db)

	insertErr := errors.New("credential insert failed")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credentials")).
		WillReturnError(insertErr)
	mock.ExpectRollback()

	_, err := repo.CreateWithCredential(context.Background(), testAccount(), "salt", "digest")
	if !errors.Is(err, insertErr) {
		t.Fatalf("expected credential failure to surface, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateWithCredential_MapsUniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"accounts_username_key", ErrDuplicateUsername},
		{"accounts_email_key", ErrDuplicateEmail},
		{"accounts_phone_key", ErrDuplicatePhone},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			db, mock := newMockDB(t)
			defer db.Close()
			repo := NewAccountRepository(db)

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts")).
				WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: tt.constraint})
			mock.ExpectRollback()

			_, err := repo.CreateWithCredential(context.Background(), testAccount(), "salt", "digest")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

var credentialColumns = []string{
	"id", "first_name", "last_name", "username", "email", "phone", "role",
	"created_at", "updated_at", "salt", "salted_hash",
}

func credentialRow(rows *sqlmock.Rows, id int) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "A", "B", "ab1", "ab1@x.com", "1234567890", 3, now, now, "salt", "digest")
}

func TestGetCredentialByEmail_ExactlyOne(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	repo := NewAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts a")).
		WithArgs("ab1@x.com").
		WillReturnRows(credentialRow(sqlmock.NewRows(credentialColumns), 7))

	account, credential, err := repo.GetCredentialByEmail(context.Background(), "ab1@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != 7 || credential.AccountID != 7 {
		t.Fatalf("unexpected result: account=%+v credential=%+v", account, credential)
	}
	if credential.Salt != "salt" || credential.SaltedHash != "digest" {
		t.Fatalf("unexpected credential: %+v", credential)
	}
}

func TestGetCredentialByEmail_ZeroRows(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	repo := NewAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts a")).
		WithArgs("nobody@x.com").
		WillReturnRows(sqlmock.NewRows(credentialColumns))

	_, _, err := repo.GetCredentialByEmail(context.Background(), "nobody@x.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetCredentialByEmail_DuplicateRowsIsIntegrityFault(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	repo := NewAccountRepository(db)

	rows := credentialRow(sqlmock.NewRows(credentialColumns), 7)
	rows = credentialRow(rows, 8)
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts a")).
		WithArgs("ab1@x.com").
		WillReturnRows(rows)

	_, _, err := repo.GetCredentialByEmail(context.Background(), "ab1@x.com")
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestUpdateCredential_MissingAccount(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	repo := NewAccountRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE credentials")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateCredential(context.Background(), 99, "salt", "digest")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_RemovesAccount(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	repo := NewAccountRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM accounts")).
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
