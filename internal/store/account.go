package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bookhive/apiserver/types"
)

// AccountRepository handles persistence for accounts and their
// credentials.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateWithCredential inserts an account and its credential in one
// transaction. If the credential insert fails the account insert is
// rolled back, so no account is ever visible without a credential.
// Unique violations surface as ErrDuplicateUsername, ErrDuplicateEmail,
// or ErrDuplicatePhone.
func (r *AccountRepository) CreateWithCredential(ctx context.Context, account types.Account, salt, saltedHash string) (types.Account, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	err := WithTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		const insertAccount = `
			INSERT INTO accounts (first_name, last_name, username, email, phone, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`
		if err := tx.QueryRowContext(
			ctx,
			insertAccount,
			account.FirstName,
			account.LastName,
			account.Username,
			account.Email,
			account.Phone,
			account.Role,
			account.CreatedAt,
			account.UpdatedAt,
		).Scan(&account.ID); err != nil {
			return err
		}

		const insertCredential = `
			INSERT INTO credentials (account_id, salt, salted_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)`
		_, err := tx.ExecContext(ctx, insertCredential, account.ID, salt, saltedHash, now, now)
		return err
	})
	if err != nil {
		return types.Account{}, mapConstraintError(err)
	}
	return account, nil
}

// CreateAccount inserts an account row on its own. Callers that use it
// are responsible for pairing it with a credential; prefer
// CreateWithCredential.
func (r *AccountRepository) CreateAccount(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	const query = `
		INSERT INTO accounts (first_name, last_name, username, email, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.FirstName,
		account.LastName,
		account.Username,
		account.Email,
		account.Phone,
		account.Role,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID); err != nil {
		return types.Account{}, mapConstraintError(err)
	}
	return account, nil
}

// CreateCredential inserts a credential row for an existing account.
func (r *AccountRepository) CreateCredential(ctx context.Context, accountID int, salt, saltedHash string) error {
	now := time.Now()
	const query = `
		INSERT INTO credentials (account_id, salt, salted_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, accountID, salt, saltedHash, now, now); err != nil {
		return mapConstraintError(err)
	}
	return nil
}

// GetByID fetches an account by its id.
func (r *AccountRepository) GetByID(ctx context.Context, id int) (types.Account, error) {
	const query = `
		SELECT id, first_name, last_name, username, email, phone, role, created_at, updated_at
		FROM accounts
		WHERE id = $1`
	var account types.Account
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.FirstName,
		&account.LastName,
		&account.Username,
		&account.Email,
		&account.Phone,
		&account.Role,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

// GetCredentialByEmail fetches the account and credential pair for an
// email. Zero rows yields ErrNotFound; more than one row means the
// uniqueness invariant was violated and yields ErrIntegrity.
func (r *AccountRepository) GetCredentialByEmail(ctx context.Context, email string) (types.Account, types.Credential, error) {
	const query = `
		SELECT a.id, a.first_name, a.last_name, a.username, a.email, a.phone, a.role, a.created_at, a.updated_at,
			c.salt, c.salted_hash
		FROM accounts a
		JOIN credentials c ON c.account_id = a.id
		WHERE a.email = $1`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return types.Account{}, types.Credential{}, err
	}
	defer rows.Close()

	var (
		account    types.Account
		credential types.Credential
		matches    int
	)
	for rows.Next() {
		matches++
		if matches > 1 {
			return types.Account{}, types.Credential{}, ErrIntegrity
		}
		if err := rows.Scan(
			&account.ID,
			&account.FirstName,
			&account.LastName,
			&account.Username,
			&account.Email,
			&account.Phone,
			&account.Role,
			&account.CreatedAt,
			&account.UpdatedAt,
			&credential.Salt,
			&credential.SaltedHash,
		); err != nil {
			return types.Account{}, types.Credential{}, err
		}
		credential.AccountID = account.ID
	}
	if err := rows.Err(); err != nil {
		return types.Account{}, types.Credential{}, err
	}
	if matches == 0 {
		return types.Account{}, types.Credential{}, ErrNotFound
	}
	return account, credential, nil
}

// UpdateCredential replaces the stored salt and digest for an account.
func (r *AccountRepository) UpdateCredential(ctx context.Context, accountID int, salt, saltedHash string) error {
	const query = `
		UPDATE credentials
		SET salt = $1,
			salted_hash = $2,
			updated_at = $3
		WHERE account_id = $4`
	result, err := r.db.ExecContext(ctx, query, salt, saltedHash, time.Now(), accountID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an account. The credential row follows via the
// cascading foreign key. This is the compensating action for stores
// that cannot wrap registration in a transaction.
func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM accounts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
