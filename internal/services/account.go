package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/bookhive/apiserver/internal/auth"
	"github.com/bookhive/apiserver/types"
)

// ErrCredentialMismatch is returned when a supplied password does not
// match the stored digest. It deliberately carries no detail about the
// account.
var ErrCredentialMismatch = errors.New("credentials did not match")

const passwordSpecialChars = "!@#$%^&*()_+-=[]{};':\",.<>/?\\|`~"

// AccountRepository defines persistence operations for accounts and
// credentials.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account types.Account) (types.Account, error)
	CreateCredential(ctx context.Context, accountID int, salt, saltedHash string) error
	GetByID(ctx context.Context, id int) (types.Account, error)
	GetCredentialByEmail(ctx context.Context, email string) (types.Account, types.Credential, error)
	UpdateCredential(ctx context.Context, accountID int, salt, saltedHash string) error
	Delete(ctx context.Context, id int) error
}

// atomicAccountRepository is implemented by repositories that can
// create the account and credential in a single transaction. When
// available it is preferred over the two-step path with a compensating
// delete.
type atomicAccountRepository interface {
	CreateWithCredential(ctx context.Context, account types.Account, salt, saltedHash string) (types.Account, error)
}

// AccountService implements the registration and login workflows.
type AccountService struct {
	repo   AccountRepository
	logger *slog.Logger
}

func NewAccountService(repo AccountRepository, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{repo: repo, logger: logger}
}

// RegisterInput is the parsed registration payload. Role arrives as a
// string and is parsed by the validation pipeline.
type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Phone     string
	Role      string
	Password  string
}

// ValidationError reports the first registration rule that failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// registerRules is the ordered validation pipeline. The first failing
// rule short-circuits; no rule touches storage.
var registerRules = []struct {
	field string
	check func(in RegisterInput) string
}{
	{"firstname", func(in RegisterInput) string {
		if strings.TrimSpace(in.FirstName) == "" {
			return "Firstname is required"
		}
		return ""
	}},
	{"lastname", func(in RegisterInput) string {
		if strings.TrimSpace(in.LastName) == "" {
			return "Lastname is required"
		}
		return ""
	}},
	{"username", func(in RegisterInput) string {
		if strings.TrimSpace(in.Username) == "" {
			return "Username is required"
		}
		return ""
	}},
	{"email", func(in RegisterInput) string {
		if strings.TrimSpace(in.Email) == "" {
			return "Email is required"
		}
		if !strings.Contains(in.Email, "@") {
			return "Email is not valid"
		}
		return ""
	}},
	{"password", func(in RegisterInput) string {
		if in.Password == "" {
			return "Password is required"
		}
		if len(in.Password) <= 7 {
			return "Password must be longer than 7 characters"
		}
		if !strings.ContainsFunc(in.Password, unicode.IsDigit) {
			return "Password must contain a digit"
		}
		if !strings.ContainsAny(in.Password, passwordSpecialChars) {
			return "Password must contain a special character"
		}
		return ""
	}},
	{"phone", func(in RegisterInput) string {
		if strings.TrimSpace(in.Phone) == "" {
			return "Phone is required"
		}
		for _, r := range in.Phone {
			if !unicode.IsDigit(r) {
				return "Phone must contain only digits"
			}
		}
		if len(in.Phone) < 10 || len(in.Phone) > 15 {
			return "Phone must be 10 to 15 digits"
		}
		return ""
	}},
	{"role", func(in RegisterInput) string {
		role, err := strconv.Atoi(strings.TrimSpace(in.Role))
		if err != nil || role < types.RoleMin || role > types.RoleMax {
			return "Role is not valid"
		}
		return ""
	}},
}

// ValidateRegisterInput runs the ordered rule pipeline and returns the
// first failure, or nil when every rule passes.
func ValidateRegisterInput(in RegisterInput) *ValidationError {
	for _, rule := range registerRules {
		if msg := rule.check(in); msg != "" {
			return &ValidationError{Field: rule.field, Message: msg}
		}
	}
	return nil
}

// Register validates the input, derives a fresh salt and digest, and
// persists the account with its credential. The pairing is atomic:
// either both records exist afterwards or neither does.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (types.Account, error) {
	if verr := ValidateRegisterInput(in); verr != nil {
		return types.Account{}, verr
	}

	role, err := strconv.Atoi(strings.TrimSpace(in.Role))
	if err != nil {
		return types.Account{}, &ValidationError{Field: "role", Message: "Role is not valid"}
	}

	salt, err := auth.GenerateSalt(auth.SaltLength)
	if err != nil {
		return types.Account{}, fmt.Errorf("generating salt: %w", err)
	}
	saltedHash, err := auth.HashPassword(in.Password, salt)
	if err != nil {
		return types.Account{}, fmt.Errorf("hashing password: %w", err)
	}

	account := types.Account{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Username:  strings.TrimSpace(in.Username),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Role:      role,
	}

	if atomicRepo, ok := s.repo.(atomicAccountRepository); ok {
		return atomicRepo.CreateWithCredential(ctx, account, salt, saltedHash)
	}
	return s.registerCompensating(ctx, account, salt, saltedHash)
}

// registerCompensating is the fallback for stores without transactional
// create: insert the account, insert the credential, and delete the
// account again if the credential insert fails. The delete runs before
// the failure is reported so no reader observes an orphan account.
func (s *AccountService) registerCompensating(ctx context.Context, account types.Account, salt, saltedHash string) (types.Account, error) {
	created, err := s.repo.CreateAccount(ctx, account)
	if err != nil {
		return types.Account{}, err
	}

	if err := s.repo.CreateCredential(ctx, created.ID, salt, saltedHash); err != nil {
		if delErr := s.repo.Delete(ctx, created.ID); delErr != nil {
			// Report the primary failure; the orphan is logged, never masked.
			s.logger.Error("compensating account delete failed",
				"account_id", created.ID, "error", delErr)
		}
		return types.Account{}, err
	}
	return created, nil
}

// Login looks up the credential for an email, recomputes the digest
// from the supplied password, and compares in constant time. A token is
// issued by the caller only when Login succeeds.
func (s *AccountService) Login(ctx context.Context, email, password string) (types.Account, error) {
	account, credential, err := s.repo.GetCredentialByEmail(ctx, email)
	if err != nil {
		return types.Account{}, err
	}
	if !auth.VerifyPassword(password, credential.Salt, credential.SaltedHash) {
		return types.Account{}, ErrCredentialMismatch
	}
	return account, nil
}

// GetByID fetches an account by id.
func (s *AccountService) GetByID(ctx context.Context, id int) (types.Account, error) {
	return s.repo.GetByID(ctx, id)
}

// ChangePassword verifies the current password and stores a fresh salt
// and digest for the new one. The new password passes the same rules as
// registration.
func (s *AccountService) ChangePassword(ctx context.Context, accountID int, currentPassword, newPassword string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if _, err := s.Login(ctx, account.Email, currentPassword); err != nil {
		return err
	}

	if verr := validatePassword(newPassword); verr != nil {
		return verr
	}

	salt, err := auth.GenerateSalt(auth.SaltLength)
	if err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	saltedHash, err := auth.HashPassword(newPassword, salt)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return s.repo.UpdateCredential(ctx, accountID, salt, saltedHash)
}

func validatePassword(password string) *ValidationError {
	for _, rule := range registerRules {
		if rule.field != "password" {
			continue
		}
		if msg := rule.check(RegisterInput{Password: password}); msg != "" {
			return &ValidationError{Field: "password", Message: msg}
		}
	}
	return nil
}
