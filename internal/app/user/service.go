package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
)

const (
	// MinSearchLength is the shortest query that reaches the store; shorter queries match nobody.
	MinSearchLength = 3

	// SearchLimit caps the number of users returned by one search.
	SearchLimit = 20

	minPasswordLength = 6
	maxPasswordLength = 72 // bcrypt input limit
	maxFullNameLength = 50
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,30}$`)

// Store is the persistence collaborator the service depends on.
type Store interface {
	CreateUser(ctx context.Context, acc Account) (Account, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
	SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]User, error)
	ListContacts(ctx context.Context, userID string) ([]User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// Service implements registration, authentication, and user lookups.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Register validates in and creates a new account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)

	if !usernamePattern.MatchString(in.Username) {
		return User{}, errs.NewError(errs.ErrInvalidUsername)
	}
	if len(in.Password) < minPasswordLength || len(in.Password) > maxPasswordLength {
		return User{}, errs.NewError(errs.ErrInvalidPassword)
	}
	if in.FullName == "" || utf8.RuneCountInString(in.FullName) > maxFullNameLength {
		return User{}, errs.NewError(errs.ErrInvalidFullName)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	acc, err := s.store.CreateUser(ctx, Account{
		User: User{
			ID:       uuid.NewString(),
			Username: in.Username,
			FullName: in.FullName,
		},
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, ErrUsernameTaken) {
		return User{}, errs.NewError(errs.ErrUserAlreadyExists)
	}
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}

	logx.Info("User registered", "user_id", acc.ID, "username", acc.Username)
	return acc.User, nil
}

// Authenticate checks the credentials and returns the matching user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	acc, err := s.store.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return User{}, errs.NewError(errs.ErrInvalidCredentials)
	}
	if err != nil {
		return User{}, fmt.Errorf("load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return User{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	if err := s.store.TouchLastLogin(ctx, acc.ID, s.now().UTC()); err != nil {
		logx.Warn("Failed to record last login", "user_id", acc.ID, "error", err)
	}

	return acc.User, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// Search returns users whose username or full name contains query, case-insensitively.
// Queries shorter than MinSearchLength return an empty result without touching the store.
// The caller is never part of the result.
func (s *Service) Search(ctx context.Context, selfID, query string) ([]User, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinSearchLength {
		return []User{}, nil
	}

	users, err := s.store.SearchUsers(ctx, query, selfID, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Contacts returns the users selfID has exchanged messages with, most recent first.
func (s *Service) Contacts(ctx context.Context, selfID string) ([]User, error) {
	users, err := s.store.ListContacts(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}
