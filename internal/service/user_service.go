package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"

	"task-audit/internal/model"
	"task-audit/internal/repository"
)

// UserInput represents data required to create an account.
type UserInput struct {
	Username string `validate:"required,min=3,max=80"`
	Email    string `validate:"required,email,max=120"`
	Password string `validate:"required,min=8,max=72"`
	Role     model.Role
}

// UserService manages accounts.
type UserService struct {
	users    *repository.UserRepository
	hasher   *PasswordHasher
	validate *validator.Validate
}

func NewUserService(users *repository.UserRepository, hasher *PasswordHasher) *UserService {
	return &UserService{users: users, hasher: hasher, validate: validator.New()}
}

func (s *UserService) CreateUser(ctx context.Context, actor *model.User, input UserInput) (*model.User, error) {
	if !actor.IsActive || !actor.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can create users", ErrForbidden)
	}
	return s.create(ctx, input)
}

func (s *UserService) create(ctx context.Context, input UserInput) (*model.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	if input.Role == "" {
		input.Role = model.RoleAssignee
	}
	if !input.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, input.Role)
	}

	if _, err := s.users.FindByUsername(ctx, input.Username); err == nil {
		return nil, ErrDuplicateUser
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return nil, ErrDuplicateUser
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := model.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return nil, err
	}

	log.Printf("[info] user created username=%s role=%s", user.Username, user.Role)
	return &user, nil
}

// ToggleActive flips the active flag of another account.
func (s *UserService) ToggleActive(ctx context.Context, actor *model.User, userID uint) (*model.User, error) {
	if !actor.IsActive || !actor.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can change account status", ErrForbidden)
	}
	if actor.ID == userID {
		return nil, fmt.Errorf("%w: you cannot deactivate your own account", ErrInvalidInput)
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.IsActive = !user.IsActive
	if err := s.users.SetActive(ctx, user.ID, user.IsActive); err != nil {
		return nil, err
	}

	log.Printf("[info] user %s active=%t by user=%d", user.Username, user.IsActive, actor.ID)
	return user, nil
}

// Authenticate checks a username and password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin unless the username already exists.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) (*model.User, error) {
	existing, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return s.create(ctx, UserInput{Username: username, Email: email, Password: password, Role: model.RoleAdmin})
}

// LinkTelegram attaches a Telegram chat to the account after checking credentials.
func (s *UserService) LinkTelegram(ctx context.Context, username, password string, telegramID int64) (*model.User, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetTelegramID(ctx, user.ID, telegramID); err != nil {
		return nil, err
	}
	user.TelegramID = &telegramID
	log.Printf("[info] user %s linked telegram chat %d", user.Username, telegramID)
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, actor *model.User) ([]model.User, error) {
	if !actor.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list users", ErrForbidden)
	}
	return s.users.ListAll(ctx)
}

func (s *UserService) ListLinked(ctx context.Context) ([]model.User, error) {
	return s.users.ListLinked(ctx)
}
