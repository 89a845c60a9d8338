package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/motorchat/internal/model"
	"github.com/motorchat/internal/repository"
	"github.com/motorchat/internal/storage"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Service handles registration, login and logout. Issued tokens are recorded
// in the session registry so logout revokes them before expiry.
type Service struct {
	users    *repository.UserRepository
	tokens   *TokenManager
	sessions storage.SessionStore
}

func NewService(users *repository.UserRepository, tokens *TokenManager, sessions storage.SessionStore) *Service {
	return &Service{users: users, tokens: tokens, sessions: sessions}
}

func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth hash password: %w", err)
	}
	u := &model.User{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies the password and returns a live bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (token string, user *model.User, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, sessionID, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", nil, err
	}
	if err := s.sessions.PutSession(ctx, sessionID, u.ID, s.tokens.TTL()); err != nil {
		return "", nil, fmt.Errorf("auth store session: %w", err)
	}
	return token, u, nil
}

// Validate parses the token and checks the session is still live.
func (s *Service) Validate(ctx context.Context, token string) (userID int64, err error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return 0, ErrInvalidToken
	}
	uid, ok, err := s.sessions.SessionUser(ctx, claims.ID)
	if err != nil {
		return 0, fmt.Errorf("auth session lookup: %w", err)
	}
	if !ok || uid != claims.UserID {
		return 0, ErrInvalidToken
	}
	return uid, nil
}

// Logout revokes the token's session. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	return s.sessions.RevokeSession(ctx, claims.ID)
}
