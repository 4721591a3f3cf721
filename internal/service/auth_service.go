package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"secondchance/internal/auth"
	"secondchance/internal/domain"
	"secondchance/internal/repository"
)

// RegisterInput is the payload for account creation.
type RegisterInput struct {
	Email     string `json:"email" validate:"required"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// ProfileUpdate is the body of a profile update. Nil fields are left unchanged.
type ProfileUpdate struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  *string `json:"password" validate:"omitnil,min=1"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type RegisterResult struct {
	Email string
	Token string
}

type LoginResult struct {
	Token     string
	UserName  string
	UserEmail string
}

// AuthService describes user lifecycle operations.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	// UpdateProfile changes the account identified by headerEmail and returns a fresh token.
	UpdateProfile(ctx context.Context, headerEmail string, in ProfileUpdate) (string, error)
}

type authService struct {
	users  repository.UserRepository
	hasher *auth.Hasher
	tokens *auth.TokenIssuer
	log    logrus.FieldLogger
}

func NewAuthService(users repository.UserRepository, hasher *auth.Hasher, tokens *auth.TokenIssuer, log logrus.FieldLogger) AuthService {
	return &authService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		log:    log,
	}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Password = strings.TrimSpace(in.Password)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	violations, err := checkStruct(in)
	if err != nil {
		return nil, Internal(err)
	}
	if len(violations) > 0 {
		return nil, Validation("Request must include all fields", violations...)
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		s.log.WithField("email", in.Email).Error("email already exists")
		return nil, Duplicate("email already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, Internal(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, Internal(err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.WithField("email", in.Email).Error("email already exists")
			return nil, Duplicate("email already exists")
		}
		return nil, Internal(err)
	}

	token, err := s.tokens.Issue(user.ID, time.Now())
	if err != nil {
		return nil, Internal(err)
	}

	s.log.WithField("user_id", user.ID).Info("user successfully registered")
	return &RegisterResult{Email: user.Email, Token: token}, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, Validation("email and password are required for login")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.WithField("email", email).Error("user not found")
			return nil, NotFound("user not found")
		}
		return nil, Internal(err)
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, Unauthenticated("Invalid password")
		}
		return nil, Internal(err)
	}

	token, err := s.tokens.Issue(user.ID, time.Now())
	if err != nil {
		return nil, Internal(err)
	}

	return &LoginResult{
		Token:     token,
		UserName:  user.FirstName,
		UserEmail: user.Email,
	}, nil
}

func (s *authService) UpdateProfile(ctx context.Context, headerEmail string, in ProfileUpdate) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Password = trimPtr(in.Password)

	violations, err := checkStruct(in)
	if err != nil {
		return "", Internal(err)
	}
	if len(violations) > 0 {
		s.log.WithField("violations", violations).Error("validation errors")
		return "", Validation("validation failed", violations...)
	}

	email := strings.TrimSpace(headerEmail)
	if email == "" {
		s.log.Error("email not in request headers")
		return "", Validation("Email not in request headers")
	}

	patch := domain.UserPatch{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		UpdatedAt: time.Now().UTC(),
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return "", Internal(err)
		}
		patch.PasswordHash = &hash
	}

	user, err := s.users.UpdateByEmail(ctx, email, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.WithField("email", email).Error("user not found")
			return "", NotFound("user not found")
		}
		return "", Internal(err)
	}

	token, err := s.tokens.Issue(user.ID, time.Now())
	if err != nil {
		return "", Internal(err)
	}
	return token, nil
}
