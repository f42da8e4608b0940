// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// KEY RESPONSIBILITIES:
//   - Register and log in email/password accounts
//   - Orchestrate the Google OAuth callback: find or create the user, issue a token
//   - Profile edits and avatar uploads for the signed-in user
//
// WHAT THIS FILE DOES NOT DO:
//   - It does NOT set cookies or read requests (that's the handler's job)
//   - It does NOT verify the identity on every call; the auth middleware
//     already did that and handed us a user id
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/auth"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
	"github.com/sakif/habitquest/internal/storage"
)

// Validation limits for profile fields.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxFullNameLength = 100
)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository → read/write user records
//   - tokens     *auth.TokenService        → generate/validate JWTs
//   - passwords  *auth.PasswordService     → bcrypt hashing
//   - avatars    ObjectStore               → avatar uploads (nil disables them)
//   - logger     *slog.Logger              → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	avatars   ObjectStore
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// avatars may be nil when object storage is not configured.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	avatars ObjectStore,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		avatars:   avatars,
		logger:    logger,
	}
}

// AuthResult is returned by authentication operations.
// It bundles the user record and the issued JWT together so the caller
// (the HTTP handler) can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
	Password string `json:"password"`
}

// UpdateProfileInput is a partial update: nil fields are left unchanged.
type UpdateProfileInput struct {
	Username *string `json:"username"`
	FullName *string `json:"fullname"`
}

// Register creates an email/password account and signs it in.
// A taken email or username is a conflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, apperror.ValidationFailed("fullname", "full name is required")
	}
	if len(fullName) > MaxFullNameLength {
		return nil, apperror.ValidationFailed("fullname",
			fmt.Sprintf("full name must be %d characters or less", MaxFullNameLength))
	}
	if err := auth.CheckStrength(in.Password); err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Level:        1,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ConflictMsg("an account with this email or username already exists")
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

// Login checks an email/password pair. Unknown email and wrong password give
// the same Unauthorized error so callers cannot probe for accounts.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGoogle handles the Google OAuth callback.
//
// After the handler exchanges the Google code for a GoogleUser profile, this
// method:
//
//  1. Finds the user by Google id (returning user)
//  2. Otherwise links the Google id to an existing account with the same email
//  3. Otherwise creates a new account with no password
//  4. Issues a JWT for whichever user it ended up with
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, g *auth.GoogleUser) (*AuthResult, error) {
	if g == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}

	user, err := s.users.GetByGoogleID(ctx, g.Sub)
	if err == nil {
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up Google user: %w", err)
	}

	user, err = s.users.GetByEmail(ctx, g.Email)
	switch {
	case err == nil:
		user.GoogleID = g.Sub
		if user.AvatarURL == "" {
			user.AvatarURL = g.Picture
		}
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: linking Google account: %w", err)
		}
		s.logger.Info("Google account linked", slog.String("userID", user.ID))
		return s.issue(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	user = &model.User{
		Username:  usernameFromEmail(g.Email),
		Email:     g.Email,
		FullName:  strings.TrimSpace(g.Name),
		GoogleID:  g.Sub,
		AvatarURL: g.Picture,
		Level:     1,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/auth: creating Google user: %w", err)
		}
		// The derived username is taken; disambiguate once.
		user.Username = user.Username + "-" + xid.New().String()[:6]
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating Google user: %w", err)
		}
	}

	s.logger.Info("user registered via Google",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

// GetUserByID returns the user for the given internal ID.
//
// Used by the /api/me handler to look up the full user record after the
// middleware validates the JWT and extracts the userID from the token's
// Subject claim.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("missing user identity")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		username, err := validateUsername(*in.Username)
		if err != nil {
			return nil, err
		}
		user.Username = username
	}
	if in.FullName != nil {
		fullName := strings.TrimSpace(*in.FullName)
		if fullName == "" || len(fullName) > MaxFullNameLength {
			return nil, apperror.ValidationFailed("fullname",
				fmt.Sprintf("full name must be 1 to %d characters", MaxFullNameLength))
		}
		user.FullName = fullName
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ConflictMsg("username is already taken")
		}
		return nil, fmt.Errorf("service/auth: updating profile: %w", err)
	}

	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, nil
}

// AvatarsEnabled reports whether an object store is configured.
func (s *AuthService) AvatarsEnabled() bool {
	return s.avatars != nil
}

// UploadAvatar stores body as userID's avatar and saves its public URL.
func (s *AuthService) UploadAvatar(ctx context.Context, userID string, body []byte, contentType string) (*model.User, error) {
	if s.avatars == nil {
		return nil, apperror.ValidationFailed("file", "avatar uploads are not configured")
	}
	if err := storage.Validate(len(body), contentType); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.avatars.Upload(ctx, storage.AvatarKey(userID, contentType), body, contentType)
	if err != nil {
		s.logger.Error("avatar upload failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/auth: uploading avatar: %w", err)
	}

	user.AvatarURL = url
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: saving avatar url: %w", err)
	}

	s.logger.Info("avatar updated", slog.String("userID", userID))
	return user, nil
}

// ValidateToken validates a JWT string and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", apperror.Unauthorized(err.Error())
	}
	return userID, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	n := len(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if strings.ContainsAny(username, " \t\n/@") {
		return "", apperror.ValidationFailed("username", "username may not contain spaces, '/' or '@'")
	}
	return username, nil
}

func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "a valid email address is required")
	}
	return strings.ToLower(email), nil
}

// usernameFromEmail derives a starting username from an address's local part.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local = strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '-'
		}
		return r
	}, local)
	if len(local) < MinUsernameLength {
		local += "-" + xid.New().String()[:6]
	}
	if len(local) > MaxUsernameLength {
		local = local[:MaxUsernameLength]
	}
	return local
}
