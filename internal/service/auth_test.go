package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/auth"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeObjectStore keeps uploads in memory and returns a predictable URL.
type fakeObjectStore struct {
	objects map[string][]byte
	err     error
}

func (f *fakeObjectStore) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = body
	return "https://cdn.example.com/" + key, nil
}

// failingUsers simulates a database failure on Create.
type failingUsers struct {
	repository.UserRepository
	err error
}

func (f failingUsers) Create(ctx context.Context, u *model.User) error { return f.err }

func (f failingUsers) GetByGoogleID(ctx context.Context, id string) (*model.User, error) {
	return nil, apperror.NotFound("user", id)
}

func (f failingUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, apperror.NotFound("user", email)
}

// newTestAuthService returns an AuthService over users.
// The TokenService uses a short secret, suitable for tests only.
func newTestAuthService(t *testing.T, users repository.UserRepository, avatars ObjectStore) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Cost 4 is bcrypt minimum, which keeps tests fast
	ps := auth.NewPasswordServiceWithCost(4)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAuthService(users, ts, ps, avatars, logger)
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Username: "octocat",
		Email:    "Octocat@Example.com",
		FullName: "Octo Cat",
		Password: "correct-horse",
	}
}

// =========================================================================
// Register / Login TESTS
// =========================================================================

func TestRegister_NewUser(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)

	result, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if result.Token == "" {
		t.Fatal("Register() returned empty Token")
	}
	if result.User.ID == "" {
		t.Error("User.ID should be set after create")
	}
	if result.User.Email != "octocat@example.com" {
		t.Errorf("User.Email = %q, want lowercased address", result.User.Email)
	}
	if result.User.Level != 1 || result.User.XPPoints != 0 {
		t.Errorf("new user level/xp = %d/%d, want 1/0", result.User.Level, result.User.XPPoints)
	}
	if result.User.PasswordHash == "correct-horse" {
		t.Error("password must be stored hashed")
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)

	tests := []struct {
		name  string
		edit  func(*RegisterInput)
		field string
	}{
		{"short username", func(in *RegisterInput) { in.Username = "ab" }, "username"},
		{"username with space", func(in *RegisterInput) { in.Username = "octo cat" }, "username"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"missing full name", func(in *RegisterInput) { in.FullName = " " }, "fullname"},
		{"short password", func(in *RegisterInput) { in.Password = "short" }, "password"},
		{"long password", func(in *RegisterInput) { in.Password = strings.Repeat("x", 73) }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegistration()
			tt.edit(&in)

			_, err := svc.Register(context.Background(), in)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Register() error = %v, want validation error", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("setup: %v", err)
	}

	dup := validRegistration()
	dup.Username = "someone-else"
	_, err := svc.Register(context.Background(), dup)

	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Register() error = %v, want conflict", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)
	registered, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	result, err := svc.Login(context.Background(), "octocat@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.ID != registered.User.ID {
		t.Errorf("Login() user = %q, want %q", result.User.ID, registered.User.ID)
	}

	// Wrong password and unknown email look the same.
	for _, creds := range [][2]string{
		{"octocat@example.com", "wrong-password"},
		{"nobody@example.com", "correct-horse"},
	} {
		_, err := svc.Login(context.Background(), creds[0], creds[1])
		if !errors.Is(err, apperror.ErrUnauthorized) {
			t.Errorf("Login(%q) error = %v, want unauthorized", creds[0], err)
		}
	}

	_, err = svc.Login(context.Background(), "", "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Login(empty) error = %v, want validation error", err)
	}
}

// =========================================================================
// LoginOrRegisterGoogle TESTS
// =========================================================================

func TestLoginOrRegisterGoogle_NewUser(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)

	result, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{
		Sub:     "google-42",
		Email:   "gopher@example.com",
		Name:    "Gopher",
		Picture: "https://example.com/gopher.png",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGoogle() error = %v", err)
	}

	if result.User.Username != "gopher" {
		t.Errorf("Username = %q, want %q", result.User.Username, "gopher")
	}
	if result.User.GoogleID != "google-42" {
		t.Errorf("GoogleID = %q, want %q", result.User.GoogleID, "google-42")
	}
	if result.User.AvatarURL != "https://example.com/gopher.png" {
		t.Errorf("AvatarURL = %q", result.User.AvatarURL)
	}

	// A returning user gets the same account back.
	again, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{Sub: "google-42", Email: "gopher@example.com"})
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}
	if again.User.ID != result.User.ID {
		t.Errorf("second login user = %q, want %q", again.User.ID, result.User.ID)
	}
}

func TestLoginOrRegisterGoogle_LinksExistingEmail(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)
	registered, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	result, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{
		Sub:   "google-7",
		Email: "octocat@example.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGoogle() error = %v", err)
	}

	if result.User.ID != registered.User.ID {
		t.Errorf("linked user = %q, want %q", result.User.ID, registered.User.ID)
	}
	if result.User.GoogleID != "google-7" {
		t.Errorf("GoogleID = %q, want %q", result.User.GoogleID, "google-7")
	}
}

func TestLoginOrRegisterGoogle_UsernameTaken(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("setup: %v", err)
	}

	result, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{
		Sub:   "google-9",
		Email: "octocat@another.example.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGoogle() error = %v", err)
	}
	if !strings.HasPrefix(result.User.Username, "octocat-") {
		t.Errorf("Username = %q, want a disambiguated octocat-*", result.User.Username)
	}
}

func TestLoginOrRegisterGoogle_NilGoogleUser(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)

	_, err := svc.LoginOrRegisterGoogle(context.Background(), nil)
	if err == nil {
		t.Fatal("LoginOrRegisterGoogle() should return error for nil GoogleUser")
	}
}

func TestLoginOrRegisterGoogle_RepositoryError(t *testing.T) {
	users := failingUsers{
		UserRepository: newTestStore(t).Users(),
		err:            errors.New("database is on fire"),
	}
	svc := newTestAuthService(t, users, nil)

	_, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{Sub: "1", Email: "user@example.com"})
	if err == nil {
		t.Fatal("LoginOrRegisterGoogle() should propagate repository errors")
	}
}

// =========================================================================
// GetUserByID / UpdateProfile TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)
	registered, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(context.Background(), registered.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Username != "octocat" {
		t.Errorf("user.Username = %q, want %q", user.Username, "octocat")
	}

	if _, err := svc.GetUserByID(context.Background(), ""); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("GetUserByID(\"\") error = %v, want unauthorized", err)
	}
	if _, err := svc.GetUserByID(context.Background(), "non-existent-id"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(unknown) error = %v, want not found", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)
	ctx := context.Background()
	first, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	second := validRegistration()
	second.Username = "gopher"
	second.Email = "gopher@example.com"
	if _, err := svc.Register(ctx, second); err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.UpdateProfile(ctx, first.User.ID, UpdateProfileInput{FullName: ptr("Mona Lisa")})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if user.FullName != "Mona Lisa" || user.Username != "octocat" {
		t.Errorf("profile = %q/%q, want Mona Lisa/octocat", user.FullName, user.Username)
	}

	_, err = svc.UpdateProfile(ctx, first.User.ID, UpdateProfileInput{Username: ptr("gopher")})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateProfile(taken username) error = %v, want conflict", err)
	}
}

// =========================================================================
// UploadAvatar TESTS
// =========================================================================

func TestUploadAvatar(t *testing.T) {
	store := &fakeObjectStore{}
	svc := newTestAuthService(t, newTestStore(t).Users(), store)
	registered, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.UploadAvatar(context.Background(), registered.User.ID, []byte("\x89PNG"), "image/png")
	if err != nil {
		t.Fatalf("UploadAvatar() error = %v", err)
	}

	if !strings.HasPrefix(user.AvatarURL, "https://cdn.example.com/avatars/"+registered.User.ID+"/") {
		t.Errorf("AvatarURL = %q", user.AvatarURL)
	}
	if !strings.HasSuffix(user.AvatarURL, ".png") {
		t.Errorf("AvatarURL = %q, want .png key", user.AvatarURL)
	}
	if len(store.objects) != 1 {
		t.Errorf("stored %d objects, want 1", len(store.objects))
	}
}

func TestUploadAvatar_Rejected(t *testing.T) {
	registeredSvc := func(t *testing.T, avatars ObjectStore) (*AuthService, string) {
		svc := newTestAuthService(t, newTestStore(t).Users(), avatars)
		r, err := svc.Register(context.Background(), validRegistration())
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
		return svc, r.User.ID
	}

	t.Run("not configured", func(t *testing.T) {
		svc, id := registeredSvc(t, nil)
		if svc.AvatarsEnabled() {
			t.Fatal("AvatarsEnabled() = true with no object store")
		}
		_, err := svc.UploadAvatar(context.Background(), id, []byte("x"), "image/png")
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("error = %v, want validation error", err)
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		svc, id := registeredSvc(t, &fakeObjectStore{})
		_, err := svc.UploadAvatar(context.Background(), id, []byte("%PDF"), "application/pdf")
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("error = %v, want validation error", err)
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		svc, id := registeredSvc(t, &fakeObjectStore{err: errors.New("bucket gone")})
		_, err := svc.UploadAvatar(context.Background(), id, []byte("GIF89a"), "image/gif")
		if err == nil || errors.Is(err, apperror.ErrValidation) {
			t.Errorf("error = %v, want infrastructure error", err)
		}
	})
}

// =========================================================================
// ValidateToken TESTS
// =========================================================================

func TestValidateToken_ValidToken(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)

	result, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("userID = %q, want %q", userID, result.User.ID)
	}
}

func TestValidateToken_InvalidToken(t *testing.T) {
	svc := newTestAuthService(t, newTestStore(t).Users(), nil)

	_, err := svc.ValidateToken("this.is.garbage")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("ValidateToken() error = %v, want unauthorized", err)
	}
}
