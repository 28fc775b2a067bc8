package popup

import (
	"context"
	"errors"
	"testing"

	"github.com/LexiconIndonesia/covercraft-service/common/kv"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
)

type fakeAuth struct {
	user        models.User
	loginErr    error
	registerErr error
	profileErr  error
	logins      int
	registered  []models.RegisterRequest
}

func (f *fakeAuth) Login(_ context.Context, req models.LoginRequest) (models.AuthResponse, error) {
	f.logins++
	if f.loginErr != nil {
		return models.AuthResponse{}, f.loginErr
	}
	return models.AuthResponse{Token: "tok-" + req.Email, User: f.user}, nil
}

func (f *fakeAuth) Register(_ context.Context, req models.RegisterRequest) (models.AuthResponse, error) {
	f.registered = append(f.registered, req)
	return models.AuthResponse{}, f.registerErr
}

func (f *fakeAuth) Profile(context.Context) (models.User, error) {
	return f.user, f.profileErr
}

func TestSessionLogin(t *testing.T) {
	user := models.User{ID: "u1", Email: "ada@example.com", Credits: 7}

	tests := []struct {
		name      string
		req       models.LoginRequest
		loginErr  error
		wantErr   bool
		wantToken string
	}{
		{"success", models.LoginRequest{Email: "ada@example.com", Password: "pw"}, nil, false, "tok-ada@example.com"},
		{"invalid email", models.LoginRequest{Email: "ada", Password: "pw"}, nil, true, ""},
		{"rejected", models.LoginRequest{Email: "ada@example.com", Password: "bad"}, errors.New("401"), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := kv.NewMemory()
			api := &fakeAuth{user: user, loginErr: tt.loginErr}
			s := NewSession(store, api)

			got, err := s.Login(ctx, tt.req)
			if tt.wantErr {
				var f *Failure
				if !errors.As(err, &f) || f.Message != MsgAuthFailed || !errors.Is(err, ErrAuthentication) {
					t.Fatalf("Login() error = %v, want authentication failure", err)
				}
				if s.User().IsPresent() {
					t.Error("failed login must leave the session signed out")
				}
			} else if err != nil || got.ID != "u1" {
				t.Fatalf("Login() = %+v, %v", got, err)
			}

			token, err := NewStoredToken(store).Token(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if token != tt.wantToken {
				t.Errorf("stored token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

func TestSessionRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	api := &fakeAuth{user: models.User{ID: "u2", Credits: 10}}
	s := NewSession(kv.NewMemory(), api)

	req := models.RegisterRequest{Email: "grace@example.com", Password: "longenough", Name: "Grace"}
	if _, err := s.Register(ctx, req); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(api.registered) != 1 || api.logins != 1 {
		t.Errorf("register calls = %d, login calls = %d", len(api.registered), api.logins)
	}

	short := models.RegisterRequest{Email: "grace@example.com", Password: "short", Name: "Grace"}
	if _, err := s.Register(ctx, short); !errors.Is(err, ErrAuthentication) {
		t.Errorf("short password error = %v", err)
	}
	if len(api.registered) != 1 {
		t.Error("invalid registration must not reach the API")
	}
}

func TestSessionInitialize(t *testing.T) {
	ctx := context.Background()
	user := models.User{ID: "u1", Credits: 4}

	tests := []struct {
		name       string
		token      string
		profileErr error
		want       bool
	}{
		{"no token", "", nil, false},
		{"valid token", "tok", nil, true},
		{"rejected token", "tok", errors.New("401"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kv.NewMemory()
			if tt.token != "" {
				if err := store.Set(ctx, KeyAuthToken, []byte(tt.token)); err != nil {
					t.Fatal(err)
				}
			}
			s := NewSession(store, &fakeAuth{user: user, profileErr: tt.profileErr})

			got, err := s.Initialize(ctx)
			if err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			if got.IsPresent() != tt.want {
				t.Errorf("signed in = %v, want %v", got.IsPresent(), tt.want)
			}
		})
	}
}

func TestSessionCreditsAndLogout(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	s := NewSession(store, &fakeAuth{user: models.User{ID: "u1", Credits: 9}})

	if err := s.SetCredits(ctx, 1); err != nil {
		t.Fatalf("SetCredits() while signed out error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, KeyUserData); ok {
		t.Error("SetCredits must not create a profile while signed out")
	}

	if _, err := s.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCredits(ctx, 6); err != nil {
		t.Fatal(err)
	}
	stored, err := kv.GetJSON[models.User](ctx, store, KeyUserData)
	if err != nil {
		t.Fatal(err)
	}
	if u, ok := stored.Get(); !ok || u.Credits != 6 {
		t.Errorf("stored profile = %+v", stored)
	}

	if err := s.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if s.User().IsPresent() {
		t.Error("session still signed in after logout")
	}
	for _, key := range []string{KeyAuthToken, KeyUserData} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Errorf("%s survived logout", key)
		}
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(kv.NewMemory())

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != models.DefaultSettings() {
		t.Errorf("Load() on empty store = %+v", got)
	}

	got.Theme = models.ThemeDark
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if reloaded, _ := s.Load(ctx); reloaded.Theme != models.ThemeDark {
		t.Errorf("theme = %q", reloaded.Theme)
	}

	got.Theme = "neon"
	if err := s.Save(ctx, got); err == nil {
		t.Error("Save() accepted an unknown theme")
	}
}
