package popup

import (
	"context"
	"fmt"
	"sync"

	"github.com/LexiconIndonesia/covercraft-service/common/kv"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

// Local-scope keys owned by the session.
const (
	KeyAuthToken = "authToken"
	KeyUserData  = "userData"
)

// AuthAPI is the remote surface used by Session.
type AuthAPI interface {
	Login(ctx context.Context, req models.LoginRequest) (models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (models.AuthResponse, error)
	Profile(ctx context.Context) (models.User, error)
}

// StoredToken reads the auth token from the local scope. It is the token
// source handed to the API client, which must exist before the Session.
type StoredToken struct {
	store kv.Store
}

func NewStoredToken(store kv.Store) StoredToken {
	return StoredToken{store: store}
}

func (s StoredToken) Token(ctx context.Context) (string, error) {
	raw, ok, err := s.store.Get(ctx, KeyAuthToken)
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

// Session tracks the signed-in user. The token and profile live in the local
// scope so every process sharing the store sees the same login.
type Session struct {
	store    kv.Store
	api      AuthAPI
	validate *validator.Validate

	mu   sync.RWMutex
	user mo.Option[models.User]
}

func NewSession(store kv.Store, api AuthAPI) *Session {
	return &Session{
		store:    store,
		api:      api,
		validate: validator.New(),
		user:     mo.None[models.User](),
	}
}

// User returns the signed-in user, if any.
func (s *Session) User() mo.Option[models.User] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Initialize restores the session from a stored token by fetching the
// profile. An invalid token leaves the session signed out.
func (s *Session) Initialize(ctx context.Context) (mo.Option[models.User], error) {
	token, err := NewStoredToken(s.store).Token(ctx)
	if err != nil {
		return mo.None[models.User](), fmt.Errorf("reading auth token: %w", err)
	}
	if token == "" {
		return mo.None[models.User](), nil
	}

	user, err := s.api.Profile(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Stored token rejected, signing out")
		return mo.None[models.User](), nil
	}
	if err := s.remember(ctx, user); err != nil {
		return mo.None[models.User](), err
	}
	return mo.Some(user), nil
}

func (s *Session) Login(ctx context.Context, req models.LoginRequest) (models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		log.Warn().Err(err).Msg("Invalid login request")
		return models.User{}, failure(ErrAuthentication, MsgAuthFailed)
	}

	resp, err := s.api.Login(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("Login failed")
		return models.User{}, failure(ErrAuthentication, MsgAuthFailed)
	}
	if err := s.store.Set(ctx, KeyAuthToken, []byte(resp.Token)); err != nil {
		return models.User{}, fmt.Errorf("storing auth token: %w", err)
	}
	if err := s.remember(ctx, resp.User); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// Register creates the account, then signs in with the same credentials.
func (s *Session) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		log.Warn().Err(err).Msg("Invalid registration request")
		return models.User{}, failure(ErrAuthentication, MsgAuthFailed)
	}
	if _, err := s.api.Register(ctx, req); err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("Registration failed")
		return models.User{}, failure(ErrAuthentication, MsgAuthFailed)
	}
	return s.Login(ctx, models.LoginRequest{Email: req.Email, Password: req.Password})
}

func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Remove(ctx, KeyAuthToken, KeyUserData); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}
	s.mu.Lock()
	s.user = mo.None[models.User]()
	s.mu.Unlock()
	return nil
}

// SetCredits records a server-reported balance on the cached profile.
func (s *Session) SetCredits(ctx context.Context, credits int) error {
	user, ok := s.User().Get()
	if !ok {
		return nil
	}
	user.Credits = credits
	return s.remember(ctx, user)
}

func (s *Session) remember(ctx context.Context, user models.User) error {
	if err := kv.SetJSON(ctx, s.store, KeyUserData, user); err != nil {
		return fmt.Errorf("storing profile: %w", err)
	}
	s.mu.Lock()
	s.user = mo.Some(user)
	s.mu.Unlock()
	return nil
}
