package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/sellerlens/internal/model"
	"github.com/hitoshi/sellerlens/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

type mockProfileRepo struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.Profile, error)
}

func (m *mockProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
var _ ProfileFinder = (*mockProfileRepo)(nil)

// --- テスト ---

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// newTestService は時刻とセッションIDを固定したServiceを返す。
func newTestService(provider OAuthProvider, users *mockUserRepo, idents *mockIdentityRepo, sessions *mockSessionRepo, profiles *mockProfileRepo, ids ...string) *Service {
	svc := NewService(provider, users, idents, sessions, profiles, ServiceConfig{SessionMaxAge: 3600})
	svc.now = func() time.Time { return fixedNow }
	if len(ids) > 0 {
		i := 0
		svc.newID = func() (string, error) {
			id := ids[i%len(ids)]
			i++
			return id, nil
		}
	}
	return svc
}

func googleUser(info OAuthUserInfo) *mockOAuthProvider {
	return &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &info, nil
		},
	}
}

func TestGetLoginURL_DelegatesToProvider(t *testing.T) {
	provider := &mockOAuthProvider{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	svc := NewService(provider, nil, nil, nil, nil, ServiceConfig{})

	want := "https://accounts.google.com/o/oauth2/auth?state=test-state"
	if got := svc.GetLoginURL("test-state"); got != want {
		t.Errorf("GetLoginURL() = %q, want %q", got, want)
	}
}

func TestNewService_DefaultsSessionMaxAge(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, ServiceConfig{})
	if svc.config.SessionMaxAge != defaultSessionMaxAge {
		t.Errorf("SessionMaxAge = %d, want %d", svc.config.SessionMaxAge, defaultSessionMaxAge)
	}
}

func TestHandleCallback_NewUser_CreatesAccountAndSession(t *testing.T) {
	var createdUser *model.User
	var createdIdentity *model.Identity
	var createdSession *model.Session

	provider := googleUser(OAuthUserInfo{
		ProviderUserID: "google-user-123",
		Email:          "  Vendedor@Example.com ",
		Name:           " Loja Teste ",
		Provider:       "google",
	})
	users := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			createdUser, createdIdentity = user, identity
			return nil
		},
	}
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := newTestService(provider, users, &mockIdentityRepo{}, sessions, nil, "sess-abc")
	session, err := svc.HandleCallback(context.Background(), "auth-code-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if createdUser == nil || createdIdentity == nil {
		t.Fatal("user and identity should be created together")
	}
	if createdUser.Email != "vendedor@example.com" {
		t.Errorf("email = %q, want normalized %q", createdUser.Email, "vendedor@example.com")
	}
	if createdUser.Name != "Loja Teste" {
		t.Errorf("name = %q, want %q", createdUser.Name, "Loja Teste")
	}
	if createdIdentity.UserID != createdUser.ID || createdIdentity.ProviderUserID != "google-user-123" {
		t.Errorf("identity = %+v, want it bound to user %s", createdIdentity, createdUser.ID)
	}

	if session.ID != "sess-abc" || session.UserID != createdUser.ID {
		t.Errorf("session = %+v", session)
	}
	if createdSession != session {
		t.Error("returned session should be the persisted one")
	}
	if want := fixedNow.Add(time.Hour); !session.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, want)
	}
}

func TestHandleCallback_ExistingUser_OnlyCreatesSession(t *testing.T) {
	provider := googleUser(OAuthUserInfo{ProviderUserID: "google-user-789", Provider: "google"})
	idents := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			if provider != "google" || providerUserID != "google-user-789" {
				t.Errorf("lookup = (%s, %s)", provider, providerUserID)
			}
			return &model.Identity{UserID: "existing-user"}, nil
		},
	}
	users := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			t.Error("CreateWithIdentity must not be called for an existing identity")
			return nil
		},
	}

	svc := newTestService(provider, users, idents, &mockSessionRepo{}, nil, "sess-1")
	session, err := svc.HandleCallback(context.Background(), "code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if session.UserID != "existing-user" {
		t.Errorf("session userID = %q, want %q", session.UserID, "existing-user")
	}
}

func TestHandleCallback_Failures(t *testing.T) {
	okProvider := googleUser(OAuthUserInfo{ProviderUserID: "g-1", Provider: "google"})

	tests := []struct {
		name     string
		provider *mockOAuthProvider
		idents   *mockIdentityRepo
		users    *mockUserRepo
		sessions *mockSessionRepo
	}{
		{
			name: "oauth exchange",
			provider: &mockOAuthProvider{exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
				return nil, errors.New("invalid_grant")
			}},
		},
		{
			name:     "identity lookup",
			provider: okProvider,
			idents: &mockIdentityRepo{findByProviderFn: func(ctx context.Context, p, id string) (*model.Identity, error) {
				return nil, errors.New("db down")
			}},
		},
		{
			name:     "user creation",
			provider: okProvider,
			idents:   &mockIdentityRepo{},
			users: &mockUserRepo{createWithIdentityFn: func(ctx context.Context, u *model.User, i *model.Identity) error {
				return errors.New("unique violation")
			}},
		},
		{
			name:     "session save",
			provider: okProvider,
			idents:   &mockIdentityRepo{},
			users:    &mockUserRepo{},
			sessions: &mockSessionRepo{createFn: func(ctx context.Context, s *model.Session) error {
				return errors.New("db down")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.provider, tt.users, tt.idents, tt.sessions, nil)
			session, err := svc.HandleCallback(context.Background(), "code")
			if err == nil {
				t.Fatal("expected error")
			}
			if session != nil {
				t.Errorf("session should be nil on error, got %+v", session)
			}
		})
	}
}

func TestCreateSession_RegeneratesOnIDConflict(t *testing.T) {
	var tried []string
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, s *model.Session) error {
			tried = append(tried, s.ID)
			if len(tried) < 2 {
				return repository.ErrSessionIDConflict
			}
			return nil
		},
	}
	svc := newTestService(nil, nil, nil, sessions, nil, "dup", "fresh")

	session, err := svc.createSession(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("createSession() error = %v", err)
	}
	if session.ID != "fresh" {
		t.Errorf("session ID = %q, want %q", session.ID, "fresh")
	}
	if len(tried) != 2 {
		t.Errorf("attempts = %d, want 2", len(tried))
	}
}

func TestCreateSession_GivesUpAfterRepeatedConflicts(t *testing.T) {
	attempts := 0
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, s *model.Session) error {
			attempts++
			return repository.ErrSessionIDConflict
		},
	}
	svc := newTestService(nil, nil, nil, sessions, nil, "dup")

	_, err := svc.createSession(context.Background(), "user-1")
	if !errors.Is(err, repository.ErrSessionIDConflict) {
		t.Fatalf("err = %v, want ErrSessionIDConflict", err)
	}
	if attempts != maxSessionIDAttempts {
		t.Errorf("attempts = %d, want %d", attempts, maxSessionIDAttempts)
	}
}

func TestLogout(t *testing.T) {
	var deleted string
	sessions := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := newTestService(nil, nil, nil, sessions, nil)

	if err := svc.Logout(context.Background(), "session-to-delete"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deleted != "session-to-delete" {
		t.Errorf("deleted session ID = %q, want %q", deleted, "session-to-delete")
	}

	if err := svc.Logout(context.Background(), ""); !errors.Is(err, ErrSessionRequired) {
		t.Errorf("Logout(\"\") err = %v, want ErrSessionRequired", err)
	}
}

func TestGetCurrentUser_ReturnsUserWithProfile(t *testing.T) {
	sessions := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: fixedNow.Add(time.Hour)}, nil
		},
	}
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "user@example.com"}, nil
		},
	}
	profiles := &mockProfileRepo{
		findByUserIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{
				UserID: id,
				Role:   model.RoleAdmin,
				Linked: &model.LinkedIdentity{AccessToken: "tok", ExternalUserID: "123", ExternalNickname: "LOJA"},
			}, nil
		},
	}
	svc := newTestService(nil, users, nil, sessions, profiles)

	account, err := svc.GetCurrentUser(context.Background(), "session-valid")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if account.User.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", account.User.ID, "user-1")
	}
	if account.Profile == nil || account.Profile.Role != model.RoleAdmin || !account.Profile.IsLinked() {
		t.Errorf("unexpected profile: %+v", account.Profile)
	}
}

func TestGetCurrentUser_Failures(t *testing.T) {
	validSession := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1"}, nil
		},
	}
	existingUser := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}

	tests := []struct {
		name      string
		sessionID string
		sessions  *mockSessionRepo
		users     *mockUserRepo
		profiles  *mockProfileRepo
		want      error
	}{
		{name: "empty session id", sessionID: "", want: ErrSessionRequired},
		{name: "expired session", sessionID: "expired", sessions: &mockSessionRepo{}, want: ErrSessionNotFound},
		{name: "withdrawn user", sessionID: "s", sessions: validSession, users: &mockUserRepo{}, want: ErrAccountNotFound},
		{
			name:      "profile store error",
			sessionID: "s",
			sessions:  validSession,
			users:     existingUser,
			profiles: &mockProfileRepo{findByUserIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
				return nil, errors.New("db down")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(nil, tt.users, nil, tt.sessions, tt.profiles)
			account, err := svc.GetCurrentUser(context.Background(), tt.sessionID)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if account != nil {
				t.Errorf("account should be nil on error, got %+v", account)
			}
		})
	}
}
