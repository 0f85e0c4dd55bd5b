// Package auth はアプリケーションログイン（Google OAuth）とセッション管理を提供する。
// ここで発行するセッションが、マーケットプレイス連携の保存に必要なログイン状態となる。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sellerlens/internal/model"
	"github.com/hitoshi/sellerlens/internal/repository"
)

const (
	defaultSessionMaxAge = 86400
	// セッションIDの衝突時に再生成する回数
	maxSessionIDAttempts = 3
)

var (
	// ErrSessionRequired はセッションIDが空の場合のエラー。
	ErrSessionRequired = errors.New("session ID is required")
	// ErrSessionNotFound はセッションが存在しないか期限切れの場合のエラー。
	ErrSessionNotFound = errors.New("session not found or expired")
	// ErrAccountNotFound はセッションのユーザーが既に削除されている場合のエラー。
	ErrAccountNotFound = errors.New("user not found")
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google"
}

// OAuthProvider はログインに使うOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ProfileFinder はログインユーザーのプロフィール取得に使う。
type ProfileFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Account はログイン中のユーザーとそのプロフィール。
type Account struct {
	User    *model.User
	Profile *model.Profile // 作成前のユーザーではnil
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	profileRepo ProfileFinder
	config      ServiceConfig
	now         func() time.Time
	newID       func() (string, error)
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	profileRepo ProfileFinder,
	config ServiceConfig,
) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = defaultSessionMaxAge
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		profileRepo: profileRepo,
		config:      config,
		now:         time.Now,
		newID:       generateSessionID,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 初回ログインではusers、identities、profiles（role=user、未連携）を同一トランザクションで作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	userID, err := s.findOrCreateUser(ctx, info)
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(strings.TrimSpace(info.Email)),
		Name:      strings.TrimSpace(info.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ident := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, user, ident); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	// セッションIDはCookie値そのものなので先頭だけ残す
	slog.Info("user logged out", slog.String("session_prefix", shortID(sessionID)))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーとプロフィールを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*Account, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrAccountNotFound
	}

	profile, err := s.profileRepo.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return &Account{User: user, Profile: profile}, nil
}

// createSession はセッションを作成し永続化する。IDが衝突した場合は作り直す。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	now := s.now()
	for attempt := 1; ; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session ID: %w", err)
		}

		session := &model.Session{
			ID:        id,
			UserID:    userID,
			ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
			CreatedAt: now,
		}
		err = s.sessionRepo.Create(ctx, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, repository.ErrSessionIDConflict) || attempt >= maxSessionIDAttempts {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
		slog.Warn("session id collision, regenerating", slog.Int("attempt", attempt))
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
