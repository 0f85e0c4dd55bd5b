// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/sellerlens/internal/model"
	"github.com/hitoshi/sellerlens/internal/repository"
)

// LinkClearer はマーケットプレイス連携情報を消去する。
type LinkClearer interface {
	ClearLinkedIdentity(ctx context.Context, userID string) error
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	links       LinkClearer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	links LinkClearer,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		links:       links,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: 連携情報の消去 → sessions → user（+ CASCADE: identities, profiles, competitive_monitoring, competitor_data）
// アクセストークンはユーザー削除が途中で失敗しても残らないよう先に消す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("withdrawal started",
		slog.String("user_id", userID),
	)

	// 1. マーケットプレイス連携を解除
	if s.links != nil {
		if err := s.links.ClearLinkedIdentity(ctx, userID); err != nil {
			return fmt.Errorf("failed to clear linked identity: %w", err)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
	}

	// 3. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("withdrawal completed",
		slog.String("user_id", userID),
	)

	return nil
}
