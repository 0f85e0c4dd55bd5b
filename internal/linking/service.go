// Package linking はマーケットプレイスアカウント連携の認可コードフローを提供する。
// 連携開始（nonce発行と認可URL生成）、コールバック処理（nonce検証、トークン交換、
// アカウント情報取得、プロフィールへの保存）、連携解除を扱う。
package linking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/sellerlens/internal/marketplace"
	"github.com/hitoshi/sellerlens/internal/metrics"
	"github.com/hitoshi/sellerlens/internal/model"
)

const defaultNonceTTL = 10 * time.Minute

// Provider はマーケットプレイスの認可サーバーとAPIのうち、連携フローで使う部分。
type Provider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*marketplace.Token, error)
	FetchUser(ctx context.Context, accessToken, userID string) (*marketplace.User, error)
}

// ProfileStore はプロフィールの連携情報の読み書きインターフェース。
// repository.ProfileRepositoryの部分集合として定義する。
type ProfileStore interface {
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
	SetLinkedIdentity(ctx context.Context, userID string, linked model.LinkedIdentity) error
	ClearLinkedIdentity(ctx context.Context, userID string) error
}

// ServiceConfig は連携サービスの設定。
type ServiceConfig struct {
	NonceTTL time.Duration
	// StrictState がtrueの場合、保存済みnonceが無いコールバックもStateMismatchとする。
	StrictState bool
}

// Service は連携フローのビジネスロジックを提供する。
type Service struct {
	provider Provider
	profiles ProfileStore
	nonces   NonceStore
	metrics  metrics.MetricsCollector
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider Provider,
	profiles ProfileStore,
	nonces NonceStore,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.NonceTTL <= 0 {
		config.NonceTTL = defaultNonceTTL
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		provider: provider,
		profiles: profiles,
		nonces:   nonces,
		metrics:  collector,
		config:   config,
	}
}

// Initiate は新しいnonceを発行してセッションに紐づけ、認可URLを返す。
// 同じセッションの以前のnonceは上書きされる。
func (s *Service) Initiate(ctx context.Context, sessionKey string) (string, error) {
	if sessionKey == "" {
		return "", model.NewFlowError(model.KindUnauthenticated, "no session", nil)
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}
	if err := s.nonces.Save(ctx, sessionKey, nonce, s.config.NonceTTL); err != nil {
		return "", fmt.Errorf("failed to store nonce: %w", err)
	}

	return s.provider.AuthCodeURL(nonce), nil
}

// CallbackRequest はコールバックで受け取った値と、リクエスト時点のセッション情報。
type CallbackRequest struct {
	SessionKey string // アプリケーションセッションID。未ログインなら空
	UserID     string // アプリケーションユーザーID。未ログインなら空
	Code       string
	State      string
	Error      string
}

// CallbackResult は連携成功時の結果。
type CallbackResult struct {
	ExternalNickname string `json:"ml_nickname"`
	ExternalUserID   string `json:"ml_user_id"`
}

// CompleteCallback はコールバックを処理する。
// nonceは分岐より前に必ず取り出して削除するため、成否に関わらず1回で消費される。
// 失敗時は*model.FlowErrorを返す。
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	result, err := s.completeCallback(ctx, req)
	if err != nil {
		kind := model.KindOf(err)
		s.metrics.RecordLinkOutcome(string(kind))
		slog.Warn("marketplace link callback failed",
			slog.String("kind", string(kind)),
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.metrics.RecordLinkOutcome("success")
	slog.Info("marketplace account linked",
		slog.String("user_id", req.UserID),
		slog.String("external_user_id", result.ExternalUserID),
	)
	return result, nil
}

func (s *Service) completeCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	stored, found, err := s.takeNonce(ctx, req.SessionKey)
	if err != nil {
		// 読み出せない場合は照合できないため偽造防止違反として扱う
		return nil, model.NewFlowError(model.KindStateMismatch, "nonce store unavailable", err)
	}

	if req.Error != "" {
		return nil, model.NewFlowError(model.KindProviderDenied, req.Error, nil)
	}
	if req.Code == "" {
		return nil, model.NewFlowError(model.KindMissingAuthorizationCode, "", nil)
	}
	if found && req.State != stored {
		return nil, model.NewFlowError(model.KindStateMismatch, "state does not match stored nonce", nil)
	}
	if !found {
		// 取り消し済みか未発行かは区別できない。セッションキーは指紋だけを残す
		slog.Warn("callback received without stored nonce",
			slog.String("user_id", req.UserID),
			slog.String("session_key_hash", keyFingerprint(req.SessionKey)),
			slog.Bool("state_present", req.State != ""),
			slog.Bool("strict", s.config.StrictState),
		)
		if s.config.StrictState {
			return nil, model.NewFlowError(model.KindStateMismatch, "no stored nonce", nil)
		}
	}

	// 認可コードは1回しか使えないため、ここから先は再試行しない
	token, err := s.provider.ExchangeCode(ctx, req.Code)
	if err != nil {
		return nil, model.NewFlowError(model.KindTokenExchangeFailed, tokenErrorDetail(err), err)
	}

	user, err := s.provider.FetchUser(ctx, token.AccessToken, token.UserID)
	if err != nil {
		return nil, model.NewFlowError(model.KindIdentityFetchFailed, "", err)
	}

	if req.UserID == "" {
		return nil, model.NewFlowError(model.KindUnauthenticated, "no application session", nil)
	}

	linked := model.LinkedIdentity{
		AccessToken:      token.AccessToken,
		ExternalUserID:   token.UserID,
		ExternalNickname: user.Nickname,
	}
	if err := s.profiles.SetLinkedIdentity(ctx, req.UserID, linked); err != nil {
		return nil, model.NewFlowError(model.KindPersistenceFailed, "", err)
	}

	return &CallbackResult{
		ExternalNickname: user.Nickname,
		ExternalUserID:   token.UserID,
	}, nil
}

func (s *Service) takeNonce(ctx context.Context, sessionKey string) (string, bool, error) {
	if sessionKey == "" {
		return "", false, nil
	}
	return s.nonces.Take(ctx, sessionKey)
}

// keyFingerprint はセッションキーのSHA-256先頭12桁を返す。空キーは"none"。
func keyFingerprint(key string) string {
	if key == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// tokenErrorDetail はトークンエンドポイントのエラーコードと説明を取り出す。
func tokenErrorDetail(err error) string {
	var te *marketplace.TokenError
	if !errors.As(err, &te) {
		return ""
	}
	if te.Description != "" {
		return te.Code + ": " + te.Description
	}
	return te.Code
}

// Disconnect は連携3フィールドを同時にクリアする。
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.profiles.ClearLinkedIdentity(ctx, userID); err != nil {
		return model.NewFlowError(model.KindPersistenceFailed, "", err)
	}
	slog.Info("marketplace account unlinked", slog.String("user_id", userID))
	return nil
}

// Status は連携状態。アクセストークンは含めない。
type Status struct {
	Connected        bool   `json:"connected"`
	ExternalUserID   string `json:"ml_user_id,omitempty"`
	ExternalNickname string `json:"ml_nickname,omitempty"`
}

// Status は現在の連携状態を返す。
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if !profile.IsLinked() {
		return &Status{Connected: false}, nil
	}
	return &Status{
		Connected:        true,
		ExternalUserID:   profile.Linked.ExternalUserID,
		ExternalNickname: profile.Linked.ExternalNickname,
	}, nil
}
