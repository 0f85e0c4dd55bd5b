// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/sellerlens/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザー、identity、プロフィールを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、profiles、競合分析データはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository はプロフィール（ロールとマーケットプレイス連携情報）の永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// SetLinkedIdentity は連携3フィールドを1回の更新で書き込む。
	// プロフィールが存在しない場合はErrProfileNotFoundを返す。
	SetLinkedIdentity(ctx context.Context, userID string, linked model.LinkedIdentity) error

	// ClearLinkedIdentity は連携3フィールドを1回の更新でNULLに戻す。
	// 未連携のプロフィールに対しても成功する。
	ClearLinkedIdentity(ctx context.Context, userID string) error

	// SetRole はロールを変更する。
	SetRole(ctx context.Context, userID string, role model.Role) error
}

// SnapshotRepository は競合スナップショットと競合観測の永続化インターフェース。
type SnapshotRepository interface {
	// UpsertSnapshot は(user_id, ml_listing_id)をキーにスナップショットを全置換でUPSERTし、IDを返す。
	// ai_suggestionsは空に戻し、後続のUpdateSuggestionsで書き込む。
	UpsertSnapshot(ctx context.Context, snapshot *model.CompetitiveSnapshot) (string, error)

	// ReplaceObservations はスナップショットに紐づく競合観測を同一トランザクションで置き換える。
	ReplaceObservations(ctx context.Context, snapshotID string, observations []model.CompetitorObservation) error

	// UpdateSuggestions はスナップショットのナラティブを更新する。
	UpdateSuggestions(ctx context.Context, snapshotID, suggestions string) error

	// ListByUser はユーザーのスナップショットをupdated_at降順で返す。競合観測も含む。
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.CompetitiveSnapshot, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
