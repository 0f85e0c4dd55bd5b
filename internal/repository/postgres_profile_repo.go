package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/sellerlens/internal/model"
)

// ErrProfileNotFound は更新対象のプロフィールが存在しない場合のエラー。
var ErrProfileNotFound = errors.New("profile not found")

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID はプロフィールを取得する。見つからない場合はnilを返す。
// 連携3フィールドがすべて設定されている場合のみLinkedを埋める。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	p := &model.Profile{}
	var token, mlUserID, nickname sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, ml_access_token, ml_user_id, ml_nickname, created_at, updated_at
		 FROM profiles
		 WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Role, &token, &mlUserID, &nickname, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	if token.Valid && mlUserID.Valid && nickname.Valid {
		p.Linked = &model.LinkedIdentity{
			AccessToken:      token.String,
			ExternalUserID:   mlUserID.String,
			ExternalNickname: nickname.String,
		}
	}
	return p, nil
}

// SetLinkedIdentity は連携3フィールドを1回のUPDATEで書き込む。
func (r *PostgresProfileRepo) SetLinkedIdentity(ctx context.Context, userID string, linked model.LinkedIdentity) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET ml_access_token = $2, ml_user_id = $3, ml_nickname = $4, updated_at = now()
		 WHERE user_id = $1`,
		userID, linked.AccessToken, linked.ExternalUserID, linked.ExternalNickname,
	)
	if err != nil {
		return fmt.Errorf("failed to set linked identity: %w", err)
	}
	return requireOneRow(result)
}

// ClearLinkedIdentity は連携3フィールドを1回のUPDATEでNULLに戻す。
// 未連携でも成功する。
func (r *PostgresProfileRepo) ClearLinkedIdentity(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET ml_access_token = NULL, ml_user_id = NULL, ml_nickname = NULL, updated_at = now()
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear linked identity: %w", err)
	}
	return requireOneRow(result)
}

// SetRole はロールを変更する。
func (r *PostgresProfileRepo) SetRole(ctx context.Context, userID string, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET role = $2, updated_at = now() WHERE user_id = $1`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
