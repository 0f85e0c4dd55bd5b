// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity はログインに使う外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Role はプロフィールに保存される権限ロール。
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Profile はユーザーごとのプロフィールレコード。
// マーケットプレイス連携情報（LinkedIdentity）はこのレコードにのみ保存される。
type Profile struct {
	UserID    string
	Role      Role
	Linked    *LinkedIdentity // 未連携の場合はnil
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinkedIdentity はマーケットプレイスアカウントとの連携情報。
// 3フィールドは常に同時に設定・同時にクリアされる。
type LinkedIdentity struct {
	AccessToken      string
	ExternalUserID   string
	ExternalNickname string
}

// IsLinked はマーケットプレイス連携済みかどうかを返す。
func (p *Profile) IsLinked() bool {
	return p != nil && p.Linked != nil && p.Linked.AccessToken != ""
}
