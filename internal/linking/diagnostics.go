package linking

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/sellerlens/internal/marketplace"
)

// Credentials は連携設定の参照インターフェース。marketplace.Clientが満たす。
type Credentials interface {
	ClientID() string
	RedirectURL() string
	HasCredentials() bool
	SiteInfo(ctx context.Context) (*marketplace.Site, error)
}

// PublicConfig はフロントエンドに公開してよい連携設定。
type PublicConfig struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
}

// CredentialCheck は管理者向けの連携設定診断結果。
// シークレットそのものは含めず、クライアントIDも先頭4文字だけを返す。
type CredentialCheck struct {
	HasClientID     bool   `json:"has_client_id"`
	HasClientSecret bool   `json:"has_client_secret"`
	ClientIDPrefix  string `json:"client_id_prefix"`
	RedirectURI     string `json:"redirect_uri"`
	APIReachable    bool   `json:"api_reachable"`
	APIStatus       int    `json:"api_status"`
	SiteID          string `json:"site_id,omitempty"`
}

// Diagnostics は連携設定の公開と診断を提供する。
type Diagnostics struct {
	creds Credentials
}

// NewDiagnostics はDiagnosticsを生成する。
func NewDiagnostics(creds Credentials) *Diagnostics {
	return &Diagnostics{creds: creds}
}

// Config はクライアントIDとリダイレクトURIを返す。
func (d *Diagnostics) Config() PublicConfig {
	return PublicConfig{
		ClientID:    d.creds.ClientID(),
		RedirectURI: d.creds.RedirectURL(),
	}
}

// Check は設定の有無とマーケットプレイスAPIへの疎通を確認する。
// API疎通の失敗は結果に含め、エラーとしては返さない。
func (d *Diagnostics) Check(ctx context.Context) CredentialCheck {
	clientID := d.creds.ClientID()
	check := CredentialCheck{
		HasClientID:     clientID != "",
		HasClientSecret: d.creds.HasCredentials(),
		ClientIDPrefix:  prefix(clientID, 4),
		RedirectURI:     d.creds.RedirectURL(),
	}

	site, err := d.creds.SiteInfo(ctx)
	if err != nil {
		var se *marketplace.StatusError
		if errors.As(err, &se) {
			check.APIStatus = se.StatusCode
		}
		slog.Warn("marketplace connectivity check failed", slog.String("error", err.Error()))
		return check
	}
	check.APIReachable = true
	check.APIStatus = 200
	check.SiteID = site.ID
	return check
}

func prefix(s string, n int) string {
	if s == "" {
		return ""
	}
	if len(s) <= n {
		return s + "..."
	}
	return s[:n] + "..."
}
