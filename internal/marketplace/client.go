// Package marketplace はMercado Livre APIのクライアントを提供する。
// OAuth認可コードフロー（認可URL生成、トークン交換）と、
// ユーザー・出品・検索・サイト情報の取得を扱う。
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAuthURL = "https://auth.mercadolivre.com.br/authorization"
	defaultAPIURL  = "https://api.mercadolibre.com"
	defaultSiteID  = "MLB"
	defaultTimeout = 10 * time.Second

	// レスポンスボディの読み取り上限
	maxBodySize = 2 << 20
)

// ErrNotFound は対象リソースが存在しない（404）場合のエラー。
var ErrNotFound = errors.New("marketplace: resource not found")

// Config はクライアントの設定。
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	APIURL       string
	SiteID       string
	Timeout      time.Duration

	// テスト用に差し替え可能
	HTTPClient *http.Client
}

// Client はMercado Livre APIクライアント。
type Client struct {
	oauth      *oauth2.Config
	apiURL     string
	siteID     string
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.SiteID == "" {
		cfg.SiteID = defaultSiteID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  apiURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     apiURL,
		siteID:     cfg.SiteID,
		httpClient: httpClient,
	}
}

// ClientID は設定済みのアプリケーションIDを返す。
func (c *Client) ClientID() string { return c.oauth.ClientID }

// RedirectURL は設定済みのリダイレクトURIを返す。
func (c *Client) RedirectURL() string { return c.oauth.RedirectURL }

// HasCredentials はクライアントIDとシークレットが設定されているかを返す。
func (c *Client) HasCredentials() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// SiteID は検索対象のサイトIDを返す。
func (c *Client) SiteID() string { return c.siteID }

// AuthCodeURL は認可画面のURLを生成する。
// response_type=code、client_id、redirect_uri、stateを含む。
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Token はトークン交換の結果。
type Token struct {
	AccessToken string
	UserID      string
}

// TokenError はトークンエンドポイントが返したエラー。
type TokenError struct {
	StatusCode  int
	Code        string
	Description string
}

// Error はerrorインターフェースを実装する。
func (e *TokenError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("token endpoint error %d: %s: %s", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token endpoint error %d: %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("token endpoint error %d", e.StatusCode)
	}
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// レスポンスのuser_idが欠けている場合もエラーとして扱う。
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, retrieveErrorToTokenError(re)
		}
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	userID := extraString(tok.Extra("user_id"))
	if userID == "" {
		return nil, fmt.Errorf("token response has no user_id")
	}
	return &Token{AccessToken: tok.AccessToken, UserID: userID}, nil
}

func retrieveErrorToTokenError(re *oauth2.RetrieveError) *TokenError {
	te := &TokenError{
		Code:        re.ErrorCode,
		Description: re.ErrorDescription,
	}
	if re.Response != nil {
		te.StatusCode = re.Response.StatusCode
	}
	if te.Code == "" && len(re.Body) > 0 {
		var body struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
			Message     string `json:"message"`
		}
		if json.Unmarshal(re.Body, &body) == nil {
			te.Code = body.Error
			te.Description = body.Description
			if te.Description == "" {
				te.Description = body.Message
			}
		}
	}
	return te
}

// extraString はトークンレスポンスの追加フィールドを文字列にする。
// user_idは数値で返るため、float64の場合は整数表記に変換する。
func extraString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

// User はマーケットプレイスのユーザー情報。
type User struct {
	ID       string
	Nickname string
}

// Item は出品情報。自分の出品と検索結果の両方に使う。
type Item struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	SoldQuantity int     `json:"sold_quantity"`
	Condition    string  `json:"condition"`
	Shipping     struct {
		FreeShipping bool `json:"free_shipping"`
	} `json:"shipping"`
	Seller struct {
		Reputation       Reputation `json:"reputation"`
		SellerReputation Reputation `json:"seller_reputation"` // ユーザーAPIと同じ形で返る場合
	} `json:"seller"`
}

// Reputation は出品者の評価。
type Reputation struct {
	LevelID string `json:"level_id"`
}

// ReputationLevel は出品者の評価レベルを返す。
// seller.reputationを優先し、無ければseller.seller_reputationを見る。どちらも無ければ"unknown"。
func (i Item) ReputationLevel() string {
	if level := i.Seller.Reputation.LevelID; level != "" {
		return level
	}
	if level := i.Seller.SellerReputation.LevelID; level != "" {
		return level
	}
	return "unknown"
}

// Site はサイト情報。
type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StatusError はAPIが2xx以外を返した場合のエラー。
type StatusError struct {
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("marketplace API returned status %d: %s", e.StatusCode, e.Body)
}

// FetchUser はアクセストークンでユーザー情報を取得する。
func (c *Client) FetchUser(ctx context.Context, accessToken, userID string) (*User, error) {
	var body struct {
		ID       json.Number `json:"id"`
		Nickname string      `json:"nickname"`
	}
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(userID), accessToken, &body); err != nil {
		return nil, err
	}
	id := body.ID.String()
	if id == "" {
		id = userID
	}
	return &User{ID: id, Nickname: body.Nickname}, nil
}

// FetchItem はアクセストークンで出品情報を取得する。
// 存在しない場合はErrNotFoundを返す。
func (c *Client) FetchItem(ctx context.Context, accessToken, itemID string) (*Item, error) {
	var item Item
	if err := c.getJSON(ctx, "/items/"+url.PathEscape(itemID), accessToken, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Search はサイト内をキーワード検索する。認証は付与しない。
// 結果は検索エンジンの順序のまま返す。
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Item, error) {
	params := url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(limit)},
	}
	var body struct {
		Results []Item `json:"results"`
	}
	path := "/sites/" + url.PathEscape(c.siteID) + "/search?" + params.Encode()
	if err := c.getJSON(ctx, path, "", &body); err != nil {
		return nil, err
	}
	if body.Results == nil {
		return []Item{}, nil
	}
	return body.Results, nil
}

// SiteInfo はサイト情報を取得する。接続確認に使う。
func (c *Client) SiteInfo(ctx context.Context) (*Site, error) {
	var site Site
	if err := c.getJSON(ctx, "/sites/"+url.PathEscape(c.siteID), "", &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// getJSON はGETリクエストを送り、レスポンスをoutにデコードする。
// accessTokenが空の場合はAuthorizationヘッダーを付けない。
func (c *Client) getJSON(ctx context.Context, path, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
