package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, integration, competition, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ErrorKind は連携フローと競合分析フローで発生するエラーの種別。
// 値はそのままリダイレクトのクエリパラメータやAPIのエラーコードとして使う。
type ErrorKind string

const (
	// 連携フロー
	KindProviderDenied           ErrorKind = "provider_denied"
	KindMissingAuthorizationCode ErrorKind = "missing_authorization_code"
	KindStateMismatch            ErrorKind = "state_mismatch"
	KindTokenExchangeFailed      ErrorKind = "token_exchange_failed"
	KindIdentityFetchFailed      ErrorKind = "identity_fetch_failed"
	KindUnauthenticated          ErrorKind = "unauthenticated"
	KindPersistenceFailed        ErrorKind = "persistence_failed"

	// 競合分析フロー
	KindNotLinked              ErrorKind = "not_linked"
	KindListingNotFound        ErrorKind = "listing_not_found"
	KindCompetitorSearchFailed ErrorKind = "competitor_search_failed"
	KindNoCompetitorsFound     ErrorKind = "no_competitors_found"
	KindLLMUnavailable         ErrorKind = "llm_unavailable"
)

// Error はErrorKind自体をerrorとして扱えるようにする。
// errors.Is(err, model.KindStateMismatch) の形で種別判定に使う。
func (k ErrorKind) Error() string {
	return string(k)
}

// FlowError は種別と詳細（プロバイダーのエラー文字列など）を持つエラー。
type FlowError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// NewFlowError はFlowErrorを生成する。
func NewFlowError(kind ErrorKind, detail string, err error) *FlowError {
	return &FlowError{Kind: kind, Detail: detail, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *FlowError) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は原因エラーを返す。
func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is は同じ種別のErrorKindと一致させる。
func (e *FlowError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// KindOf はエラーチェーンからErrorKindを取り出す。
// FlowErrorを含まない場合は空文字を返す。
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}

// 定義済みエラーコード
const (
	ErrCodeValidation   = "VALIDATION_FAILED"
	ErrCodeUserNotFound = "USER_NOT_FOUND"
	ErrCodeForbidden    = "FORBIDDEN"
)

// NewAPIErrorFromKind はErrorKindを利用者向けのAPIErrorに変換する。
func NewAPIErrorFromKind(kind ErrorKind) *APIError {
	switch kind {
	case KindProviderDenied:
		return &APIError{Code: string(kind), Message: "A autorização foi recusada pelo Mercado Livre.", Category: "integration", Action: "Tente conectar novamente e aprove o acesso."}
	case KindMissingAuthorizationCode:
		return &APIError{Code: string(kind), Message: "O código de autorização não foi recebido.", Category: "integration", Action: "Inicie a conexão novamente."}
	case KindStateMismatch:
		return &APIError{Code: string(kind), Message: "A verificação de segurança da conexão falhou.", Category: "integration", Action: "Inicie a conexão novamente a partir desta aplicação."}
	case KindTokenExchangeFailed:
		return &APIError{Code: string(kind), Message: "Não foi possível obter o token do Mercado Livre.", Category: "integration", Action: "Inicie a conexão novamente. Códigos de autorização só podem ser usados uma vez."}
	case KindIdentityFetchFailed:
		return &APIError{Code: string(kind), Message: "Não foi possível obter os dados da conta do Mercado Livre.", Category: "integration", Action: "Tente novamente em alguns instantes."}
	case KindUnauthenticated:
		return &APIError{Code: string(kind), Message: "Sessão não encontrada.", Category: "auth", Action: "Faça login novamente."}
	case KindPersistenceFailed:
		return &APIError{Code: string(kind), Message: "Erro ao salvar os dados.", Category: "system", Action: "Tente novamente em alguns instantes."}
	case KindNotLinked:
		return &APIError{Code: string(kind), Message: "Mercado Livre não conectado.", Category: "integration", Action: "Conecte sua conta primeiro."}
	case KindListingNotFound:
		return &APIError{Code: string(kind), Message: "Produto não encontrado no Mercado Livre.", Category: "competition", Action: "Verifique o código do anúncio."}
	case KindCompetitorSearchFailed:
		return &APIError{Code: string(kind), Message: "Erro ao buscar produtos concorrentes.", Category: "competition", Action: "Tente novamente em alguns instantes."}
	case KindNoCompetitorsFound:
		return &APIError{Code: string(kind), Message: "Nenhum produto similar encontrado.", Category: "competition", Action: "Revise o título informado."}
	default:
		return &APIError{Code: "INTERNAL_ERROR", Message: "Ocorreu um erro interno.", Category: "system", Action: "Tente novamente em alguns instantes."}
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Dados inválidos: %s", reason),
		Category: "validation",
		Action:   "Corrija os campos informados e tente novamente.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Você não tem permissão para esta ação.",
		Category: "auth",
		Action:   "Solicite acesso a um administrador.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Usuário não encontrado.",
		Category: "auth",
		Action:   "Faça login novamente.",
	}
}
