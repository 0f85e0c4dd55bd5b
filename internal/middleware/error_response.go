package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/sellerlens/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSONBody(w, statusCode, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

func writeJSONBody(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewAPIErrorFromKind(""))
}

// WriteFlowError はエラーチェーンのErrorKindに応じたステータスで統一エラーを書き込む。
// ErrorKindを持たないエラーは500として扱う。
func WriteFlowError(w http.ResponseWriter, err error) {
	kind := model.KindOf(err)
	WriteErrorResponse(w, StatusForKind(kind), model.NewAPIErrorFromKind(kind))
}

// StatusForKind はErrorKindに対応するHTTPステータスを返す。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindUnauthenticated:
		return http.StatusUnauthorized
	case model.KindNotLinked:
		return http.StatusPreconditionFailed
	case model.KindListingNotFound, model.KindNoCompetitorsFound:
		return http.StatusNotFound
	case model.KindProviderDenied, model.KindMissingAuthorizationCode, model.KindStateMismatch:
		return http.StatusBadRequest
	case model.KindTokenExchangeFailed, model.KindIdentityFetchFailed, model.KindCompetitorSearchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
