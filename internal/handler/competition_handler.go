package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/sellerlens/internal/model"
)

// CompetitionServiceInterface は競合分析ハンドラーが必要とするサービスインターフェース。
type CompetitionServiceInterface interface {
	Analyze(ctx context.Context, userID, listingID string) (*model.CompetitiveAnalysis, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*model.CompetitiveSnapshot, error)
	AnalyzeStructured(ctx context.Context, product model.ProductProfile) (*model.StructuredResult, error)
}

// CompetitionHandler は競合分析のHTTPハンドラー。
type CompetitionHandler struct {
	service  CompetitionServiceInterface
	validate *validator.Validate
}

// NewCompetitionHandler はCompetitionHandlerを生成する。
func NewCompetitionHandler(service CompetitionServiceInterface) *CompetitionHandler {
	v := validator.New()
	// エラーメッセージにはJSONのキー名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &CompetitionHandler{
		service:  service,
		validate: v,
	}
}

// analyzeRequest は分析リクエストのボディ。
type analyzeRequest struct {
	ListingID string `json:"listing_id" validate:"required,max=64"`
}

// snapshotResponse はスナップショット一覧の要素。
type snapshotResponse struct {
	ID           string                        `json:"id"`
	ListingID    string                        `json:"listing_id"`
	Title        string                        `json:"title"`
	Price        float64                       `json:"price"`
	SoldQuantity int                           `json:"sold_quantity"`
	FreeShipping bool                          `json:"free_shipping"`
	DeliveryDays int                           `json:"delivery_days"`
	Suggestions  string                        `json:"suggestions"`
	Competitors  []model.CompetitorObservation `json:"competitors"`
	UpdatedAt    string                        `json:"updated_at"`
}

// snapshotListResponse はスナップショット一覧のレスポンス。
type snapshotListResponse struct {
	Snapshots []snapshotResponse `json:"snapshots"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// Analyze は出品の競合分析を実行し、スナップショットを更新する。
// POST /api/competition/analyze
func (h *CompetitionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("corpo da requisição inválido"))
		return
	}
	req.ListingID = strings.TrimSpace(req.ListingID)
	if err := h.validate.Struct(req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(validationReason(err)))
		return
	}

	result, err := h.service.Analyze(r.Context(), userID, req.ListingID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// List は自分のスナップショットを更新日時の新しい順に返す。
// GET /api/competition?limit=50&offset=0
func (h *CompetitionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limit"))
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("offset"))
		return
	}

	snapshots, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := snapshotListResponse{
		Snapshots: make([]snapshotResponse, 0, len(snapshots)),
		Limit:     limit,
		Offset:    offset,
	}
	for _, s := range snapshots {
		resp.Snapshots = append(resp.Snapshots, toSnapshotResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Structured は出品情報から構造化された競合分析を返す。
// スナップショットは保存しない。
// POST /api/competition/structured
func (h *CompetitionHandler) Structured(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var product model.ProductProfile
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("corpo da requisição inválido"))
		return
	}

	result, err := h.service.AnalyzeStructured(r.Context(), product)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(validationReason(verrs)))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- ヘルパー関数 ---

// queryInt は整数のクエリパラメータを読む。未指定は0。
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// validationReason は検証エラーを項目名の一覧に変換する。
func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return strings.Join(fields, ", ")
}

func toSnapshotResponse(s *model.CompetitiveSnapshot) snapshotResponse {
	competitors := s.Competitors
	if competitors == nil {
		competitors = []model.CompetitorObservation{}
	}
	return snapshotResponse{
		ID:           s.ID,
		ListingID:    s.ExternalListingID,
		Title:        s.Title,
		Price:        s.Price,
		SoldQuantity: s.SoldQuantity,
		FreeShipping: s.FreeShipping,
		DeliveryDays: s.DeliveryDays,
		Suggestions:  s.Suggestions,
		Competitors:  competitors,
		UpdatedAt:    s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
