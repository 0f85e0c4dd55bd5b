// Package competition は出品の競合スナップショットの作成と参照、
// および出品情報を入力にした構造化競合分析を提供する。
package competition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/sellerlens/internal/llm"
	"github.com/hitoshi/sellerlens/internal/marketplace"
	"github.com/hitoshi/sellerlens/internal/metrics"
	"github.com/hitoshi/sellerlens/internal/model"
	"github.com/hitoshi/sellerlens/internal/repository"
	"github.com/hitoshi/sellerlens/internal/security"
)

const (
	defaultPageSize   = 50
	maxPageSize       = 100
	defaultLLMTimeout = 30 * time.Second

	// 保存するナラティブの最大文字数
	maxSuggestionRunes = 8000
)

// Marketplace は競合分析で使うマーケットプレイスAPI。
type Marketplace interface {
	FetchItem(ctx context.Context, accessToken, itemID string) (*marketplace.Item, error)
	Search(ctx context.Context, query string, limit int) ([]marketplace.Item, error)
}

// ProfileReader は連携情報の参照に使う。
type ProfileReader interface {
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// Config は競合分析サービスの設定。
type Config struct {
	Locale     string
	PageSize   int
	LLMTimeout time.Duration
}

// Service は競合分析のビジネスロジックを提供する。
type Service struct {
	market    Marketplace
	profiles  ProfileReader
	snapshots repository.SnapshotRepository
	llm       llm.Client
	sanitizer security.TextSanitizer
	delivery  DeliveryEstimator
	metrics   metrics.MetricsCollector
	validate  *validator.Validate
	config    Config
	now       func() time.Time
}

// NewService はServiceを生成する。
// llmClientがnilの場合は常にフォールバック文言を使う。
func NewService(
	market Marketplace,
	profiles ProfileReader,
	snapshots repository.SnapshotRepository,
	llmClient llm.Client,
	delivery DeliveryEstimator,
	collector metrics.MetricsCollector,
	config Config,
) *Service {
	if config.Locale == "" {
		config.Locale = "pt-BR"
	}
	if config.PageSize <= 0 || config.PageSize > maxPageSize {
		config.PageSize = defaultPageSize
	}
	if config.LLMTimeout <= 0 {
		config.LLMTimeout = defaultLLMTimeout
	}
	if delivery == nil {
		delivery = NewHashDeliveryEstimator(2, 7)
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		market:    market,
		profiles:  profiles,
		snapshots: snapshots,
		llm:       llmClient,
		sanitizer: security.NewTextSanitizer(maxSuggestionRunes),
		delivery:  delivery,
		metrics:   collector,
		validate:  validator.New(),
		config:    config,
		now:       time.Now,
	}
}

// Analyze は出品の競合スナップショットを作成または更新し、分析結果を返す。
// 手順1〜3の失敗はどの書き込みよりも前に中断する。
// ナラティブ生成の失敗はフォールバック文言で置き換え、エラーにしない。
func (s *Service) Analyze(ctx context.Context, userID, listingID string) (*model.CompetitiveAnalysis, error) {
	result, err := s.analyze(ctx, userID, listingID)
	if err != nil {
		kind := model.KindOf(err)
		s.metrics.RecordAnalysisOutcome(string(kind))
		slog.Warn("competitive analysis failed",
			slog.String("kind", string(kind)),
			slog.String("user_id", userID),
			slog.String("listing_id", listingID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.metrics.RecordAnalysisOutcome("success")
	s.metrics.RecordCompetitorsFound(len(result.Competitors))
	slog.Info("competitive analysis completed",
		slog.String("user_id", userID),
		slog.String("listing_id", listingID),
		slog.Int("competitors", len(result.Competitors)),
	)
	return result, nil
}

func (s *Service) analyze(ctx context.Context, userID, listingID string) (*model.CompetitiveAnalysis, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, model.NewFlowError(model.KindPersistenceFailed, "load profile", err)
	}
	if !profile.IsLinked() {
		return nil, model.NewFlowError(model.KindNotLinked, "", nil)
	}

	// 1. 自分の出品を取得
	start := time.Now()
	own, err := s.market.FetchItem(ctx, profile.Linked.AccessToken, listingID)
	s.metrics.RecordMarketplaceLatency("fetch_item", time.Since(start))
	if err != nil {
		return nil, model.NewFlowError(model.KindListingNotFound, listingID, err)
	}

	// 2. 候補を検索（0件はエラーにしない）
	query := SearchQuery(own.Title, analyzeQueryTokens)
	start = time.Now()
	results, err := s.market.Search(ctx, query, analyzeSearchLimit)
	s.metrics.RecordMarketplaceLatency("search", time.Since(start))
	if err != nil {
		return nil, model.NewFlowError(model.KindCompetitorSearchFailed, query, err)
	}

	// 3. 絞り込み
	selected := SelectCompetitors(listingID, results, maxCompetitors)
	competitors := make([]model.CompetitorObservation, 0, len(selected))
	for _, item := range selected {
		competitors = append(competitors, s.observe(item))
	}

	listing := model.ListingSummary{
		Title:        own.Title,
		Price:        own.Price,
		SoldQuantity: own.SoldQuantity,
		FreeShipping: own.Shipping.FreeShipping,
	}

	// 4. スナップショットを全置換でUPSERT
	snapshot := &model.CompetitiveSnapshot{
		UserID:            userID,
		ExternalListingID: listingID,
		Title:             listing.Title,
		Price:             listing.Price,
		SoldQuantity:      listing.SoldQuantity,
		FreeShipping:      listing.FreeShipping,
		DeliveryDays:      s.delivery.Estimate(listingID),
	}
	snapshotID, err := s.snapshots.UpsertSnapshot(ctx, snapshot)
	if err != nil {
		return nil, model.NewFlowError(model.KindPersistenceFailed, "upsert snapshot", err)
	}

	// 5. 競合観測を置き換え
	if err := s.snapshots.ReplaceObservations(ctx, snapshotID, competitors); err != nil {
		return nil, model.NewFlowError(model.KindPersistenceFailed, "replace observations", err)
	}

	// 6. ナラティブ生成
	suggestions := s.narrative(ctx, listing, competitors)

	// 7. ナラティブを保存
	if err := s.snapshots.UpdateSuggestions(ctx, snapshotID, suggestions); err != nil {
		return nil, model.NewFlowError(model.KindPersistenceFailed, "update suggestions", err)
	}

	return &model.CompetitiveAnalysis{
		Listing:     listing,
		Competitors: competitors,
		Suggestions: suggestions,
	}, nil
}

func (s *Service) observe(item marketplace.Item) model.CompetitorObservation {
	return model.CompetitorObservation{
		ExternalListingID: item.ID,
		Title:             item.Title,
		Price:             item.Price,
		SoldQuantity:      item.SoldQuantity,
		DeliveryDays:      s.delivery.Estimate(item.ID),
		FreeShipping:      item.Shipping.FreeShipping,
		ReputationLevel:   item.ReputationLevel(),
	}
}

// narrative はLLMで提案文を生成する。失敗時はフォールバック文言を返す。
func (s *Service) narrative(ctx context.Context, listing model.ListingSummary, competitors []model.CompetitorObservation) string {
	text := textFor(s.config.Locale)
	out, err := s.complete(ctx, text.narrativeSystem, narrativePrompt(s.config.Locale, listing, competitors))
	if err != nil {
		return text.fallbackNarrative
	}
	cleaned := s.sanitizer.Sanitize(out)
	if cleaned == "" {
		return text.fallbackNarrative
	}
	return cleaned
}

// complete はタイムアウト付きでLLMを呼び出す。
// 失敗はLLMUnavailableとして返し、呼び出し側で既定値に置き換える。
func (s *Service) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.llm == nil {
		s.metrics.RecordLLMCall("none", true, 0)
		return "", model.NewFlowError(model.KindLLMUnavailable, "no client", llm.ErrNotConfigured)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.LLMTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.llm.CompleteWithSystem(callCtx, systemPrompt, userPrompt)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordLLMCall(s.llm.Provider(), true, elapsed)
		if !errors.Is(err, llm.ErrNotConfigured) {
			slog.Warn("llm completion failed, using fallback",
				slog.String("provider", s.llm.Provider()),
				slog.String("error", err.Error()),
			)
		}
		return "", model.NewFlowError(model.KindLLMUnavailable, s.llm.Provider(), err)
	}
	s.metrics.RecordLLMCall(s.llm.Provider(), false, elapsed)
	return out, nil
}

// List はユーザーのスナップショットを新しい順に返す。
// limitが0以下ならページサイズの既定値、上限を超える場合は上限に丸める。
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*model.CompetitiveSnapshot, error) {
	if limit <= 0 {
		limit = s.config.PageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	snapshots, err := s.snapshots.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

// AnalyzeStructured は出品情報と検索上位の競合をLLMに渡し、構造化された分析を返す。
// LLMの失敗や応答のパース失敗は既定の分析結果で置き換え、Fallbackをtrueにする。
func (s *Service) AnalyzeStructured(ctx context.Context, product model.ProductProfile) (*model.StructuredResult, error) {
	if err := s.validate.Struct(product); err != nil {
		return nil, fmt.Errorf("invalid product: %w", err)
	}

	query := SearchQuery(product.Title, structuredQueryTokens)
	start := time.Now()
	results, err := s.market.Search(ctx, query, structuredSearchLimit)
	s.metrics.RecordMarketplaceLatency("search", time.Since(start))
	if err != nil {
		s.metrics.RecordAnalysisOutcome(string(model.KindCompetitorSearchFailed))
		return nil, model.NewFlowError(model.KindCompetitorSearchFailed, query, err)
	}
	if len(results) == 0 {
		s.metrics.RecordAnalysisOutcome(string(model.KindNoCompetitorsFound))
		return nil, model.NewFlowError(model.KindNoCompetitorsFound, query, nil)
	}

	selected := SelectStructuredCandidates(results, maxCompetitors)
	competitors := make([]model.CompetitorObservation, 0, len(selected))
	for _, item := range selected {
		competitors = append(competitors, s.observe(item))
	}

	analysis := model.DefaultStructuredAnalysis()
	fallback := true
	text := textFor(s.config.Locale)
	out, err := s.complete(ctx, text.structuredSystem, structuredPrompt(s.config.Locale, product, competitors))
	if err == nil {
		if parsed, ok := llm.ParseStructuredAnalysis(out); ok {
			analysis = s.sanitizeAnalysis(parsed)
			fallback = false
		} else {
			slog.Warn("structured analysis response could not be parsed, using default")
		}
	}

	s.metrics.RecordAnalysisOutcome("structured")
	s.metrics.RecordCompetitorsFound(len(competitors))

	return &model.StructuredResult{
		Product:     product,
		Competitors: competitors,
		Analysis:    analysis,
		Fallback:    fallback,
		Timestamp:   s.now().UTC(),
	}, nil
}

func (s *Service) sanitizeAnalysis(a model.StructuredAnalysis) model.StructuredAnalysis {
	a.Summary = s.sanitizer.Sanitize(a.Summary)
	a.Strengths = s.sanitizeList(a.Strengths)
	a.Weaknesses = s.sanitizeList(a.Weaknesses)
	a.Recommendations.Price = s.sanitizer.Sanitize(a.Recommendations.Price)
	a.Recommendations.Title = s.sanitizer.Sanitize(a.Recommendations.Title)
	a.Recommendations.Shipping = s.sanitizer.Sanitize(a.Recommendations.Shipping)
	a.Recommendations.General = s.sanitizer.Sanitize(a.Recommendations.General)
	return a
}

func (s *Service) sanitizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := s.sanitizer.Sanitize(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}
