package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/sellerlens/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLを使用した競合スナップショットリポジトリ。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// UpsertSnapshot は(user_id, ml_listing_id)をキーにスナップショットをUPSERTする。
// 既存行がある場合は同じIDのまま全フィールドを置き換える。
func (r *PostgresSnapshotRepo) UpsertSnapshot(ctx context.Context, s *model.CompetitiveSnapshot) (string, error) {
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}

	var savedID string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO competitive_monitoring
		   (id, user_id, ml_listing_id, product_title, user_price, user_sold_quantity,
		    user_shipping_free, user_delivery_days, ai_suggestions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', now(), now())
		 ON CONFLICT (user_id, ml_listing_id) DO UPDATE SET
		   product_title = EXCLUDED.product_title,
		   user_price = EXCLUDED.user_price,
		   user_sold_quantity = EXCLUDED.user_sold_quantity,
		   user_shipping_free = EXCLUDED.user_shipping_free,
		   user_delivery_days = EXCLUDED.user_delivery_days,
		   ai_suggestions = '',
		   updated_at = now()
		 RETURNING id`,
		id, s.UserID, s.ExternalListingID, s.Title, s.Price, s.SoldQuantity,
		s.FreeShipping, s.DeliveryDays,
	).Scan(&savedID)
	if err != nil {
		return "", fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return savedID, nil
}

// ReplaceObservations はスナップショットの競合観測を削除してから挿入し直す。
// 同一トランザクション内で行うため、読み取り側が中間状態を観測することはない。
func (r *PostgresSnapshotRepo) ReplaceObservations(ctx context.Context, snapshotID string, observations []model.CompetitorObservation) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM competitor_data WHERE monitoring_id = $1`,
			snapshotID,
		); err != nil {
			return fmt.Errorf("failed to delete observations: %w", err)
		}

		for i, o := range observations {
			reputation := o.ReputationLevel
			if reputation == "" {
				reputation = "unknown"
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO competitor_data
				   (id, monitoring_id, competitor_listing_id, competitor_title, price, sold_quantity,
				    delivery_days, shipping_free, reputation_level, position, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
				 ON CONFLICT (monitoring_id, competitor_listing_id) DO UPDATE SET
				   competitor_title = EXCLUDED.competitor_title,
				   price = EXCLUDED.price,
				   sold_quantity = EXCLUDED.sold_quantity,
				   delivery_days = EXCLUDED.delivery_days,
				   shipping_free = EXCLUDED.shipping_free,
				   reputation_level = EXCLUDED.reputation_level,
				   position = EXCLUDED.position`,
				uuid.New().String(), snapshotID, o.ExternalListingID, o.Title, o.Price, o.SoldQuantity,
				o.DeliveryDays, o.FreeShipping, reputation, i,
			)
			if err != nil {
				return fmt.Errorf("failed to insert observation: %w", err)
			}
		}

		return nil
	})
}

// UpdateSuggestions はスナップショットのナラティブを更新する。
func (r *PostgresSnapshotRepo) UpdateSuggestions(ctx context.Context, snapshotID, suggestions string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE competitive_monitoring SET ai_suggestions = $2, updated_at = now() WHERE id = $1`,
		snapshotID, suggestions,
	)
	if err != nil {
		return fmt.Errorf("failed to update suggestions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot not found: %s", snapshotID)
	}
	return nil
}

// ListByUser はユーザーのスナップショットをupdated_at降順で返す。
// 競合観測は取得したスナップショットIDでまとめて読み込み、position順に並べる。
func (r *PostgresSnapshotRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.CompetitiveSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, ml_listing_id, product_title, user_price, user_sold_quantity,
		        user_shipping_free, user_delivery_days, ai_suggestions, created_at, updated_at
		 FROM competitive_monitoring
		 WHERE user_id = $1
		 ORDER BY updated_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*model.CompetitiveSnapshot
	byID := make(map[string]*model.CompetitiveSnapshot)
	var ids []string
	for rows.Next() {
		s := &model.CompetitiveSnapshot{}
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.ExternalListingID, &s.Title, &s.Price, &s.SoldQuantity,
			&s.FreeShipping, &s.DeliveryDays, &s.Suggestions, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Competitors = []model.CompetitorObservation{}
		snapshots = append(snapshots, s)
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	if len(ids) == 0 {
		return []*model.CompetitiveSnapshot{}, nil
	}

	obsRows, err := r.db.QueryContext(ctx,
		`SELECT id, monitoring_id, competitor_listing_id, competitor_title, price, sold_quantity,
		        delivery_days, shipping_free, reputation_level
		 FROM competitor_data
		 WHERE monitoring_id = ANY($1::uuid[])
		 ORDER BY monitoring_id, position`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer obsRows.Close()

	for obsRows.Next() {
		var o model.CompetitorObservation
		if err := obsRows.Scan(
			&o.ID, &o.SnapshotID, &o.ExternalListingID, &o.Title, &o.Price, &o.SoldQuantity,
			&o.DeliveryDays, &o.FreeShipping, &o.ReputationLevel,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if s, ok := byID[o.SnapshotID]; ok {
			s.Competitors = append(s.Competitors, o)
		}
	}
	if err := obsRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate observations: %w", err)
	}

	return snapshots, nil
}

// compile-time interface check
var _ SnapshotRepository = (*PostgresSnapshotRepo)(nil)
