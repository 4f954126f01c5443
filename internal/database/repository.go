package database

import (
	"context"
	"fmt"
	"time"
)

// SignalRecord is one persisted composite signal.
type SignalRecord struct {
	ID              int       `json:"id"`
	Coin            string    `json:"coin"`
	Signal          string    `json:"signal"`
	OverallScore    float64   `json:"overall_score"`
	Confidence      int       `json:"confidence"`
	TechnicalScore  int       `json:"technical_score"`
	MacroScore      *int      `json:"macro_score,omitempty"`
	SentimentScore  *int      `json:"sentiment_score,omitempty"`
	Price           float64   `json:"price"`
	PositionSizePct float64   `json:"position_size_pct"`
	Degraded        bool      `json:"degraded"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// SaveSignal persists one generated signal.
func (db *DB) SaveSignal(ctx context.Context, rec SignalRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO signal_history
			(coin, signal, overall_score, confidence, technical_score,
			 macro_score, sentiment_score, price, position_size_pct,
			 degraded, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.Coin, rec.Signal, rec.OverallScore, rec.Confidence,
		rec.TechnicalScore, rec.MacroScore, rec.SentimentScore,
		rec.Price, rec.PositionSizePct, rec.Degraded, rec.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("save signal: %w", err)
	}
	return nil
}

// RecentSignals returns the latest persisted signals for a coin, newest
// first.
func (db *DB) RecentSignals(ctx context.Context, coin string, limit int) ([]SignalRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, coin, signal, overall_score, confidence, technical_score,
		       macro_score, sentiment_score, price, position_size_pct,
		       degraded, generated_at
		FROM signal_history
		WHERE coin = $1
		ORDER BY generated_at DESC
		LIMIT $2`,
		coin, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var rec SignalRecord
		if err := rows.Scan(
			&rec.ID, &rec.Coin, &rec.Signal, &rec.OverallScore,
			&rec.Confidence, &rec.TechnicalScore, &rec.MacroScore,
			&rec.SentimentScore, &rec.Price, &rec.PositionSizePct,
			&rec.Degraded, &rec.GeneratedAt,
		); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}
	return out, nil
}
