package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"BasisPulse/internal/domain/models"
	domrepo "BasisPulse/internal/domain/repository"
	pkgch "BasisPulse/pkg/clickhouse"
	applogger "BasisPulse/pkg/logger"
)

// CHBackfillSource reads recent 1m candle closes so a fresh process can
// seed its price history before the live stream fills it. The client is
// read-only: nothing in this service writes time series back.
type CHBackfillSource struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBackfillSource(ch *pkgch.Client, table string, l *applogger.Logger) *CHBackfillSource {
	if table == "" {
		table = "basispulse.rt_candles_1m"
	}
	return &CHBackfillSource{db: ch.DB(), table: table, l: l}
}

// RecentSamples returns up to limit closes for the symbol, oldest first.
func (s *CHBackfillSource) RecentSamples(ctx context.Context, symbol string, limit int) ([]models.PriceSample, error) {
	start := time.Now()
	const qtpl = `
        SELECT bucket, close
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	q := fmt.Sprintf(qtpl, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse backfill query error",
				applogger.String("table", s.table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("backfill query: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.PriceSample, 0, limit)
	for rows.Next() {
		var (
			bucket  time.Time
			closePx float64
		)
		if err := rows.Scan(&bucket, &closePx); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, models.PriceSample{
			Symbol:    symbol,
			Price:     closePx,
			Timestamp: bucket.Unix(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse backfill ok",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

var _ domrepo.BackfillSource = (*CHBackfillSource)(nil)
