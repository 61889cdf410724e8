package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS elasticity_catalog (
		category_id TEXT NOT NULL,
		upc_id      TEXT NOT NULL,
		elasticity  DOUBLE PRECISION NOT NULL,
		ci_lower    DOUBLE PRECISION NOT NULL DEFAULT 0,
		ci_upper    DOUBLE PRECISION NOT NULL DEFAULT 0,
		promo_lift  DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (category_id, upc_id)
	)`,
	`CREATE TABLE IF NOT EXISTS elasticity_ready_panel (
		category_id TEXT NOT NULL,
		upc_id      TEXT NOT NULL,
		week_id     INTEGER NOT NULL,
		log_price   DOUBLE PRECISION NOT NULL,
		log_sales   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (category_id, upc_id, week_id)
	)`,
	`CREATE TABLE IF NOT EXISTS optimization_results (
		category_id       TEXT NOT NULL,
		upc_id            TEXT NOT NULL,
		current_price     DOUBLE PRECISION NOT NULL,
		recommended_price DOUBLE PRECISION NOT NULL,
		price_change_pct  DOUBLE PRECISION NOT NULL,
		predicted_revenue DOUBLE PRECISION NOT NULL,
		predicted_profit  DOUBLE PRECISION NOT NULL,
		elasticity        DOUBLE PRECISION NOT NULL,
		run_id            TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (category_id, upc_id)
	)`,
	`CREATE TABLE IF NOT EXISTS optimization_runs (
		run_id           TEXT PRIMARY KEY,
		category_id      TEXT NOT NULL,
		started_at       TEXT NOT NULL,
		finished_at      TEXT NOT NULL,
		status           TEXT NOT NULL,
		products         INTEGER NOT NULL DEFAULT 0,
		excluded         INTEGER NOT NULL DEFAULT 0,
		baseline_revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
		baseline_profit  DOUBLE PRECISION NOT NULL DEFAULT 0,
		revenue          DOUBLE PRECISION NOT NULL DEFAULT 0,
		objective        DOUBLE PRECISION NOT NULL DEFAULT 0,
		nodes            INTEGER NOT NULL DEFAULT 0,
		suboptimal       INTEGER NOT NULL DEFAULT 0,
		message          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_category ON optimization_runs(category_id, started_at)`,
}

// SQLStore keeps the elasticity catalog, the panel, the recommendations and
// the run log in a relational database. SQLite and Postgres are supported.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	switch driver {
	case constants.DriverSQLite, constants.DriverPostgres:
	default:
		return nil, pricing.InvalidConfigurationf("database driver %q is not supported", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.Open: open %s: %w", driver, err)
	}
	if driver == constants.DriverSQLite {
		// One writer; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLStore(ctx, db, driver, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open handle and applies the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, driver string, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLStore{db: db, driver: driver, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage.migrate: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != constants.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Elasticities implements ElasticitySource.
func (s *SQLStore) Elasticities(ctx context.Context, category string) ([]pricing.ElasticityEstimate, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT category_id, upc_id, elasticity, ci_lower, ci_upper, promo_lift
		FROM elasticity_catalog
		WHERE category_id = ?
		ORDER BY upc_id`), category)
	if err != nil {
		return nil, fmt.Errorf("storage.Elasticities: query %s: %w", category, err)
	}
	defer rows.Close()

	var out []pricing.ElasticityEstimate
	for rows.Next() {
		var e pricing.ElasticityEstimate
		if err := rows.Scan(&e.Category, &e.ProductID, &e.Elasticity, &e.CILower, &e.CIUpper, &e.PromoLift); err != nil {
			return nil, fmt.Errorf("storage.Elasticities: scan row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Elasticity implements ElasticityLookup.
func (s *SQLStore) Elasticity(ctx context.Context, category, productID string) (*pricing.ElasticityEstimate, error) {
	var e pricing.ElasticityEstimate
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT category_id, upc_id, elasticity, ci_lower, ci_upper, promo_lift
		FROM elasticity_catalog
		WHERE category_id = ? AND upc_id = ?`), category, productID).
		Scan(&e.Category, &e.ProductID, &e.Elasticity, &e.CILower, &e.CIUpper, &e.PromoLift)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("elasticity %s/%s: %w", category, productID, pricing.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Elasticity: %w", err)
	}
	return &e, nil
}

// Panel implements PanelSource.
func (s *SQLStore) Panel(ctx context.Context, category string) ([]pricing.PanelObservation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT category_id, upc_id, week_id, log_price, log_sales
		FROM elasticity_ready_panel
		WHERE category_id = ?
		ORDER BY upc_id, week_id`), category)
	if err != nil {
		return nil, fmt.Errorf("storage.Panel: query %s: %w", category, err)
	}
	defer rows.Close()

	var out []pricing.PanelObservation
	for rows.Next() {
		var o pricing.PanelObservation
		if err := rows.Scan(&o.Category, &o.ProductID, &o.Period, &o.LogPrice, &o.LogVolume); err != nil {
			return nil, fmt.Errorf("storage.Panel: scan row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SeedElasticities upserts catalog rows.
func (s *SQLStore) SeedElasticities(ctx context.Context, estimates []pricing.ElasticityEstimate) error {
	return s.inTx(ctx, "storage.SeedElasticities", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO elasticity_catalog (category_id, upc_id, elasticity, ci_lower, ci_upper, promo_lift)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (category_id, upc_id) DO UPDATE SET
				elasticity = excluded.elasticity,
				ci_lower   = excluded.ci_lower,
				ci_upper   = excluded.ci_upper,
				promo_lift = excluded.promo_lift`))
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, e := range estimates {
			if _, err := stmt.ExecContext(ctx, e.Category, e.ProductID, e.Elasticity, e.CILower, e.CIUpper, e.PromoLift); err != nil {
				return fmt.Errorf("upsert %s/%s: %w", e.Category, e.ProductID, err)
			}
		}
		return nil
	})
}

// SeedPanel upserts panel rows.
func (s *SQLStore) SeedPanel(ctx context.Context, observations []pricing.PanelObservation) error {
	return s.inTx(ctx, "storage.SeedPanel", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO elasticity_ready_panel (category_id, upc_id, week_id, log_price, log_sales)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (category_id, upc_id, week_id) DO UPDATE SET
				log_price = excluded.log_price,
				log_sales = excluded.log_sales`))
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, o := range observations {
			if _, err := stmt.ExecContext(ctx, o.Category, o.ProductID, o.Period, o.LogPrice, o.LogVolume); err != nil {
				return fmt.Errorf("upsert %s/%s/%d: %w", o.Category, o.ProductID, o.Period, err)
			}
		}
		return nil
	})
}

// ReplaceRecommendations implements RecommendationStore. Readers see either
// the previous rows or the new ones, never a mix.
func (s *SQLStore) ReplaceRecommendations(ctx context.Context, category string, recs []pricing.Recommendation) error {
	err := s.inTx(ctx, "storage.ReplaceRecommendations", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM optimization_results WHERE category_id = ?`), category); err != nil {
			return fmt.Errorf("delete %s: %w", category, err)
		}
		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO optimization_results (
				category_id, upc_id, current_price, recommended_price, price_change_pct,
				predicted_revenue, predicted_profit, elasticity, run_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, r := range recs {
			if r.Category != category {
				return fmt.Errorf("recommendation %s belongs to category %q, not %q", r.ProductID, r.Category, category)
			}
			if _, err := stmt.ExecContext(ctx,
				r.Category, r.ProductID, r.BaselinePrice, r.RecommendedPrice, r.PctChange,
				r.PredictedRevenue, r.PredictedProfit, r.Elasticity, r.RunID,
			); err != nil {
				return fmt.Errorf("insert %s: %w", r.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("recommendations replaced",
		zap.String("op", "storage.ReplaceRecommendations"),
		zap.String("category", category),
		zap.Int("rows", len(recs)),
	)
	return nil
}

const recommendationColumns = `category_id, upc_id, current_price, recommended_price, price_change_pct,
	predicted_revenue, predicted_profit, elasticity, run_id`

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type scanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row scanner) (pricing.Recommendation, error) {
	var r pricing.Recommendation
	err := row.Scan(&r.Category, &r.ProductID, &r.BaselinePrice, &r.RecommendedPrice, &r.PctChange,
		&r.PredictedRevenue, &r.PredictedProfit, &r.Elasticity, &r.RunID)
	return r, err
}

// Recommendations implements RecommendationStore.
func (s *SQLStore) Recommendations(ctx context.Context, category string) ([]pricing.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+recommendationColumns+`
		FROM optimization_results
		WHERE category_id = ?
		ORDER BY upc_id`), category)
	if err != nil {
		return nil, fmt.Errorf("storage.Recommendations: query %s: %w", category, err)
	}
	defer rows.Close()

	var out []pricing.Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.Recommendations: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Recommendation implements RecommendationStore.
func (s *SQLStore) Recommendation(ctx context.Context, category, productID string) (*pricing.Recommendation, error) {
	r, err := scanRecommendation(s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+recommendationColumns+`
		FROM optimization_results
		WHERE category_id = ? AND upc_id = ?`), category, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recommendation %s/%s: %w", category, productID, pricing.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Recommendation: %w", err)
	}
	return &r, nil
}

// RecordRun implements RunLog. Recording the same run ID twice overwrites it.
func (s *SQLStore) RecordRun(ctx context.Context, run pricing.Run) error {
	suboptimal := 0
	if run.Suboptimal {
		suboptimal = 1
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO optimization_runs (
			run_id, category_id, started_at, finished_at, status, products, excluded,
			baseline_revenue, baseline_profit, revenue, objective, nodes, suboptimal, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status      = excluded.status,
			products    = excluded.products,
			excluded    = excluded.excluded,
			baseline_revenue = excluded.baseline_revenue,
			baseline_profit  = excluded.baseline_profit,
			revenue     = excluded.revenue,
			objective   = excluded.objective,
			nodes       = excluded.nodes,
			suboptimal  = excluded.suboptimal,
			message     = excluded.message`),
		run.ID, run.Category,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		string(run.Status), run.Products, run.Excluded,
		run.BaselineRevenue, run.BaselineProfit, run.Revenue, run.Objective, run.Nodes,
		suboptimal, run.Message,
	)
	if err != nil {
		return fmt.Errorf("storage.RecordRun: %s: %w", run.ID, err)
	}
	return nil
}

// Runs implements RunLog, newest first. A non-positive limit returns every run.
func (s *SQLStore) Runs(ctx context.Context, category string, limit int) ([]pricing.Run, error) {
	query := `
		SELECT run_id, category_id, started_at, finished_at, status, products, excluded,
		       baseline_revenue, baseline_profit, revenue, objective, nodes, suboptimal, message
		FROM optimization_runs
		WHERE category_id = ?
		ORDER BY started_at DESC, run_id`
	args := []any{category}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Runs: query %s: %w", category, err)
	}
	defer rows.Close()

	var out []pricing.Run
	for rows.Next() {
		var (
			run               pricing.Run
			started, finished string
			status            string
			suboptimal        int
		)
		if err := rows.Scan(&run.ID, &run.Category, &started, &finished, &status, &run.Products, &run.Excluded,
			&run.BaselineRevenue, &run.BaselineProfit, &run.Revenue, &run.Objective, &run.Nodes,
			&suboptimal, &run.Message); err != nil {
			return nil, fmt.Errorf("storage.Runs: scan row: %w", err)
		}
		if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("storage.Runs: scan run %s started_at: %w", run.ID, err)
		}
		if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("storage.Runs: scan run %s finished_at: %w", run.ID, err)
		}
		run.Status = pricing.RunStatus(status)
		run.Suboptimal = suboptimal == 1
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

var (
	_ Catalog             = (*SQLStore)(nil)
	_ RecommendationStore = (*SQLStore)(nil)
	_ RunLog              = (*SQLStore)(nil)
)
