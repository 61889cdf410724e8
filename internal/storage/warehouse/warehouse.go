// Package warehouse reads the elasticity catalog and the historical panel
// from a ClickHouse warehouse.
package warehouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/iwvelando/pricing-optimizer/internal/storage"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"go.uber.org/zap"
)

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// Addr returns the host:port of the native protocol endpoint.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) options() *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{c.Addr()},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		Debug: c.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}
}

// Source implements storage.Source and storage.ElasticityLookup over ClickHouse.
type Source struct {
	conn   clickhouse.Conn
	logger *zap.Logger
}

// Open connects to the warehouse. The connection is lazy; call Ping to verify it.
func Open(cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.Host == "" {
		return nil, pricing.InvalidConfigurationf("warehouse host is required")
	}
	conn, err := clickhouse.Open(cfg.options())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{conn: conn, logger: logger}, nil
}

// Ping checks database connectivity
func (s *Source) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Source) Close() error {
	return s.conn.Close()
}

// Elasticities returns the catalog rows of a category ordered by product.
func (s *Source) Elasticities(ctx context.Context, category string) ([]pricing.ElasticityEstimate, error) {
	query := `
		SELECT toString(category_id), toString(upc_id), toFloat64(elasticity),
		       toFloat64(ci_lower), toFloat64(ci_upper), toFloat64(promo_lift)
		FROM elasticity_catalog
		WHERE category_id = ?
		ORDER BY upc_id
	`
	rows, err := s.conn.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query elasticities for %s: %w", category, err)
	}
	defer rows.Close()

	var out []pricing.ElasticityEstimate
	for rows.Next() {
		var e pricing.ElasticityEstimate
		if err := rows.Scan(&e.Category, &e.ProductID, &e.Elasticity, &e.CILower, &e.CIUpper, &e.PromoLift); err != nil {
			return nil, fmt.Errorf("failed to scan elasticity: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("loaded elasticities from warehouse",
		zap.String("op", "warehouse.Elasticities"),
		zap.String("category", category),
		zap.Int("rows", len(out)),
	)
	return out, nil
}

// Elasticity returns one catalog row or pricing.ErrNotFound.
func (s *Source) Elasticity(ctx context.Context, category, productID string) (*pricing.ElasticityEstimate, error) {
	query := `
		SELECT toString(category_id), toString(upc_id), toFloat64(elasticity),
		       toFloat64(ci_lower), toFloat64(ci_upper), toFloat64(promo_lift)
		FROM elasticity_catalog
		WHERE category_id = ? AND upc_id = ?
		LIMIT 1
	`
	rows, err := s.conn.Query(ctx, query, category, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query elasticity %s/%s: %w", category, productID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("elasticity %s/%s: %w", category, productID, pricing.ErrNotFound)
	}
	var e pricing.ElasticityEstimate
	if err := rows.Scan(&e.Category, &e.ProductID, &e.Elasticity, &e.CILower, &e.CIUpper, &e.PromoLift); err != nil {
		return nil, fmt.Errorf("failed to scan elasticity: %w", err)
	}
	return &e, nil
}

// Panel returns the panel rows of a category ordered by product and week.
func (s *Source) Panel(ctx context.Context, category string) ([]pricing.PanelObservation, error) {
	query := `
		SELECT toString(category_id), toString(upc_id), toInt64(week_id),
		       toFloat64(log_price), toFloat64(log_sales)
		FROM elasticity_ready_panel
		WHERE category_id = ?
		ORDER BY upc_id, week_id
	`
	rows, err := s.conn.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query panel for %s: %w", category, err)
	}
	defer rows.Close()

	var out []pricing.PanelObservation
	for rows.Next() {
		var (
			o    pricing.PanelObservation
			week int64
		)
		if err := rows.Scan(&o.Category, &o.ProductID, &week, &o.LogPrice, &o.LogVolume); err != nil {
			return nil, fmt.Errorf("failed to scan panel row: %w", err)
		}
		o.Period = int(week)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		s.logger.Warn("warehouse panel is empty",
			zap.String("op", "warehouse.Panel"),
			zap.String("category", category),
		)
	}
	return out, nil
}

var _ storage.Catalog = (*Source)(nil)
