// Package constants provides shared constants for the pricing-optimizer application.
package constants

import "time"

// Pricing model defaults
const (
	// DefaultMinChangePct is the lower bound of the candidate price grid as a signed fraction
	DefaultMinChangePct = -0.20

	// DefaultMaxChangePct is the upper bound of the candidate price grid as a signed fraction
	DefaultMaxChangePct = 0.20

	// DefaultSteps is the number of candidate prices per product
	DefaultSteps = 20

	// MinSteps is the smallest usable grid resolution
	MinSteps = 2

	// DefaultMinRevenuePct is the fraction of baseline revenue the plan must retain
	DefaultMinRevenuePct = 0.95

	// DefaultMarginFraction is the assumed unit cost as a fraction of price (30% margin)
	DefaultMarginFraction = 0.70

	// MarginEpsilon is the floor applied to a non-positive baseline unit margin
	MarginEpsilon = 0.01
)

// Solver defaults
const (
	// DefaultTimeLimit bounds the wall-clock time of a single solve
	DefaultTimeLimit = 30 * time.Second

	// DefaultNodeLimit bounds the number of branch-and-bound nodes of a single solve
	DefaultNodeLimit = 200000

	// BoundHull selects the convex-hull LP relaxation
	BoundHull = "hull"

	// BoundSimplex selects the simplex LP relaxation
	BoundSimplex = "simplex"

	// FeasibilityTolerance is the relative slack allowed on the revenue floor
	FeasibilityTolerance = 1e-9

	// ObjectiveTolerance is the relative gap under which two objectives tie
	ObjectiveTolerance = 1e-9
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatYAML is the YAML output format
	OutputFormatYAML = "yaml"

	// OutputFormatNone suppresses result output
	OutputFormatNone = "none"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// EnvPrefix is the prefix of environment variable overrides (PRICING_OPTIMIZER_STEPS)
	EnvPrefix = "PRICING"
)

// Storage defaults
const (
	// DriverSQLite selects the embedded SQLite driver
	DriverSQLite = "sqlite"

	// DriverPostgres selects the Postgres driver
	DriverPostgres = "postgres"

	// DefaultDSN is the default SQLite database file
	DefaultDSN = "pricing.db"

	// DefaultWarehousePort is the ClickHouse native protocol port
	DefaultWarehousePort = 9000
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the read API
	DefaultServerAddress = ":8080"

	// DefaultRateLimit is the sustained request rate of the read API (requests/second)
	DefaultRateLimit = 20.0

	// DefaultBurst is the request burst allowed by the read API limiter
	DefaultBurst = 40

	// DefaultMaxRequestSize caps request bodies of the read API
	DefaultMaxRequestSize = "64K"

	// DefaultMaxRequestSizeBytes is DefaultMaxRequestSize in bytes
	DefaultMaxRequestSizeBytes = 64 * 1024

	// ShutdownTimeout bounds the graceful shutdown of the read API
	ShutdownTimeout = 10 * time.Second
)
