package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingBaselineData marks a product with an elasticity but no historical panel rows.
	ErrMissingBaselineData = errors.New("missing baseline data")

	// ErrInvalidElasticity marks an elasticity estimate that is not a finite number.
	ErrInvalidElasticity = errors.New("invalid elasticity")

	// ErrDegenerateMargin marks a product whose assumed cost leaves no positive margin.
	ErrDegenerateMargin = errors.New("degenerate margin")

	// ErrInfeasible is returned when no selection satisfies the revenue floor.
	ErrInfeasible = errors.New("infeasible")

	// ErrSolverTimeout is returned when the solver exhausts its time or node budget.
	ErrSolverTimeout = errors.New("solver timeout")

	// ErrInvalidConfiguration is returned for options rejected before any computation.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
)

// InfeasibleError describes which constraint could not be met.
type InfeasibleError struct {
	Category string
	// Required is the revenue floor (threshold x baseline revenue).
	Required float64
	// MaxAttainable is the revenue of the per-product revenue-maximizing selection.
	MaxAttainable float64
	// AnchorRevenue is the revenue of holding every product at its anchor price.
	AnchorRevenue float64
}

func (e *InfeasibleError) Error() string {
	msg := fmt.Sprintf("category %s: revenue floor constraint is binding: requires %.2f but at most %.2f is attainable with one price per product",
		e.Category, e.Required, e.MaxAttainable)
	if e.AnchorRevenue < e.Required {
		msg += fmt.Sprintf(" (holding all prices yields %.2f)", e.AnchorRevenue)
	}
	return msg
}

// Unwrap lets errors.Is match ErrInfeasible.
func (e *InfeasibleError) Unwrap() error {
	return ErrInfeasible
}

// InvalidConfigurationf wraps a formatted message with ErrInvalidConfiguration.
func InvalidConfigurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
