package config

import (
	"regexp"
	"strings"
	"time"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/mathutil"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
)

// categoryPattern restricts category identifiers to characters that are safe in
// logs, file names and URL paths. Queries are parameterized regardless.
var categoryPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// OptimizerConfig defines the price grid, the revenue floor and the solver
// limits of a category optimization.
type OptimizerConfig struct {
	Category         string        `yaml:"category,omitempty" mapstructure:"category"`
	Categories       []string      `yaml:"categories,omitempty" mapstructure:"categories"`
	MinChangePct     float64       `yaml:"minChangePct" mapstructure:"minChangePct"`
	MaxChangePct     float64       `yaml:"maxChangePct" mapstructure:"maxChangePct"`
	Steps            int           `yaml:"steps" mapstructure:"steps"`
	MinRevenuePct    float64       `yaml:"minRevenuePct" mapstructure:"minRevenuePct"`
	MarginFraction   float64       `yaml:"marginFraction" mapstructure:"marginFraction"`
	IncludeCurrent   bool          `yaml:"includeCurrent" mapstructure:"includeCurrent"`
	Bound            string        `yaml:"bound,omitempty" mapstructure:"bound"`
	TimeLimit        time.Duration `yaml:"timeLimit,omitempty" mapstructure:"timeLimit"`
	NodeLimit        int           `yaml:"nodeLimit,omitempty" mapstructure:"nodeLimit"`
	AcceptSuboptimal bool          `yaml:"acceptSuboptimal,omitempty" mapstructure:"acceptSuboptimal"`
}

// DefaultOptimizerConfig returns the settings used when nothing is configured.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MinChangePct:   constants.DefaultMinChangePct,
		MaxChangePct:   constants.DefaultMaxChangePct,
		Steps:          constants.DefaultSteps,
		MinRevenuePct:  constants.DefaultMinRevenuePct,
		MarginFraction: constants.DefaultMarginFraction,
		Bound:          constants.BoundHull,
		TimeLimit:      constants.DefaultTimeLimit,
		NodeLimit:      constants.DefaultNodeLimit,
	}
}

// CanonicalBound returns the canonical identifier for an LP bound name.
func CanonicalBound(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch trimmed {
	case "", "hull", "convex-hull", "convex_hull", "greedy":
		return constants.BoundHull
	case "simplex", "lp":
		return constants.BoundSimplex
	default:
		return trimmed
	}
}

// Normalize canonicalizes names and fills the solver limits, where zero means
// the built-in default. Grid bounds, steps, the revenue floor and the margin
// fraction are taken as given and left for Validate to check.
// LoadConfiguration fills keys absent from the file before this runs.
func (o *OptimizerConfig) Normalize() {
	if o == nil {
		return
	}
	o.Category = strings.TrimSpace(o.Category)
	for i := range o.Categories {
		o.Categories[i] = strings.TrimSpace(o.Categories[i])
	}

	o.Bound = CanonicalBound(o.Bound)
	if o.TimeLimit <= 0 {
		o.TimeLimit = constants.DefaultTimeLimit
	}
	if o.NodeLimit <= 0 {
		o.NodeLimit = constants.DefaultNodeLimit
	}
}

// Validate returns an error wrapping pricing.ErrInvalidConfiguration when the
// optimizer configuration cannot produce a well-formed problem.
func (o *OptimizerConfig) Validate() error {
	if o == nil {
		return pricing.InvalidConfigurationf("optimizer configuration cannot be nil")
	}

	o.Normalize()

	if o.Steps < constants.MinSteps {
		return pricing.InvalidConfigurationf("optimizer steps must be at least %d, got %d", constants.MinSteps, o.Steps)
	}
	if !mathutil.IsFinite(o.MinChangePct) || !mathutil.IsFinite(o.MaxChangePct) {
		return pricing.InvalidConfigurationf("optimizer price change bounds must be finite")
	}
	if o.MinChangePct >= o.MaxChangePct {
		return pricing.InvalidConfigurationf("optimizer minChangePct %.4f must be less than maxChangePct %.4f", o.MinChangePct, o.MaxChangePct)
	}
	if o.MinChangePct <= -1 {
		return pricing.InvalidConfigurationf("optimizer minChangePct %.4f would produce non-positive prices", o.MinChangePct)
	}
	if !mathutil.IsFinite(o.MinRevenuePct) || o.MinRevenuePct <= 0 || o.MinRevenuePct > 1 {
		return pricing.InvalidConfigurationf("optimizer minRevenuePct %.4f must be in (0, 1]", o.MinRevenuePct)
	}
	if !mathutil.IsFinite(o.MarginFraction) || o.MarginFraction < 0 {
		return pricing.InvalidConfigurationf("optimizer marginFraction %.4f must be a non-negative number", o.MarginFraction)
	}
	switch o.Bound {
	case constants.BoundHull, constants.BoundSimplex:
	default:
		return pricing.InvalidConfigurationf("optimizer bound %q is not supported", o.Bound)
	}
	for _, category := range o.CategoryList() {
		if err := ValidateCategory(category); err != nil {
			return err
		}
	}

	return nil
}

// CategoryList merges Category and Categories into an ordered list without
// duplicates or blanks.
func (o *OptimizerConfig) CategoryList() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(c string) {
		c = strings.TrimSpace(c)
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	add(o.Category)
	for _, c := range o.Categories {
		add(c)
	}
	return out
}

// ValidateCategory checks that a category identifier is non-empty and uses
// only letters, digits, dot, dash and underscore.
func ValidateCategory(category string) error {
	if strings.TrimSpace(category) == "" {
		return pricing.InvalidConfigurationf("category is required")
	}
	if !categoryPattern.MatchString(category) {
		return pricing.InvalidConfigurationf("category %q contains unsupported characters", category)
	}
	return nil
}
