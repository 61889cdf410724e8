// Package optimization provides shared data structures for optimization results.
package optimization

// Summary captures the result of a single category optimization.
type Summary struct {
	Category        string   `json:"category" yaml:"category"`
	Products        int      `json:"products" yaml:"products"`
	Excluded        int      `json:"excluded" yaml:"excluded"`
	BaselineRevenue float64  `json:"baselineRevenue" yaml:"baselineRevenue"`
	BaselineProfit  float64  `json:"baselineProfit" yaml:"baselineProfit"`
	Floor           float64  `json:"floor" yaml:"floor"`
	Revenue         float64  `json:"revenue" yaml:"revenue"`
	Objective       float64  `json:"objective" yaml:"objective"`
	Headroom        float64  `json:"headroom" yaml:"headroom"`
	Nodes           int      `json:"nodes" yaml:"nodes"`
	Optimal         bool     `json:"optimal" yaml:"optimal"`
	Suboptimal      bool     `json:"suboptimal" yaml:"suboptimal"`
	Notes           []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// RevenueChange returns the fractional change of planned revenue against baseline.
func (s Summary) RevenueChange() float64 {
	if s.BaselineRevenue == 0 {
		return 0
	}
	return s.Revenue/s.BaselineRevenue - 1
}

// ProfitLift returns the planned profit gain over baseline in currency units.
func (s Summary) ProfitLift() float64 {
	return s.Objective - s.BaselineProfit
}
