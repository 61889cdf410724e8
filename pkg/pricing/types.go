// Package pricing defines the domain records shared by the pricing pipeline:
// product baselines, elasticity estimates, simulated price scenarios and the
// recommendations persisted for each category.
package pricing

import "time"

// PanelObservation is one period of historical log-price and log-volume for a product.
type PanelObservation struct {
	Category  string  `json:"category_id" yaml:"category_id"`
	ProductID string  `json:"upc_id" yaml:"upc_id"`
	Period    int     `json:"week_id" yaml:"week_id"`
	LogPrice  float64 `json:"log_price" yaml:"log_price"`
	LogVolume float64 `json:"log_sales" yaml:"log_sales"`
}

// ElasticityEstimate is a calibrated own-price elasticity supplied by the estimation collaborator.
// The confidence bounds and promo lift are informational.
type ElasticityEstimate struct {
	Category   string  `json:"category_id" yaml:"category_id"`
	ProductID  string  `json:"upc_id" yaml:"upc_id"`
	Elasticity float64 `json:"elasticity" yaml:"elasticity"`
	CILower    float64 `json:"ci_lower" yaml:"ci_lower"`
	CIUpper    float64 `json:"ci_upper" yaml:"ci_upper"`
	PromoLift  float64 `json:"promo_lift" yaml:"promo_lift"`
}

// Product is the baseline state of one product at its current price.
type Product struct {
	ID       string
	Category string
	Price    float64
	Volume   float64
	Revenue  float64
	Profit   float64
	// Cost is the unit cost used for profit. When the assumed cost leaves no
	// positive margin it is lowered so that Price-Cost equals the margin epsilon.
	Cost             float64
	DegenerateMargin bool
}

// Margin returns the baseline unit margin.
func (p Product) Margin() float64 {
	return p.Price - p.Cost
}

// PriceScenario is one candidate price for a product and its simulated outcome.
type PriceScenario struct {
	ProductID    string  `json:"upc_id" yaml:"upc_id"`
	Index        int     `json:"index" yaml:"index"`
	Price        float64 `json:"simulated_price" yaml:"simulated_price"`
	PctChange    float64 `json:"price_change_pct" yaml:"price_change_pct"`
	Elasticity   float64 `json:"elasticity" yaml:"elasticity"`
	RevenueIndex float64 `json:"revenue_index" yaml:"revenue_index"`
	ProfitIndex  float64 `json:"profit_index" yaml:"profit_index"`
	Revenue      float64 `json:"revenue" yaml:"revenue"`
	Profit       float64 `json:"profit" yaml:"profit"`
}

// ScenarioGrid holds every simulated candidate of one product. Anchor is the
// position of the no-change scenario in Scenarios.
type ScenarioGrid struct {
	Product    Product
	Elasticity ElasticityEstimate
	Scenarios  []PriceScenario
	Anchor     int
}

// Recommendation is the persisted price decision for one product of a category.
type Recommendation struct {
	Category         string  `json:"category_id" yaml:"category_id"`
	ProductID        string  `json:"upc_id" yaml:"upc_id"`
	BaselinePrice    float64 `json:"current_price" yaml:"current_price"`
	RecommendedPrice float64 `json:"recommended_price" yaml:"recommended_price"`
	PctChange        float64 `json:"price_change_pct" yaml:"price_change_pct"`
	PredictedRevenue float64 `json:"predicted_revenue" yaml:"predicted_revenue"`
	PredictedProfit  float64 `json:"predicted_profit" yaml:"predicted_profit"`
	Elasticity       float64 `json:"elasticity" yaml:"elasticity"`
	RunID            string  `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// Exclusion records a product dropped from a run and why.
type Exclusion struct {
	ProductID string
	Reason    error
}

// RunStatus is the terminal state of an optimization run.
type RunStatus string

const (
	RunSucceeded  RunStatus = "succeeded"
	RunInfeasible RunStatus = "infeasible"
	RunTimeout    RunStatus = "timeout"
	RunCancelled  RunStatus = "cancelled"
	RunFailed     RunStatus = "failed"
)

// Run is the audit record of one category optimization.
type Run struct {
	ID              string    `json:"run_id" yaml:"run_id"`
	Category        string    `json:"category_id" yaml:"category_id"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at"`
	Status          RunStatus `json:"status" yaml:"status"`
	Products        int       `json:"products" yaml:"products"`
	Excluded        int       `json:"excluded" yaml:"excluded"`
	BaselineRevenue float64   `json:"baseline_revenue" yaml:"baseline_revenue"`
	BaselineProfit  float64   `json:"baseline_profit" yaml:"baseline_profit"`
	Revenue         float64   `json:"revenue" yaml:"revenue"`
	Objective       float64   `json:"objective" yaml:"objective"`
	Nodes           int       `json:"nodes" yaml:"nodes"`
	Suboptimal      bool      `json:"suboptimal" yaml:"suboptimal"`
	Message         string    `json:"message,omitempty" yaml:"message,omitempty"`
}
