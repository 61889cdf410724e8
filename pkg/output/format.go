// Package output provides utilities for formatting and displaying optimization results.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/iwvelando/pricing-optimizer/internal/pipeline"
	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/format"
	"github.com/iwvelando/pricing-optimizer/pkg/optimization"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// Write renders the recommendations of every report in the requested format.
func Write(w io.Writer, outputFormat string, reports []*pipeline.Report) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		return PrettyFormat(w, reports)
	case constants.OutputFormatCSV:
		return CsvFormat(w, reports)
	case constants.OutputFormatYAML:
		return YamlFormat(w, reports)
	case constants.OutputFormatNone:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, reports []*pipeline.Report) error {
	for i, report := range reports {
		if report == nil {
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "--- Recommendations for category %s ---\n", report.Summary.Category)

		table := tablewriter.NewWriter(w)
		table.Header("Product", "Elasticity", "Current", "Recommended", "Change", "Revenue", "Profit")
		for _, rec := range report.Recommendations {
			table.Append(
				rec.ProductID,
				strconv.FormatFloat(rec.Elasticity, 'f', 2, 64),
				format.Currency(rec.BaselinePrice),
				format.Currency(rec.RecommendedPrice),
				format.Percent(rec.PctChange),
				format.Currency(rec.PredictedRevenue),
				format.Currency(rec.PredictedProfit),
			)
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering recommendations: %w", err)
		}

		writeSummary(w, report.Summary)
		writeExclusions(w, report.Exclusions)
	}
	return nil
}

func writeSummary(w io.Writer, s optimization.Summary) {
	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(w, "Products optimized: %d (excluded: %d)\n", s.Products, s.Excluded)
	fmt.Fprintf(w, "Baseline revenue: %s | Planned revenue: %s (%s) | Floor: %s\n",
		format.Currency(s.BaselineRevenue), format.Currency(s.Revenue), format.Percent(s.RevenueChange()), format.Currency(s.Floor))
	fmt.Fprintf(w, "Baseline profit: %s | Planned profit: %s | Lift: %s\n",
		format.Currency(s.BaselineProfit), format.Currency(s.Objective), format.Currency(s.ProfitLift()))
	status := "optimal"
	if s.Suboptimal {
		status = "suboptimal"
	}
	_, _ = p.Fprintf(w, "Solver: %s after %d nodes\n", status, s.Nodes)
	for _, note := range s.Notes {
		fmt.Fprintf(w, "Note: %s\n", note)
	}
}

func writeExclusions(w io.Writer, exclusions []pricing.Exclusion) {
	for _, ex := range exclusions {
		fmt.Fprintf(w, "Excluded %s: %v\n", ex.ProductID, ex.Reason)
	}
}

// CsvFormat outputs in comma-separated value format, one row per product.
func CsvFormat(w io.Writer, reports []*pipeline.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"category_id", "upc_id", "elasticity", "current_price", "recommended_price",
		"price_change_pct", "predicted_revenue", "predicted_profit", "run_id",
	}); err != nil {
		return err
	}
	for _, report := range reports {
		if report == nil {
			continue
		}
		for _, rec := range report.Recommendations {
			if err := cw.Write([]string{
				rec.Category,
				rec.ProductID,
				strconv.FormatFloat(rec.Elasticity, 'f', -1, 64),
				plainAmount(rec.BaselinePrice),
				plainAmount(rec.RecommendedPrice),
				strconv.FormatFloat(rec.PctChange, 'f', 6, 64),
				plainAmount(rec.PredictedRevenue),
				plainAmount(rec.PredictedProfit),
				rec.RunID,
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// plainAmount renders money with two decimals and no separators.
func plainAmount(v float64) string {
	return strconv.FormatFloat(format.Cents(v), 'f', 2, 64)
}

type exclusionDocument struct {
	ProductID string `yaml:"upc_id"`
	Reason    string `yaml:"reason"`
}

type reportDocument struct {
	RunID           string                   `yaml:"run_id,omitempty"`
	Status          pricing.RunStatus        `yaml:"status,omitempty"`
	Summary         optimization.Summary     `yaml:"summary"`
	Recommendations []pricing.Recommendation `yaml:"recommendations"`
	Exclusions      []exclusionDocument      `yaml:"exclusions,omitempty"`
}

// YamlFormat outputs one YAML document listing every report.
func YamlFormat(w io.Writer, reports []*pipeline.Report) error {
	docs := make([]reportDocument, 0, len(reports))
	for _, report := range reports {
		if report == nil {
			continue
		}
		doc := reportDocument{
			RunID:           report.Run.ID,
			Status:          report.Run.Status,
			Summary:         report.Summary,
			Recommendations: report.Recommendations,
		}
		for _, ex := range report.Exclusions {
			doc.Exclusions = append(doc.Exclusions, exclusionDocument{ProductID: ex.ProductID, Reason: fmt.Sprint(ex.Reason)})
		}
		docs = append(docs, doc)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"reports": docs}); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

// WriteScenarios renders the simulated scenario grid of every product.
func WriteScenarios(w io.Writer, outputFormat string, reports []*pipeline.Report) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		return prettyScenarios(w, reports)
	case constants.OutputFormatCSV:
		return csvScenarios(w, reports)
	case constants.OutputFormatYAML:
		var scenarios []pricing.PriceScenario
		for _, report := range reports {
			for _, grid := range report.Scenarios {
				scenarios = append(scenarios, grid.Scenarios...)
			}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"scenarios": scenarios}); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case constants.OutputFormatNone:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

func prettyScenarios(w io.Writer, reports []*pipeline.Report) error {
	p := message.NewPrinter(language.English)
	for _, report := range reports {
		for _, grid := range report.Scenarios {
			_, _ = p.Fprintf(w, "--- Scenarios for %s/%s (elasticity %.2f, baseline volume %.1f) ---\n",
				grid.Product.Category, grid.Product.ID, grid.Elasticity.Elasticity, grid.Product.Volume)
			table := tablewriter.NewWriter(w)
			table.Header("#", "Price", "Change", "Revenue Index", "Profit Index", "Revenue", "Profit")
			for _, s := range grid.Scenarios {
				marker := strconv.Itoa(s.Index)
				if s.Index == grid.Anchor {
					marker += "*"
				}
				table.Append(
					marker,
					format.Currency(s.Price),
					format.Percent(s.PctChange),
					strconv.FormatFloat(s.RevenueIndex, 'f', 4, 64),
					strconv.FormatFloat(s.ProfitIndex, 'f', 4, 64),
					format.Currency(s.Revenue),
					format.Currency(s.Profit),
				)
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("rendering scenarios: %w", err)
			}
		}
		writeExclusions(w, report.Exclusions)
	}
	return nil
}

func csvScenarios(w io.Writer, reports []*pipeline.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"category_id", "upc_id", "index", "simulated_price", "price_change_pct",
		"elasticity", "revenue_index", "profit_index", "revenue", "profit",
	}); err != nil {
		return err
	}
	for _, report := range reports {
		for _, grid := range report.Scenarios {
			for _, s := range grid.Scenarios {
				if err := cw.Write([]string{
					grid.Product.Category,
					s.ProductID,
					strconv.Itoa(s.Index),
					strconv.FormatFloat(s.Price, 'f', 4, 64),
					strconv.FormatFloat(s.PctChange, 'f', 6, 64),
					strconv.FormatFloat(s.Elasticity, 'f', -1, 64),
					strconv.FormatFloat(s.RevenueIndex, 'f', 6, 64),
					strconv.FormatFloat(s.ProfitIndex, 'f', 6, 64),
					plainAmount(s.Revenue),
					plainAmount(s.Profit),
				}); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
