// Package validation provides input and option validation utilities.
package validation

import (
	"fmt"
	"math"
	"sort"

	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
)

// ValidateElasticity checks one catalog row and returns warnings.
func ValidateElasticity(e pricing.ElasticityEstimate) []string {
	var warnings []string
	name := fmt.Sprintf("%s/%s", e.Category, e.ProductID)

	if e.Category == "" || e.ProductID == "" {
		warnings = append(warnings, fmt.Sprintf("Elasticity row '%s' is missing its category or product id", name))
	}
	if math.IsNaN(e.Elasticity) || math.IsInf(e.Elasticity, 0) {
		warnings = append(warnings, fmt.Sprintf("Elasticity of '%s' is not a finite number - product will be excluded", name))
		return warnings
	}
	if e.Elasticity > 0 {
		warnings = append(warnings, fmt.Sprintf("Elasticity of '%s' is positive (%.3f) - demand rises with price", name, e.Elasticity))
	}
	if e.CILower != 0 || e.CIUpper != 0 {
		if e.CILower > e.CIUpper {
			warnings = append(warnings, fmt.Sprintf("Confidence interval of '%s' is inverted (%.3f > %.3f)", name, e.CILower, e.CIUpper))
		} else if e.Elasticity < e.CILower || e.Elasticity > e.CIUpper {
			warnings = append(warnings, fmt.Sprintf("Elasticity of '%s' (%.3f) lies outside its confidence interval [%.3f, %.3f]",
				name, e.Elasticity, e.CILower, e.CIUpper))
		}
	}
	return warnings
}

// ValidatePanelRow checks one panel observation and returns warnings.
func ValidatePanelRow(o pricing.PanelObservation) []string {
	var warnings []string
	name := fmt.Sprintf("%s/%s week %d", o.Category, o.ProductID, o.Period)

	if o.Category == "" || o.ProductID == "" {
		warnings = append(warnings, fmt.Sprintf("Panel row '%s' is missing its category or product id", name))
	}
	for label, v := range map[string]float64{"log_price": o.LogPrice, "log_sales": o.LogVolume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			warnings = append(warnings, fmt.Sprintf("Panel row '%s' has a non-finite %s - row will be skipped", name, label))
		}
	}
	sort.Strings(warnings)
	return warnings
}

// InputValidator checks a set of inputs for consistency before they are loaded.
type InputValidator struct {
	Elasticities []pricing.ElasticityEstimate
	Panel        []pricing.PanelObservation
}

// ValidateAll validates every row and the relation between catalog and panel
// and returns warnings.
func (iv *InputValidator) ValidateAll() []string {
	var warnings []string

	type productKey struct{ category, product string }
	catalog := make(map[productKey]bool, len(iv.Elasticities))
	for _, e := range iv.Elasticities {
		warnings = append(warnings, ValidateElasticity(e)...)
		key := productKey{e.Category, e.ProductID}
		if catalog[key] {
			warnings = append(warnings, fmt.Sprintf("Elasticity of '%s/%s' is listed more than once - the last row wins", e.Category, e.ProductID))
		}
		catalog[key] = true
	}

	type periodKey struct {
		productKey
		period int
	}
	seen := make(map[periodKey]bool, len(iv.Panel))
	withPanel := make(map[productKey]bool)
	for _, o := range iv.Panel {
		warnings = append(warnings, ValidatePanelRow(o)...)
		key := periodKey{productKey{o.Category, o.ProductID}, o.Period}
		if seen[key] {
			warnings = append(warnings, fmt.Sprintf("Panel row '%s/%s week %d' is duplicated", o.Category, o.ProductID, o.Period))
		}
		seen[key] = true
		withPanel[key.productKey] = true
	}

	var missing []string
	for key := range catalog {
		if !withPanel[key] {
			missing = append(missing, fmt.Sprintf("Product '%s/%s' has an elasticity but no panel rows - product will be excluded", key.category, key.product))
		}
	}
	sort.Strings(missing)
	return append(warnings, missing...)
}
