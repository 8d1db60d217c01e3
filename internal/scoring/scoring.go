// Package scoring implements the RICE, WSJF and PERT formulas used for
// backlog prioritization and range estimation.
package scoring

import "fmt"

// RICE computes (reach * impact * confidence) / effort.
// Effort must be positive; confidence is a 0..1 fraction.
func RICE(reach, impact, confidence, effort float64) (float64, error) {
	if reach < 0 {
		return 0, fmt.Errorf("reach must be non-negative")
	}
	if impact < 0 {
		return 0, fmt.Errorf("impact must be non-negative")
	}
	if confidence < 0 || confidence > 1 {
		return 0, fmt.Errorf("confidence must be between 0 and 1")
	}
	if effort <= 0 {
		return 0, fmt.Errorf("effort must be positive")
	}
	return reach * impact * confidence / effort, nil
}

// WSJF computes (business value + time criticality + risk reduction) / job size.
// Job size must be positive.
func WSJF(businessValue, timeCriticality, riskReduction, jobSize float64) (float64, error) {
	if businessValue < 0 || timeCriticality < 0 || riskReduction < 0 {
		return 0, fmt.Errorf("wsjf components must be non-negative")
	}
	if jobSize <= 0 {
		return 0, fmt.Errorf("job size must be positive")
	}
	return (businessValue + timeCriticality + riskReduction) / jobSize, nil
}

// PERT computes the three-point expected value (p10 + 4*p50 + p90) / 6.
// Requires p10 <= p50 <= p90.
func PERT(p10, p50, p90 float64) (float64, error) {
	if p10 < 0 {
		return 0, fmt.Errorf("estimates must be non-negative")
	}
	if p10 > p50 || p50 > p90 {
		return 0, fmt.Errorf("estimates must satisfy p10 <= p50 <= p90")
	}
	return (p10 + 4*p50 + p90) / 6, nil
}
