// Package scoring turns detector decisions into weighted fraud scores.
package scoring

import (
	"fmt"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// Calculator sums flag weights into a fraud score.
type Calculator struct {
	Weights domain.Weights

	// Scores at or above this are critical
	CriticalThreshold int
}

// NewCalculator creates a calculator with the given weights and threshold.
func NewCalculator(weights domain.Weights, criticalThreshold int) *Calculator {
	return &Calculator{
		Weights:           weights,
		CriticalThreshold: criticalThreshold,
	}
}

// Score returns the sum of the weights of every triggered flag.
func (c *Calculator) Score(flags domain.FlagSet) int {
	score := 0
	for _, f := range flags.Triggered() {
		score += c.Weights.Weight(f)
	}
	return score
}

// IsCritical reports whether a score meets the critical threshold.
func (c *Calculator) IsCritical(score int) bool {
	return score >= c.CriticalThreshold
}

// Apply scores each record and keeps only those with at least one
// triggered flag, preserving record order.
func (c *Calculator) Apply(records []domain.ExpenseRecord, sets []domain.FlagSet) ([]domain.FlaggedExpense, error) {
	if len(records) != len(sets) {
		return nil, fmt.Errorf("%d flag sets for %d records", len(sets), len(records))
	}

	var flagged []domain.FlaggedExpense
	for i, r := range records {
		if !sets[i].Any() {
			continue
		}
		flagged = append(flagged, domain.FlaggedExpense{
			ExpenseRecord: r,
			Flags:         sets[i],
			Score:         c.Score(sets[i]),
		})
	}
	return flagged, nil
}

// Contribution is one flag's share of a score.
type Contribution struct {
	Flag   domain.Flag
	Weight int
}

// Explain lists the weight each triggered flag added to the score.
func (c *Calculator) Explain(flags domain.FlagSet) []Contribution {
	var out []Contribution
	for _, f := range flags.Triggered() {
		out = append(out, Contribution{Flag: f, Weight: c.Weights.Weight(f)})
	}
	return out
}

// CountCritical returns how many flagged records meet the threshold.
func (c *Calculator) CountCritical(records []domain.FlaggedExpense) int {
	n := 0
	for _, r := range records {
		if c.IsCritical(r.Score) {
			n++
		}
	}
	return n
}
