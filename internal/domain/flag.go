package domain

import (
	"encoding/json"
	"fmt"
)

// Flag identifies one suspicion rule.
type Flag int

// The flag set is fixed; column order in every output follows this order.
const (
	FlagWeekend Flag = iota
	FlagRoundValue
	FlagOutlierValue
	FlagDuplicateTransaction
	FlagHighPercentile

	flagCount
)

var flagNames = [flagCount]string{
	FlagWeekend:              "flag_weekend",
	FlagRoundValue:           "flag_round_value",
	FlagOutlierValue:         "flag_outlier_value",
	FlagDuplicateTransaction: "flag_duplicate_transaction",
	FlagHighPercentile:       "flag_high_percentile",
}

// AllFlags returns every flag in column order.
func AllFlags() []Flag {
	flags := make([]Flag, flagCount)
	for i := range flags {
		flags[i] = Flag(i)
	}
	return flags
}

// String returns the flag's column name.
func (f Flag) String() string {
	if f < 0 || f >= flagCount {
		return fmt.Sprintf("flag(%d)", int(f))
	}
	return flagNames[f]
}

// ParseFlag resolves a column name back to its flag.
func ParseFlag(name string) (Flag, error) {
	for i, n := range flagNames {
		if n == name {
			return Flag(i), nil
		}
	}
	return 0, fmt.Errorf("unknown flag %q", name)
}

// FlagSet holds one decision per flag for a single record.
type FlagSet [flagCount]bool

// Has reports whether f triggered.
func (s FlagSet) Has(f Flag) bool {
	return s[f]
}

// Set records the decision for f.
func (s *FlagSet) Set(f Flag, v bool) {
	s[f] = v
}

// Any reports whether at least one flag triggered.
func (s FlagSet) Any() bool {
	for _, v := range s {
		if v {
			return true
		}
	}
	return false
}

// Triggered lists the flags that fired, in column order.
func (s FlagSet) Triggered() []Flag {
	var out []Flag
	for i, v := range s {
		if v {
			out = append(out, Flag(i))
		}
	}
	return out
}

// Map returns the set keyed by column name.
func (s FlagSet) Map() map[string]bool {
	m := make(map[string]bool, flagCount)
	for i, v := range s {
		m[flagNames[i]] = v
	}
	return m
}

// MarshalJSON encodes the set as a name to bool object.
func (s FlagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// UnmarshalJSON decodes a name to bool object. Unknown names are rejected.
func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = FlagSet{}
	for name, v := range m {
		f, err := ParseFlag(name)
		if err != nil {
			return err
		}
		s[f] = v
	}
	return nil
}

// Weights assigns each flag its contribution to the fraud score.
type Weights [flagCount]int

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	var w Weights
	w[FlagDuplicateTransaction] = 4
	w[FlagOutlierValue] = 3
	w[FlagRoundValue] = 2
	w[FlagHighPercentile] = 2
	w[FlagWeekend] = 1
	return w
}

// DefaultWeightMap returns DefaultWeights keyed by column name.
func DefaultWeightMap() map[string]int {
	return DefaultWeights().Map()
}

// WeightsFromMap validates a name to weight mapping. Every flag must be
// present exactly once and weights cannot be negative.
func WeightsFromMap(m map[string]int) (Weights, error) {
	var w Weights
	var seen FlagSet
	for name, weight := range m {
		f, err := ParseFlag(name)
		if err != nil {
			return Weights{}, fmt.Errorf("%w: weights: %v", ErrInvalidConfiguration, err)
		}
		if weight < 0 {
			return Weights{}, fmt.Errorf("%w: weights: %s has negative weight %d", ErrInvalidConfiguration, name, weight)
		}
		w[f] = weight
		seen[f] = true
	}
	for i, ok := range seen {
		if !ok {
			return Weights{}, fmt.Errorf("%w: weights: missing %s", ErrInvalidConfiguration, flagNames[i])
		}
	}
	return w, nil
}

// Weight returns the weight of f.
func (w Weights) Weight(f Flag) int {
	return w[f]
}

// Map returns the weights keyed by column name.
func (w Weights) Map() map[string]int {
	m := make(map[string]int, flagCount)
	for i, v := range w {
		m[flagNames[i]] = v
	}
	return m
}
