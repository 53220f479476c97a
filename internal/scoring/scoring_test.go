package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

func flags(fs ...domain.Flag) domain.FlagSet {
	var s domain.FlagSet
	for _, f := range fs {
		s.Set(f, true)
	}
	return s
}

func TestScore(t *testing.T) {
	calc := NewCalculator(domain.DefaultWeights(), 5)

	tests := []struct {
		name  string
		flags domain.FlagSet
		want  int
	}{
		{"None", flags(), 0},
		{"WeekendOnly", flags(domain.FlagWeekend), 1},
		{"DuplicateAndOutlier", flags(domain.FlagDuplicateTransaction, domain.FlagOutlierValue), 7},
		{"RoundAndPercentile", flags(domain.FlagRoundValue, domain.FlagHighPercentile), 4},
		{"All", flags(domain.AllFlags()...), 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.Score(tt.flags))
		})
	}
}

func TestScoreIsMonotonic(t *testing.T) {
	calc := NewCalculator(domain.DefaultWeights(), 5)
	all := domain.AllFlags()

	// Every subset of flags, extended by every flag it lacks.
	for mask := 0; mask < 1<<len(all); mask++ {
		var base domain.FlagSet
		for i, f := range all {
			if mask&(1<<i) != 0 {
				base.Set(f, true)
			}
		}
		for _, f := range all {
			if base.Has(f) {
				continue
			}
			extended := base
			extended.Set(f, true)
			assert.GreaterOrEqual(t, calc.Score(extended), calc.Score(base))
		}
	}
}

func TestApply(t *testing.T) {
	calc := NewCalculator(domain.DefaultWeights(), 5)
	records := []domain.ExpenseRecord{
		{EntityID: "1", SupplierName: "a"},
		{EntityID: "1", SupplierName: "b"},
		{EntityID: "1", SupplierName: "c"},
	}
	sets := []domain.FlagSet{
		flags(domain.FlagWeekend),
		flags(),
		flags(domain.FlagDuplicateTransaction, domain.FlagRoundValue),
	}

	flagged, err := calc.Apply(records, sets)
	require.NoError(t, err)
	require.Len(t, flagged, 2)

	assert.Equal(t, "a", flagged[0].SupplierName)
	assert.Equal(t, 1, flagged[0].Score)
	assert.Equal(t, "c", flagged[1].SupplierName)
	assert.Equal(t, 6, flagged[1].Score)
	assert.Equal(t, 1, calc.CountCritical(flagged))

	t.Run("NothingFlagged", func(t *testing.T) {
		flagged, err := calc.Apply(records, make([]domain.FlagSet, 3))
		require.NoError(t, err)
		assert.Empty(t, flagged)
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := calc.Apply(records, sets[:1])
		assert.Error(t, err)
	})
}

func TestExplain(t *testing.T) {
	calc := NewCalculator(domain.DefaultWeights(), 5)
	got := calc.Explain(flags(domain.FlagWeekend, domain.FlagOutlierValue))
	assert.Equal(t, []Contribution{
		{Flag: domain.FlagWeekend, Weight: 1},
		{Flag: domain.FlagOutlierValue, Weight: 3},
	}, got)
}

func TestIsCritical(t *testing.T) {
	calc := NewCalculator(domain.DefaultWeights(), 5)
	assert.False(t, calc.IsCritical(4))
	assert.True(t, calc.IsCritical(5))
	assert.True(t, calc.IsCritical(9))
}
