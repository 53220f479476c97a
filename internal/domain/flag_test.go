package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagNames(t *testing.T) {
	for _, f := range AllFlags() {
		parsed, err := ParseFlag(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}

	_, err := ParseFlag("flag_unknown")
	assert.Error(t, err)
}

func TestFlagSet(t *testing.T) {
	var s FlagSet
	assert.False(t, s.Any())
	assert.Empty(t, s.Triggered())

	s.Set(FlagDuplicateTransaction, true)
	s.Set(FlagWeekend, true)
	assert.True(t, s.Any())
	assert.True(t, s.Has(FlagWeekend))
	assert.False(t, s.Has(FlagRoundValue))
	assert.Equal(t, []Flag{FlagWeekend, FlagDuplicateTransaction}, s.Triggered())

	t.Run("JSON", func(t *testing.T) {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var got FlagSet
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, s, got)

		err = json.Unmarshal([]byte(`{"flag_bogus":true}`), &got)
		assert.Error(t, err)
	})
}

func TestWeightsFromMap(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		w, err := WeightsFromMap(DefaultWeightMap())
		require.NoError(t, err)
		assert.Equal(t, DefaultWeights(), w)
		assert.Equal(t, 4, w.Weight(FlagDuplicateTransaction))
		assert.Equal(t, 3, w.Weight(FlagOutlierValue))
		assert.Equal(t, 2, w.Weight(FlagRoundValue))
		assert.Equal(t, 2, w.Weight(FlagHighPercentile))
		assert.Equal(t, 1, w.Weight(FlagWeekend))
	})

	t.Run("UnknownFlag", func(t *testing.T) {
		m := DefaultWeightMap()
		m["flag_moon_phase"] = 1
		_, err := WeightsFromMap(m)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	})

	t.Run("MissingFlag", func(t *testing.T) {
		m := DefaultWeightMap()
		delete(m, FlagWeekend.String())
		_, err := WeightsFromMap(m)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))
		assert.Contains(t, err.Error(), "flag_weekend")
	})

	t.Run("NegativeWeight", func(t *testing.T) {
		m := DefaultWeightMap()
		m[FlagRoundValue.String()] = -2
		_, err := WeightsFromMap(m)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	})
}
