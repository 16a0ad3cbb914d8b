package scoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "riskaccept/pkg/domain-errors"
)

func TestScore_Deterministic(t *testing.T) {
	for l := MinRating; l <= MaxRating; l++ {
		for i := MinRating; i <= MaxRating; i++ {
			got, err := Score(l, i)
			require.NoError(t, err)
			assert.Equal(t, l*i, got, "Score(%d,%d)", l, i)
		}
	}
}

func TestScore_RejectsOutOfRange(t *testing.T) {
	cases := []struct{ l, i int }{
		{0, 3}, {6, 3}, {3, 0}, {3, 6}, {-1, -1}, {100, 1},
	}
	for _, c := range cases {
		_, err := Score(c.l, c.i)
		require.Error(t, err, "Score(%d,%d)", c.l, c.i)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}

func TestAppetiteMax_MonotonicAsTierLoosens(t *testing.T) {
	prev := 0
	for _, a := range Appetites {
		limit, err := AppetiteMax(a)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, limit, prev, "tier %s", a)
		prev = limit
	}
}

func TestAppetiteMax_UnknownTier(t *testing.T) {
	_, err := AppetiteMax("EXTREME")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestBreach_Monotonic(t *testing.T) {
	for _, a := range Appetites {
		limit, err := AppetiteMax(a)
		require.NoError(t, err)

		for score := MinScore; score <= MaxScore; score++ {
			v, err := Breach(score, a)
			require.NoError(t, err)
			if score <= limit {
				assert.False(t, v.Breached, "%s score %d", a, score)
				assert.Zero(t, v.Difference)
			} else {
				assert.True(t, v.Breached, "%s score %d", a, score)
				assert.Equal(t, score-limit, v.Difference)
			}
		}
	}
}

func TestBreach_KnownValues(t *testing.T) {
	v, err := Breach(20, AppetiteModerate)
	require.NoError(t, err)
	assert.Equal(t, Verdict{Breached: true, Difference: 8}, v)

	v, err = Breach(12, AppetiteModerate)
	require.NoError(t, err)
	assert.Equal(t, Verdict{}, v)
}

func TestAssess(t *testing.T) {
	score, v, err := Assess(4, 4, AppetiteLow)
	require.NoError(t, err)
	assert.Equal(t, 16, score)
	assert.Equal(t, Verdict{Breached: true, Difference: 10}, v)

	_, _, err = Assess(0, 4, AppetiteLow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestBreach_ConcurrentReaders(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for score := MinScore; score <= MaxScore; score++ {
				_, _ = Breach(score, AppetiteModerate)
			}
		}()
	}
	wg.Wait()
}

func TestAppetiteLabel(t *testing.T) {
	assert.Equal(t, "Low to Moderate", AppetiteLowToModerate.Label())
	assert.Equal(t, "CUSTOM", Appetite("CUSTOM").Label())
}
