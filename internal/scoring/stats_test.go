package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveOutliers_PassesSmallSamples(t *testing.T) {
	e := testEngine()

	in := []float64{-1e6, -900e6, -2e6}
	assert.Equal(t, in, e.removeOutliers(in, "test"), "below 4 points the fence is off")
}

func TestRemoveOutliers_DropsExtremeValue(t *testing.T) {
	e := testEngine()

	// Four ordinary burn quarters plus one absurd one.
	in := []float64{-5e6, -6e6, -5.5e6, -4.5e6, -5e9}
	out := e.removeOutliers(in, "test")

	assert.Len(t, out, 4)
	assert.NotContains(t, out, -5e9)
}

func TestRemoveOutliers_KeepsUniformValues(t *testing.T) {
	e := testEngine()

	in := []float64{-5e6, -5e6, -5e6, -5e6}
	assert.Equal(t, in, e.removeOutliers(in, "test"))
}

func TestRemoveOutliers_NeverReturnsEmpty(t *testing.T) {
	e := testEngine()

	// Whatever the fence does, an input with values yields values.
	in := []float64{-1, -10, -100, -1000, -10000}
	out := e.removeOutliers(in, "test")
	assert.NotEmpty(t, out)
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, -5e6, mean([]float64{-4e6, -6e6}))
}
