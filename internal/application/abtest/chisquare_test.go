package abtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChiSquareTest_IdenticalRatesYieldHighPValue(t *testing.T) {
	clicks := []int64{100, 100}
	impressions := []int64{1000, 1000}
	_, pValue, df := chiSquareTest(clicks, impressions)
	assert.Equal(t, 1, df)
	assert.Greater(t, pValue, 0.9)
}

func TestChiSquareTest_StarklyDifferentRatesYieldLowPValue(t *testing.T) {
	clicks := []int64{500, 50}
	impressions := []int64{1000, 1000}
	chi2, pValue, df := chiSquareTest(clicks, impressions)
	assert.Equal(t, 1, df)
	assert.Greater(t, chi2, 10.0)
	assert.Less(t, pValue, 0.01)
}

func TestChiSquareTest_FewerThanTwoVariantsIsDegenerate(t *testing.T) {
	_, pValue, df := chiSquareTest([]int64{10}, []int64{100})
	assert.Equal(t, 1.0, pValue)
	assert.Equal(t, 0, df)
}

func TestChiSquareTest_ZeroImpressionsIsDegenerate(t *testing.T) {
	_, pValue, _ := chiSquareTest([]int64{0, 0}, []int64{0, 0})
	assert.Equal(t, 1.0, pValue)
}

func TestChiSquareSurvival_MatchesKnownCriticalValue(t *testing.T) {
	// The df=1, p=0.05 critical chi2 value is ~3.841.
	p := chiSquareSurvival(3.841, 1)
	assert.InDelta(t, 0.05, p, 0.001)
}
