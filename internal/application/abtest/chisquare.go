package abtest

import "math"

// chiSquareTest runs Pearson's chi-square test of independence on a
// clicks/impressions contingency table, one row per variant, two columns
// (clicked, not-clicked). No library in the retrieval pack offers this (no
// gonum/stat or similar was pulled in anywhere in the corpus), so the
// regularized incomplete gamma function behind the p-value is computed in
// this file on top of math.Lgamma rather than by adding a dependency.
func chiSquareTest(clicks, impressions []int64) (chi2, pValue float64, df int) {
	n := len(clicks)
	if n < 2 {
		return 0, 1, 0
	}

	var totalClicks, totalImpressions int64
	for i := range clicks {
		totalClicks += clicks[i]
		totalImpressions += impressions[i]
	}
	if totalImpressions == 0 || totalClicks == 0 || totalClicks == totalImpressions {
		return 0, 1, n - 1
	}
	overallRate := float64(totalClicks) / float64(totalImpressions)

	for i := range clicks {
		expectedClicks := overallRate * float64(impressions[i])
		expectedNonClicks := (1 - overallRate) * float64(impressions[i])
		observedClicks := float64(clicks[i])
		observedNonClicks := float64(impressions[i] - clicks[i])
		if expectedClicks > 0 {
			chi2 += (observedClicks - expectedClicks) * (observedClicks - expectedClicks) / expectedClicks
		}
		if expectedNonClicks > 0 {
			chi2 += (observedNonClicks - expectedNonClicks) * (observedNonClicks - expectedNonClicks) / expectedNonClicks
		}
	}

	df = n - 1
	return chi2, chiSquareSurvival(chi2, df), df
}

// chiSquareSurvival returns P(X > chi2) for a chi-squared distribution with
// df degrees of freedom: the regularized upper incomplete gamma function
// Q(df/2, chi2/2).
func chiSquareSurvival(chi2 float64, df int) float64 {
	if df <= 0 || chi2 <= 0 {
		return 1
	}
	return upperIncompleteGammaRegularized(float64(df)/2, chi2/2)
}

// upperIncompleteGammaRegularized computes Q(a, x), using the series
// expansion for x < a+1 and the continued fraction otherwise (Numerical
// Recipes §6.2), which is the standard way to evaluate it without a
// dedicated special-functions library.
func upperIncompleteGammaRegularized(a, x float64) float64 {
	if x < 0 || a <= 0 {
		return 1
	}
	if x < a+1 {
		return 1 - lowerGammaSeries(a, x)
	}
	return gammaContinuedFraction(a, x)
}

func lowerGammaSeries(a, x float64) float64 {
	if x == 0 {
		return 0
	}
	gln, _ := math.Lgamma(a)
	ap := a
	sum := 1.0 / a
	del := sum
	for n := 0; n < 200; n++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*1e-12 {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-gln)
}

func gammaContinuedFraction(a, x float64) float64 {
	const fpmin = 1e-300
	gln, _ := math.Lgamma(a)
	b := x + 1 - a
	c := 1 / fpmin
	d := 1 / b
	h := d
	for i := 1; i < 200; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = b + an/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < 1e-12 {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-gln) * h
}
