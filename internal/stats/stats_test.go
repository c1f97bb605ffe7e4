package stats

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	if got := Mean([]float64{10, 20, 30}); got != 20 {
		t.Errorf("expected 20, got %v", got)
	}
	if got := Mean(nil); !math.IsNaN(got) {
		t.Errorf("expected NaN for empty input, got %v", got)
	}
}

func TestStdDev(t *testing.T) {
	// Sample std of {2,4,4,4,5,5,7,9} with n-1: variance 32/7.
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	want := math.Sqrt(32.0 / 7.0)
	if got := StdDev(values); math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, got)
	}

	if got := StdDev([]float64{5}); got != 0 {
		t.Errorf("expected 0 for single value, got %v", got)
	}
	if got := StdDev([]float64{3, 3, 3}); got != 0 {
		t.Errorf("expected 0 for constant values, got %v", got)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		values []float64
		want   float64
	}{
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{7}, 7},
	}
	for _, tc := range tests {
		if got := Median(tc.values); got != tc.want {
			t.Errorf("Median(%v): expected %v, got %v", tc.values, tc.want, got)
		}
	}

	// Input must not be reordered in place.
	values := []float64{3, 1, 2}
	Median(values)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("Median mutated its input: %v", values)
	}
}

func TestMAD(t *testing.T) {
	// Median 3, deviations {2,1,0,1,2} -> MAD 1.
	if got := MAD([]float64{1, 2, 3, 4, 5}); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	// Degenerate: {5,5,5,9} -> median 5, deviations {0,0,0,4} -> MAD 0.
	if got := MAD([]float64{5, 5, 5, 9}); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40, 1000}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{0.5, 30},
		{1, 1000},
		{0.25, 20},
		// Linear interpolation: pos = 0.95*4 = 3.8 -> 40 + 0.8*960.
		{0.95, 808},
		// pos = 0.05*4 = 0.2 -> 10 + 0.2*10.
		{0.05, 12},
	}

	for _, tc := range tests {
		if got := Percentile(values, tc.p); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Percentile(%v): expected %v, got %v", tc.p, tc.want, got)
		}
	}
}

func TestMinMax(t *testing.T) {
	values := []float64{4, -2, 9, 3}
	if got := Min(values); got != -2 {
		t.Errorf("expected -2, got %v", got)
	}
	if got := Max(values); got != 9 {
		t.Errorf("expected 9, got %v", got)
	}
}

func TestNormCDF(t *testing.T) {
	tests := []struct {
		z    float64
		want float64
	}{
		{0, 0.5},
		{-0.8416, 0.20}, // quintile cutoff
		{0.8416, 0.80},  // symmetric
		{1.6449, 0.95},  // p95
		{-1.6449, 0.05}, // p5
	}

	for _, tc := range tests {
		if got := NormCDF(tc.z); math.Abs(got-tc.want) > 1e-4 {
			t.Errorf("NormCDF(%v): expected %v, got %v", tc.z, tc.want, got)
		}
	}

	// Symmetry: CDF(z) + CDF(-z) = 1.
	for _, z := range []float64{0.1, 0.5, 1.0, 2.5} {
		if got := NormCDF(z) + NormCDF(-z); math.Abs(got-1) > 1e-12 {
			t.Errorf("symmetry broken at z=%v: %v", z, got)
		}
	}
}
