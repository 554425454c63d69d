package micdaq

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

// popVariance recomputes the population variance of the literal window from
// scratch, as an independent check on the incremental update.
func popVariance(x []float64) float64 {
	if len(x) <= 1 {
		return 0.0
	}
	mean := stat.Mean(x, nil)
	return stat.MomentAbout(2, x, mean, nil)
}

func relDiff(a, b float64) float64 {
	if a == b {
		return 0
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return 0
	}
	return math.Abs(a-b) / scale
}

func TestRollingVarianceMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(85))
	for _, capacity := range []int{1, 2, 3, 10, 100, 1000} {
		rv := NewRollingVariance(capacity)
		history := make([]float64, 0, 3000)
		nsamples := 3 * capacity
		if nsamples < 50 {
			nsamples = 50
		}
		for i := 0; i < nsamples; i++ {
			x := 1.65 + 0.4*rng.NormFloat64()
			history = append(history, x)
			v := rv.Ingest(x)

			lo := len(history) - capacity
			if lo < 0 {
				lo = 0
			}
			want := popVariance(history[lo:])
			if relDiff(v, want) > 1e-9 {
				t.Fatalf("capacity %d, sample %d: variance = %.12g, brute force = %.12g",
					capacity, i, v, want)
			}
		}
	}
}

func TestRollingVarianceScenario(t *testing.T) {
	// 1000 Hz sampling with a 1 s window means capacity 1000. After 1500
	// samples the estimate must equal the variance of samples [500:1500].
	const capacity = 1000
	rng := rand.New(rand.NewSource(19))
	rv := NewRollingVariance(capacity)
	samples := make([]float64, 1500)
	var last float64
	for i := range samples {
		samples[i] = 3.3 * rng.Float64()
		last = rv.Ingest(samples[i])
	}
	want := popVariance(samples[500:1500])
	assert.InEpsilon(t, want, last, 1e-9)
	assert.Equal(t, capacity, rv.Count())
}

func TestRollingVarianceEarlyValues(t *testing.T) {
	rv := NewRollingVariance(8)
	if v := rv.Variance(); v != 0.0 {
		t.Errorf("variance before any samples = %v, want 0", v)
	}
	if v := rv.Ingest(1.5); v != 0.0 {
		t.Errorf("variance after one sample = %v, want 0", v)
	}
	v := rv.Ingest(2.5)
	want := 0.25 // mean 2.0, deviations ±0.5
	if relDiff(v, want) > 1e-12 {
		t.Errorf("variance after two samples = %v, want %v", v, want)
	}
}

func TestRollingVarianceConstantSignal(t *testing.T) {
	rv := NewRollingVariance(16)
	for i := 0; i < 100; i++ {
		if v := rv.Ingest(1.234567); v != 0.0 {
			t.Fatalf("constant signal variance = %v at sample %d, want 0", v, i)
		}
	}
}

func TestRollingVarianceWindowOrder(t *testing.T) {
	rv := NewRollingVariance(3)
	for _, x := range []float64{1, 2, 3, 4, 5} {
		rv.Ingest(x)
	}
	got := rv.Window()
	want := []float64{3, 4, 5}
	assert.Equal(t, want, got)
}

func TestRollingVarianceBadCapacity(t *testing.T) {
	rv := NewRollingVariance(0)
	if rv.Capacity() != 1 {
		t.Errorf("capacity = %d, want clamp to 1", rv.Capacity())
	}
	rv.Ingest(1.0)
	rv.Ingest(2.0)
	if v := rv.Variance(); v != 0.0 {
		t.Errorf("single-slot window variance = %v, want 0", v)
	}
}
