package micdaq

// RollingVariance maintains the exact population variance of the most recent
// `capacity` values ingested, in O(1) time per value. While fewer than
// `capacity` values have been seen, the statistics cover all values so far.
//
// The update rules are Welford's online algorithm during the filling phase and
// a cross-term correction once the window is full. Both keep the second
// central moment (m2) directly, which is far more stable than tracking
// sum and sum-of-squares separately.
type RollingVariance struct {
	capacity int
	count    int
	mean     float64
	m2       float64 // sum of squared deviations from the mean
	ring     []float64
	oldest   int // index in ring of the value evicted next
}

// NewRollingVariance returns an estimator over a window of the given capacity.
// Capacity must be at least 1.
func NewRollingVariance(capacity int) *RollingVariance {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingVariance{
		capacity: capacity,
		ring:     make([]float64, 0, capacity),
	}
}

// Ingest adds one value to the window, evicting the oldest value if the
// window is full, and returns the updated variance.
func (rv *RollingVariance) Ingest(x float64) float64 {
	if rv.count < rv.capacity {
		// Filling phase: plain Welford update.
		rv.count++
		delta := x - rv.mean
		rv.mean += delta / float64(rv.count)
		rv.m2 += delta * (x - rv.mean)
		rv.ring = append(rv.ring, x)
		return rv.Variance()
	}

	// Full window: replace the oldest value with x. The m2 update must use
	// both the old and the new mean, or the result drifts from the true
	// windowed moment.
	old := rv.ring[rv.oldest]
	rv.ring[rv.oldest] = x
	rv.oldest = (rv.oldest + 1) % rv.capacity

	oldMean := rv.mean
	rv.mean += (x - old) / float64(rv.capacity)
	rv.m2 += (x - old) * (x - rv.mean + old - oldMean)
	if rv.m2 < 0 {
		rv.m2 = 0 // roundoff can leave a tiny negative residue
	}
	return rv.Variance()
}

// Variance returns the population variance of the values in the window,
// or 0 if fewer than 2 values have been ingested.
func (rv *RollingVariance) Variance() float64 {
	if rv.count <= 1 {
		return 0.0
	}
	return rv.m2 / float64(rv.count)
}

// Mean returns the arithmetic mean of the values in the window.
func (rv *RollingVariance) Mean() float64 {
	return rv.mean
}

// Count returns the number of values currently represented, never more
// than the capacity.
func (rv *RollingVariance) Count() int {
	return rv.count
}

// Capacity returns the window size set at construction.
func (rv *RollingVariance) Capacity() int {
	return rv.capacity
}

// Window returns a copy of the window contents in temporal order,
// oldest first.
func (rv *RollingVariance) Window() []float64 {
	w := make([]float64, 0, rv.count)
	if rv.count < rv.capacity {
		return append(w, rv.ring...)
	}
	w = append(w, rv.ring[rv.oldest:]...)
	return append(w, rv.ring[:rv.oldest]...)
}
