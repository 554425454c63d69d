package micdaq

import (
	"math"
	"testing"
)

func TestConverterVolts(t *testing.T) {
	c := DefaultConverter
	cases := []struct {
		raw  int
		want float64
	}{
		{0, 0.0},
		{1023, 3.3},
		{511, 511.0 / 1023.0 * 3.3},
	}
	for _, tc := range cases {
		if got := c.Volts(tc.raw); relDiff(got, tc.want) > 1e-12 {
			t.Errorf("Volts(%d) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestConverterQuantizeClamps(t *testing.T) {
	c := DefaultConverter
	if got := c.Quantize(-0.5); got != 0 {
		t.Errorf("Quantize(-0.5) = %d, want 0", got)
	}
	if got := c.Quantize(5.0); got != 1023 {
		t.Errorf("Quantize(5.0) = %d, want 1023", got)
	}
	// The round trip voltage -> code -> voltage stays within half an LSB.
	lsb := c.Vref / float64(c.FullScaleCode)
	for _, v := range []float64{0.0, 0.1, 1.65, 3.0, 3.3} {
		back := c.Volts(c.Quantize(v))
		if math.Abs(back-v) > lsb/2+1e-12 {
			t.Errorf("round trip of %v V came back %v V", v, back)
		}
	}
}

func TestSineSourceBounds(t *testing.T) {
	const amp = 0.8
	center := DefaultConverter.Vref / 2
	s := NewSineSource(1000, 50, amp)
	var sum float64
	const n = 1000 // one full second, an integer number of cycles
	for i := 0; i < n; i++ {
		raw, v, err := s.ReadDifferential()
		if err != nil {
			t.Fatal(err)
		}
		if raw < 0 || raw > 1023 {
			t.Fatalf("raw code %d out of range", raw)
		}
		if v < center-amp-0.01 || v > center+amp+0.01 {
			t.Fatalf("voltage %v outside tone envelope", v)
		}
		sum += v
	}
	if mean := sum / n; math.Abs(mean-center) > 0.01 {
		t.Errorf("tone mean = %v, want about %v", mean, center)
	}
}

func TestNoiseSourceBounds(t *testing.T) {
	const amp = 0.5
	center := DefaultConverter.Vref / 2
	s := NewNoiseSource(1000, amp, 42)
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		raw, v, err := s.ReadDifferential()
		if err != nil {
			t.Fatal(err)
		}
		if v < center-amp-0.01 || v > center+amp+0.01 {
			t.Fatalf("noise voltage %v outside +-%v of center", v, amp)
		}
		seen[raw] = true
	}
	if len(seen) < 100 {
		t.Errorf("noise produced only %d distinct codes in 1000 reads", len(seen))
	}
}

func TestSweepSourceStaysInRange(t *testing.T) {
	const amp = 0.8
	center := DefaultConverter.Vref / 2
	s := NewSweepSource(1000, 100, 400, 2.0, amp)
	for i := 0; i < 3000; i++ { // past the end of the sweep
		_, v, err := s.ReadDifferential()
		if err != nil {
			t.Fatal(err)
		}
		if v < center-amp-0.01 || v > center+amp+0.01 {
			t.Fatalf("sweep voltage %v out of range at sample %d", v, i)
		}
	}
}

func TestConstantSource(t *testing.T) {
	s := NewConstantSource(1.65)
	first, _, err := s.ReadDifferential()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		raw, _, err := s.ReadDifferential()
		if err != nil {
			t.Fatal(err)
		}
		if raw != first {
			t.Fatalf("constant source code changed from %d to %d", first, raw)
		}
	}
}
