package micdaq

import (
	"math"
	"math/rand"
)

// SignalSource is the capability consumed by the sampler: one differential
// voltage reading per call. Implementations wrap real hardware (an SPI ADC in
// differential mode) or synthesize a waveform for tests and dry runs.
type SignalSource interface {
	// ReadDifferential returns the raw converter code and the voltage
	// derived from it, or an error if the reading could not be made.
	ReadDifferential() (raw int, volts float64, err error)
}

// ADCConverter translates raw converter codes into volts.
type ADCConverter struct {
	FullScaleCode int     // largest code the converter produces, e.g. 1023 for 10 bits
	Vref          float64 // reference voltage in volts
}

// DefaultConverter matches an MCP3008-class part: 10-bit codes against a
// 3.3 V reference.
var DefaultConverter = ADCConverter{FullScaleCode: 1023, Vref: 3.3}

// Volts converts a raw code to a voltage.
func (c ADCConverter) Volts(raw int) float64 {
	return float64(raw) / float64(c.FullScaleCode) * c.Vref
}

// Quantize converts a voltage to the nearest raw code, clamped to the
// converter's range.
func (c ADCConverter) Quantize(volts float64) int {
	code := int(math.Round(volts / c.Vref * float64(c.FullScaleCode)))
	if code < 0 {
		return 0
	}
	if code > c.FullScaleCode {
		return c.FullScaleCode
	}
	return code
}

// synthSource holds what the synthetic sources share: a converter, a sample
// counter and the nominal rate that maps counts to time. Each read quantizes
// the synthesized voltage and reports the code-derived voltage, the same
// round trip the hardware path makes.
type synthSource struct {
	conv  ADCConverter
	rate  float64 // nominal samples per second
	nread int
}

func (ss *synthSource) emit(volts float64) (int, float64, error) {
	ss.nread++
	raw := ss.conv.Quantize(volts)
	return raw, ss.conv.Volts(raw), nil
}

// SineSource synthesizes a pure tone centered at half the reference voltage.
type SineSource struct {
	synthSource
	freq      float64 // tone frequency in Hz
	amplitude float64 // peak deviation from center, in volts
}

// NewSineSource creates a sine wave source with the given tone frequency and
// amplitude, to be consumed at the given sampling rate.
func NewSineSource(sampleRate, toneFreq, amplitude float64) *SineSource {
	return &SineSource{
		synthSource: synthSource{conv: DefaultConverter, rate: sampleRate},
		freq:        toneFreq,
		amplitude:   amplitude,
	}
}

// ReadDifferential returns the next sample of the tone.
func (s *SineSource) ReadDifferential() (int, float64, error) {
	t := float64(s.nread) / s.rate
	v := s.conv.Vref/2 + s.amplitude*math.Sin(2*math.Pi*s.freq*t)
	return s.emit(v)
}

// SweepSource synthesizes a linear frequency sweep from startFreq to endFreq
// over sweepTime seconds, then holds the end frequency.
type SweepSource struct {
	synthSource
	startFreq float64
	endFreq   float64
	sweepTime float64
	amplitude float64
	phase     float64
}

// NewSweepSource creates a linear sweep source.
func NewSweepSource(sampleRate, startFreq, endFreq, sweepTime, amplitude float64) *SweepSource {
	return &SweepSource{
		synthSource: synthSource{conv: DefaultConverter, rate: sampleRate},
		startFreq:   startFreq,
		endFreq:     endFreq,
		sweepTime:   sweepTime,
		amplitude:   amplitude,
	}
}

// ReadDifferential returns the next sample of the sweep. Phase is accumulated
// per sample so the waveform stays continuous as the frequency changes.
func (s *SweepSource) ReadDifferential() (int, float64, error) {
	t := float64(s.nread) / s.rate
	frac := 1.0
	if t < s.sweepTime {
		frac = t / s.sweepTime
	}
	f := s.startFreq + (s.endFreq-s.startFreq)*frac
	s.phase += 2 * math.Pi * f / s.rate
	v := s.conv.Vref/2 + s.amplitude*math.Sin(s.phase)
	return s.emit(v)
}

// NoiseSource synthesizes uniform white noise spanning ±amplitude around
// half the reference voltage.
type NoiseSource struct {
	synthSource
	amplitude float64
	rng       *rand.Rand
}

// NewNoiseSource creates a white noise source with the given amplitude and
// random seed.
func NewNoiseSource(sampleRate, amplitude float64, seed int64) *NoiseSource {
	return &NoiseSource{
		synthSource: synthSource{conv: DefaultConverter, rate: sampleRate},
		amplitude:   amplitude,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// ReadDifferential returns the next noise sample.
func (s *NoiseSource) ReadDifferential() (int, float64, error) {
	v := s.conv.Vref/2 + s.amplitude*(2*s.rng.Float64()-1)
	return s.emit(v)
}

// ConstantSource reports the same voltage on every read. Useful for
// exercising the pipeline with a perfectly quiet signal.
type ConstantSource struct {
	synthSource
	volts float64
}

// NewConstantSource creates a source pinned at the given voltage.
func NewConstantSource(volts float64) *ConstantSource {
	return &ConstantSource{
		synthSource: synthSource{conv: DefaultConverter, rate: 1},
		volts:       volts,
	}
}

// ReadDifferential returns the fixed voltage.
func (s *ConstantSource) ReadDifferential() (int, float64, error) {
	return s.emit(s.volts)
}
