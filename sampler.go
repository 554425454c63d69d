package micdaq

import (
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// liveDisplayThrottle is the minimum spacing between live readout updates.
const liveDisplayThrottle = 200 * time.Millisecond

// StatusSink receives throttled live readings, e.g. for publication to
// remote monitors. Implementations must not block.
type StatusSink interface {
	Publish(LiveStatus)
}

// LiveStatus is one throttled progress report from a running acquisition.
type LiveStatus struct {
	Elapsed  float64 `json:"elapsed_s"`
	Voltage  float64 `json:"voltage_v"`
	Variance float64 `json:"rolling_variance"`
	Samples  int     `json:"samples"`
}

// Sampler drives the acquisition loop: it busy-waits until each tick is due,
// reads one differential sample, feeds the variance estimator, and forwards
// the finished Sample downstream. It never blocks on file I/O; the hand-off
// channel absorbs any writer backlog.
type Sampler struct {
	cfg       AcquireConfig
	source    SignalSource
	clock     Clock
	estimator *RollingVariance

	// Interrupt, when closed, stops the loop at the next tick boundary.
	Interrupt <-chan struct{}
	// Live, when non-nil, receives throttled human-readable progress lines.
	Live io.Writer
	// Status, when non-nil, receives the same readings machine-readable.
	Status StatusSink

	timestamps []float64
	voltages   []float64
}

// NewSampler creates a sampler for a validated configuration.
func NewSampler(cfg AcquireConfig, source SignalSource, clock Clock) *Sampler {
	return &Sampler{
		cfg:        cfg,
		source:     source,
		clock:      clock,
		estimator:  NewRollingVariance(cfg.WindowSamples()),
		timestamps: make([]float64, 0, cfg.MaxSamples),
		voltages:   make([]float64, 0, cfg.MaxSamples),
	}
}

// Run produces samples on out at the configured cadence until the duration
// elapses, the sample cap is reached, or Interrupt fires. It returns a
// summary of everything captured. Run does not close out; the caller owns
// the channel lifecycle.
func (s *Sampler) Run(out chan<- Sample) RunSummary {
	interval := s.cfg.Interval()
	limit := s.cfg.DurationLimit()
	start := s.clock.Now()
	next := start
	now := start

	var skipped int
	var finalVariance float64
	var lastDisplay time.Time
	interrupted := false

loop:
	for {
		// Spin until the tick is due. No sleeping: the scheduler's wakeup
		// granularity would add jitter far beyond one sample interval.
		for now.Before(next) {
			select {
			case <-s.Interrupt:
				interrupted = true
				break loop
			default:
			}
			now = s.clock.Now()
		}

		if now.Sub(start) >= limit {
			break
		}
		if len(s.timestamps) >= s.cfg.MaxSamples {
			break
		}
		select {
		case <-s.Interrupt:
			interrupted = true
			break loop
		default:
		}

		raw, volts, err := s.source.ReadDifferential()
		if err != nil {
			// Skip the tick but keep the cadence. A failed read must never
			// reach the estimator or the output file.
			skipped++
			ProblemLogger.Printf("sample read failed at tick %d: %v", len(s.timestamps)+skipped, err)
			next = next.Add(interval)
			continue
		}

		elapsed := now.Sub(start).Seconds()
		finalVariance = s.estimator.Ingest(volts)
		out <- Sample{Elapsed: elapsed, Voltage: volts, RawCode: raw, Variance: finalVariance}
		s.timestamps = append(s.timestamps, elapsed)
		s.voltages = append(s.voltages, volts)

		if (s.Live != nil || s.Status != nil) && now.Sub(lastDisplay) >= liveDisplayThrottle {
			lastDisplay = now
			if s.Live != nil {
				fmt.Fprintf(s.Live, "\r%+8.4fV | %10.6f | %6d", volts, finalVariance, len(s.timestamps))
			}
			if s.Status != nil {
				s.Status.Publish(LiveStatus{
					Elapsed:  elapsed,
					Voltage:  volts,
					Variance: finalVariance,
					Samples:  len(s.timestamps),
				})
			}
		}

		// Additive advance: one late tick shifts the whole schedule rather
		// than compressing the next interval, so jitter never accumulates
		// into long-run drift.
		next = next.Add(interval)
	}

	return s.summarize(skipped, interrupted, finalVariance)
}

// RunSummary reports what one acquisition run captured.
type RunSummary struct {
	Samples       int
	Skipped       int
	Interrupted   bool
	Duration      float64 // elapsed seconds at the last sample
	AchievedRate  float64 // samples per second actually delivered
	MeanVolts     float64
	StdVolts      float64
	MinVolts      float64
	MaxVolts      float64
	FinalVariance float64
	MeanInterval  float64 // mean spacing between consecutive samples, seconds
	StdInterval   float64 // spread of that spacing, seconds
}

func (s *Sampler) summarize(skipped int, interrupted bool, finalVariance float64) RunSummary {
	sum := RunSummary{
		Samples:       len(s.timestamps),
		Skipped:       skipped,
		Interrupted:   interrupted,
		FinalVariance: finalVariance,
	}
	if len(s.timestamps) == 0 {
		return sum
	}
	sum.Duration = s.timestamps[len(s.timestamps)-1]
	if sum.Duration > 0 {
		sum.AchievedRate = float64(len(s.timestamps)) / sum.Duration
	}
	mean := stat.Mean(s.voltages, nil)
	sum.MeanVolts = mean
	sum.StdVolts = stat.PopStdDev(s.voltages, nil)
	sum.MinVolts = floats.Min(s.voltages)
	sum.MaxVolts = floats.Max(s.voltages)

	if len(s.timestamps) > 1 {
		dt := make([]float64, len(s.timestamps)-1)
		for i := range dt {
			dt[i] = s.timestamps[i+1] - s.timestamps[i]
		}
		sum.MeanInterval = stat.Mean(dt, nil)
		sum.StdInterval = stat.PopStdDev(dt, nil)
	}
	return sum
}

// Report writes the post-run summary in human-readable form.
func (sum RunSummary) Report(w io.Writer) {
	fmt.Fprintf(w, "Duration:        %.2f seconds\n", sum.Duration)
	fmt.Fprintf(w, "Samples:         %d\n", sum.Samples)
	if sum.Skipped > 0 {
		fmt.Fprintf(w, "Skipped reads:   %d\n", sum.Skipped)
	}
	fmt.Fprintf(w, "Actual freq:     %.1f Hz\n", sum.AchievedRate)
	fmt.Fprintf(w, "Mean interval:   %.6f s (std %.6f s)\n", sum.MeanInterval, sum.StdInterval)
	fmt.Fprintf(w, "Mean voltage:    %.4f V\n", sum.MeanVolts)
	fmt.Fprintf(w, "Std deviation:   %.4f V\n", sum.StdVolts)
	fmt.Fprintf(w, "Min voltage:     %.4f V\n", sum.MinVolts)
	fmt.Fprintf(w, "Max voltage:     %.4f V\n", sum.MaxVolts)
	fmt.Fprintf(w, "Final variance:  %.6f\n", sum.FinalVariance)
	if sum.Interrupted {
		fmt.Fprintln(w, "Run was interrupted before the configured duration.")
	}
}
