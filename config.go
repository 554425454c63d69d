package micdaq

import (
	"fmt"
	"math"
	"time"
)

// AcquireConfig holds every knob of one acquisition run. It is validated
// once, before any hardware or file interaction, and then passed by value
// into the pipeline.
type AcquireConfig struct {
	Frequency       int     // sampling rate in Hz
	Duration        float64 // run length in seconds
	VarianceWindow  float64 // rolling variance window in seconds
	RotationMinutes float64 // CSV rotation period in minutes; 0 disables rotation
	OutputStem      string  // filename stem for rotated CSV files
	LiveDisplay     bool    // print throttled live readings to stdout
	MaxSamples      int     // hard cap on samples; 0 means derive from duration
	StatusPort      int     // ZMQ status publisher port; 0 disables publishing
}

// DefaultStem returns the output stem used when none is configured,
// e.g. "mic_diff_1000Hz".
func (cfg *AcquireConfig) DefaultStem() string {
	return fmt.Sprintf("mic_diff_%dHz", cfg.Frequency)
}

// Validate checks every configuration constraint and fills in derivable
// defaults. Any violation is reported before a single sample is read.
func (cfg *AcquireConfig) Validate() error {
	if cfg.Frequency <= 0 {
		return fmt.Errorf("config: frequency must be a positive integer, have %d", cfg.Frequency)
	}
	if !(cfg.Duration > 0) {
		return fmt.Errorf("config: duration must be positive, have %g s", cfg.Duration)
	}
	if !(cfg.VarianceWindow > 0) {
		return fmt.Errorf("config: variance window must be positive, have %g s", cfg.VarianceWindow)
	}
	if cfg.RotationMinutes < 0 || math.IsNaN(cfg.RotationMinutes) {
		return fmt.Errorf("config: rotation interval must be >= 0 minutes, have %g", cfg.RotationMinutes)
	}
	if cfg.OutputStem == "" {
		cfg.OutputStem = cfg.DefaultStem()
	}
	if cfg.MaxSamples == 0 {
		// The original tool pre-allocated 20% beyond the nominal count; keep
		// that as the cap on a loop that has fallen behind real time.
		cfg.MaxSamples = int(cfg.Duration*float64(cfg.Frequency)*1.2) + 1
	}
	if cfg.MaxSamples < 0 {
		return fmt.Errorf("config: max samples must be >= 0, have %d", cfg.MaxSamples)
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return fmt.Errorf("config: status port out of range: %d", cfg.StatusPort)
	}
	if cfg.WindowSamples() < 1 {
		return fmt.Errorf("config: variance window of %g s holds no samples at %d Hz",
			cfg.VarianceWindow, cfg.Frequency)
	}
	return nil
}

// Interval returns the nominal spacing between samples.
func (cfg *AcquireConfig) Interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(cfg.Frequency))
}

// WindowSamples returns the estimator capacity: window seconds times the
// sampling rate, rounded down.
func (cfg *AcquireConfig) WindowSamples() int {
	return int(cfg.VarianceWindow * float64(cfg.Frequency))
}

// RotationInterval returns the rotation period as a duration.
func (cfg *AcquireConfig) RotationInterval() time.Duration {
	return time.Duration(cfg.RotationMinutes * float64(time.Minute))
}

// DurationLimit returns the run length as a duration.
func (cfg *AcquireConfig) DurationLimit() time.Duration {
	return time.Duration(cfg.Duration * float64(time.Second))
}
