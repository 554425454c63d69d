package micdaq

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// Sample is one acquired reading, immutable once produced by the sampler.
type Sample struct {
	Elapsed  float64 // seconds since acquisition start
	Voltage  float64 // volts, derived from RawCode
	RawCode  int     // raw differential converter code
	Variance float64 // rolling variance immediately after this sample
}

// CSVHeader is the column header written at the top of every output file.
const CSVHeader = "Timestamp_s,Voltage_V,Raw_ADC,Rolling_Variance"

// rowFlushCount sets how many rows may sit in the buffer before a flush, so
// a crash loses little data. The original tool flushed every 50 rows too.
const rowFlushCount = 50

// FileInfo describes one finished output file.
type FileInfo struct {
	Path   string
	Opened time.Time
	Closed time.Time
	Rows   int
}

// CSVWriter drains a sample stream and appends one CSV row per sample to the
// current output file, opening a fresh file whenever the rotation interval
// has elapsed. It owns the open file exclusively; the sampler never touches
// file I/O.
type CSVWriter struct {
	stem     string
	rotation time.Duration // 0 means a single file for the whole run
	clock    Clock

	file      *os.File
	buf       *bufio.Writer
	path      string
	openedAt  time.Time
	rows      int // rows in the current file
	unflushed int

	finished []FileInfo
	onRotate func(FileInfo) // called for each finished file, nil ok
}

// NewCSVWriter creates a writer with the given filename stem and rotation
// interval. No file is opened until Run receives its first sample.
func NewCSVWriter(stem string, rotation time.Duration, clock Clock) *CSVWriter {
	return &CSVWriter{stem: stem, rotation: rotation, clock: clock}
}

// OnRotate registers a callback invoked with each finished file, including
// the final one. Must be set before Run starts.
func (w *CSVWriter) OnRotate(fn func(FileInfo)) {
	w.onRotate = fn
}

// Files returns descriptions of every finished file. Valid after Run returns.
func (w *CSVWriter) Files() []FileInfo {
	return w.finished
}

// Run consumes samples until the channel closes, then flushes and closes the
// current file. Any file error is fatal: Run closes what it can and returns
// the error, leaving remaining samples undrained.
func (w *CSVWriter) Run(samples <-chan Sample) error {
	for s := range samples {
		if err := w.maybeRotate(); err != nil {
			w.abandon()
			return err
		}
		if err := w.writeRow(s); err != nil {
			w.abandon()
			return fmt.Errorf("writing row to %s: %w", w.path, err)
		}
	}
	return w.closeFile()
}

// maybeRotate opens the first file, or a new one if the rotation interval
// has elapsed since the current file was opened. With rotation disabled the
// first file persists for the whole run.
func (w *CSVWriter) maybeRotate() error {
	now := w.clock.Now()
	if w.file == nil {
		return w.openFile(now)
	}
	if w.rotation > 0 && now.Sub(w.openedAt) >= w.rotation {
		if err := w.closeFile(); err != nil {
			return err
		}
		return w.openFile(now)
	}
	return nil
}

func (w *CSVWriter) openFile(now time.Time) error {
	path := fmt.Sprintf("%s_%s.csv", w.stem, now.Format("20060102_150405"))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("opening output file %s: %w", path, err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.path = path
	w.openedAt = now
	w.rows = 0
	w.unflushed = 0
	if _, err := fmt.Fprintln(w.buf, CSVHeader); err != nil {
		w.abandon()
		return fmt.Errorf("writing header to %s: %w", path, err)
	}
	return nil
}

func (w *CSVWriter) writeRow(s Sample) error {
	_, err := fmt.Fprintf(w.buf, "%.6f,%.6f,%d,%.8f\n",
		s.Elapsed, s.Voltage, s.RawCode, s.Variance)
	if err != nil {
		return err
	}
	w.rows++
	w.unflushed++
	if w.unflushed >= rowFlushCount {
		w.unflushed = 0
		return w.buf.Flush()
	}
	return nil
}

// closeFile flushes and closes the current file, if any, and records it.
func (w *CSVWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		w.abandon()
		return fmt.Errorf("flushing %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		w.file = nil
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	info := FileInfo{Path: w.path, Opened: w.openedAt, Closed: w.clock.Now(), Rows: w.rows}
	w.finished = append(w.finished, info)
	if w.onRotate != nil {
		w.onRotate(info)
	}
	w.file = nil
	w.buf = nil
	return nil
}

// abandon closes the file descriptor after a write error, ignoring further
// errors. The already-failed write is the one to report.
func (w *CSVWriter) abandon() {
	if w.file != nil {
		w.file.Close()
		w.file = nil
		w.buf = nil
	}
}
