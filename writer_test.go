package micdaq

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/accelerolab/micdaq/internal/unboundedchan"
	"github.com/stretchr/testify/require"
)

// countRows returns the number of data rows (excluding header) in a CSV file.
func countRows(t *testing.T, path string) int {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if lines[0] != CSVHeader {
		t.Errorf("header = %q, want %q", lines[0], CSVHeader)
	}
	return len(lines) - 1
}

func TestRotationFourFiles(t *testing.T) {
	// 1-minute rotation over 3.5 simulated minutes of one sample per second
	// must yield exactly 4 files with no sample lost at the boundaries.
	stem := filepath.Join(t.TempDir(), "rotatest")
	start := time.Date(2025, 6, 18, 18, 27, 31, 0, time.UTC)
	clock := NewManualClock(start, 0)
	w := NewCSVWriter(stem, time.Minute, clock)

	const total = 210 // 3.5 minutes at 1 Hz
	for i := 0; i < total; i++ {
		if err := w.maybeRotate(); err != nil {
			t.Fatal(err)
		}
		s := Sample{Elapsed: float64(i), Voltage: 1.65, RawCode: 511, Variance: 0}
		if err := w.writeRow(s); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
	}
	if err := w.closeFile(); err != nil {
		t.Fatal(err)
	}

	files := w.Files()
	if len(files) != 4 {
		t.Fatalf("rotation produced %d files, want 4", len(files))
	}
	wantRows := []int{60, 60, 60, 30}
	sum := 0
	for i, f := range files {
		rows := countRows(t, f.Path)
		if rows != wantRows[i] {
			t.Errorf("file %d has %d rows, want %d", i, rows, wantRows[i])
		}
		if rows != f.Rows {
			t.Errorf("file %d reports %d rows, file on disk has %d", i, f.Rows, rows)
		}
		if f.Closed.Before(f.Opened.Add(time.Minute)) && i < len(files)-1 {
			t.Errorf("file %d closed at %v, before its 1-minute boundary (opened %v)",
				i, f.Closed, f.Opened)
		}
		sum += rows
	}
	if sum != total {
		t.Errorf("%d rows across all files, want %d: samples lost at a boundary", sum, total)
	}

	// Each filename embeds the timestamp of the moment that file was opened.
	for _, f := range files {
		want := stem + "_" + f.Opened.Format("20060102_150405") + ".csv"
		if f.Path != want {
			t.Errorf("file name %s, want %s", f.Path, want)
		}
	}
}

func TestRotationDisabledSingleFile(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "norotate")
	clock := NewManualClock(time.Unix(1750000000, 0), 0)
	w := NewCSVWriter(stem, 0, clock)

	// Span far more simulated time than any plausible rotation period.
	for i := 0; i < 500; i++ {
		require.NoError(t, w.maybeRotate())
		require.NoError(t, w.writeRow(Sample{Elapsed: float64(i)}))
		clock.Advance(time.Hour)
	}
	require.NoError(t, w.closeFile())

	files := w.Files()
	require.Len(t, files, 1, "rotation disabled must produce exactly one file")
	require.Equal(t, 500, countRows(t, files[0].Path))
}

func TestShutdownDrainsEveryQueuedSample(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "drain")
	w := NewCSVWriter(stem, 0, SystemClock{})

	// Enqueue K samples and the shutdown signal before the writer ever runs:
	// it must persist exactly K rows and then exit.
	const k = 1234
	queue := unboundedchan.NewUnboundedChannel[Sample]()
	for i := 0; i < k; i++ {
		queue.In() <- Sample{Elapsed: float64(i) / 1000.0, Voltage: 1.0, RawCode: 310}
	}
	close(queue.In())

	if err := w.Run(queue.Out()); err != nil {
		t.Fatal(err)
	}
	files := w.Files()
	if len(files) != 1 {
		t.Fatalf("writer produced %d files, want 1", len(files))
	}
	if rows := countRows(t, files[0].Path); rows != k {
		t.Errorf("writer persisted %d rows, want %d", rows, k)
	}
}

func TestRowFormat(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "format")
	w := NewCSVWriter(stem, 0, SystemClock{})

	samples := make(chan Sample, 2)
	samples <- Sample{Elapsed: 1.2345678, Voltage: 1.6507331, RawCode: 512, Variance: 0.000123456789}
	samples <- Sample{Elapsed: 2.0, Voltage: 0.0, RawCode: 0, Variance: 0.0}
	close(samples)
	require.NoError(t, w.Run(samples))

	raw, err := os.ReadFile(w.Files()[0].Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Equal(t, []string{
		"Timestamp_s,Voltage_V,Raw_ADC,Rolling_Variance",
		"1.234568,1.650733,512,0.00012346",
		"2.000000,0.000000,0,0.00000000",
	}, lines)
}

func TestFilenamePattern(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "mic_diff_1000Hz")
	w := NewCSVWriter(stem, 0, SystemClock{})
	samples := make(chan Sample, 1)
	samples <- Sample{}
	close(samples)
	require.NoError(t, w.Run(samples))

	name := filepath.Base(w.Files()[0].Path)
	matched, err := regexp.MatchString(`^mic_diff_1000Hz_\d{8}_\d{6}\.csv$`, name)
	require.NoError(t, err)
	if !matched {
		t.Errorf("file name %q does not match stem_YYYYMMDD_HHMMSS.csv", name)
	}
}

func TestWriterIOErrorIsFatal(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "no", "such", "dir", "out")
	w := NewCSVWriter(stem, 0, SystemClock{})
	samples := make(chan Sample, 1)
	samples <- Sample{}
	close(samples)
	if err := w.Run(samples); err == nil {
		t.Error("writer in an unwritable directory reported no error")
	}
}
