package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/accelerolab/micdaq"
	"github.com/accelerolab/micdaq/internal/acquiredb"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var githash = "githash not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err2 := os.MkdirAll(dir, 0775); err2 != nil {
			return "", err2
		}
	}

	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find
// config files and the filename and suffix. Sets the acquisition defaults.
func setupViper() error {
	viper.SetDefault("frequency", 1000)
	viper.SetDefault("duration", 10.0)
	viper.SetDefault("window", 5.0)
	viper.SetDefault("rotation", 0.0)
	viper.SetDefault("output", "")
	viper.SetDefault("live", true)
	viper.SetDefault("source", "noise")
	viper.SetDefault("statusport", 0)

	HOME, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotMicdaq := filepath.Join(HOME, ".micdaq")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotMicdaq, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/micdaq"))
	viper.AddConfigPath(dotMicdaq)
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	probFile, err := os.OpenFile(pfname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		msg := fmt.Sprintf("Could not open log file '%s'", pfname)
		panic(msg)
	}
	probLogger := log.New(probFile, "", log.LstdFlags)
	probLogger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return probLogger
}

// makeSource builds the signal source named in the configuration. Hardware
// ADC drivers implement micdaq.SignalSource and plug in the same way; the
// built-in sources synthesize a waveform so the pipeline can run anywhere.
func makeSource(name string, frequency int) (micdaq.SignalSource, error) {
	rate := float64(frequency)
	switch name {
	case "sine":
		return micdaq.NewSineSource(rate, 120.0, 0.8), nil
	case "sweep":
		return micdaq.NewSweepSource(rate, 100.0, 400.0, 5.0, 0.8), nil
	case "noise":
		return micdaq.NewNoiseSource(rate, 0.5, micdaq.MicdaqStartTime.UnixNano()), nil
	case "constant":
		return micdaq.NewConstantSource(1.65), nil
	}
	return nil, fmt.Errorf("unknown signal source %q (try sine, sweep, noise, or constant)", name)
}

func main() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	micdaq.Build.Date = buildDate
	micdaq.Build.Githash = githash
	micdaq.Build.Summary = fmt.Sprintf("micdaq version %s (git commit %s)", micdaq.Build.Version, githash)
	if host, err := os.Hostname(); err == nil {
		micdaq.Build.Host = host
	} else {
		micdaq.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	frequency := flag.Int("frequency", 0, "sampling frequency in Hz")
	duration := flag.Float64("duration", 0, "recording duration in seconds")
	window := flag.Float64("window", 0, "rolling variance window in seconds")
	rotation := flag.Float64("rotation", -1, "CSV rotation interval in minutes (0 disables)")
	output := flag.String("output", "", "output CSV filename stem")
	noLive := flag.Bool("no-live", false, "disable the live readings display")
	sourceName := flag.String("source", "", "signal source: sine, sweep, noise, or constant")
	statusPort := flag.Int("status-port", -1, "ZMQ status publisher port (0 disables)")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is micdaq version %s\n", micdaq.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		os.Exit(0)
	}

	// Start logging problems to a rotating log file.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(HOME, ".micdaq", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	micdaq.ProblemLogger = startLogger(problemname)
	fmt.Printf("Logging problems to %s\n", problemname)

	// Find config file, creating it if needed, and read it.
	if err := setupViper(); err != nil {
		panic(err)
	}

	// Command-line flags override the config file.
	if *frequency > 0 {
		viper.Set("frequency", *frequency)
	}
	if *duration > 0 {
		viper.Set("duration", *duration)
	}
	if *window > 0 {
		viper.Set("window", *window)
	}
	if *rotation >= 0 {
		viper.Set("rotation", *rotation)
	}
	if *output != "" {
		viper.Set("output", *output)
	}
	if *noLive {
		viper.Set("live", false)
	}
	if *sourceName != "" {
		viper.Set("source", *sourceName)
	}
	if *statusPort >= 0 {
		viper.Set("statusport", *statusPort)
	}

	cfg := micdaq.AcquireConfig{
		Frequency:       viper.GetInt("frequency"),
		Duration:        viper.GetFloat64("duration"),
		VarianceWindow:  viper.GetFloat64("window"),
		RotationMinutes: viper.GetFloat64("rotation"),
		OutputStem:      viper.GetString("output"),
		LiveDisplay:     viper.GetBool("live"),
		StatusPort:      viper.GetInt("statusport"),
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	micdaq.ProblemLogger.Printf("starting acquisition with config:\n%s", spew.Sdump(cfg))

	source, err := makeSource(viper.GetString("source"), cfg.Frequency)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("micdaq - differential sensor recorder")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Frequency:     %d Hz\n", cfg.Frequency)
	fmt.Printf("Duration:      %g s\n", cfg.Duration)
	fmt.Printf("Variance win:  %g s (%d samples)\n", cfg.VarianceWindow, cfg.WindowSamples())
	if cfg.RotationMinutes > 0 {
		fmt.Printf("Rotation:      every %g min\n", cfg.RotationMinutes)
	} else {
		fmt.Println("Rotation:      disabled (single file)")
	}
	fmt.Printf("Output stem:   %s\n", cfg.OutputStem)
	fmt.Printf("Source:        %s\n", viper.GetString("source"))
	fmt.Println(strings.Repeat("=", 60))

	pipeline := micdaq.NewPipeline(cfg, source, micdaq.SystemClock{})

	// Ctrl-C ends the run early but cleanly: the sampler stops, and the
	// writer still drains every queued sample before the files close.
	interrupt := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\n\nRecording stopped by user")
		close(interrupt)
	}()

	if cfg.LiveDisplay {
		pipeline.Sampler.Live = os.Stdout
		fmt.Println("\nLive readings (Voltage | Variance | Samples):")
		fmt.Println(strings.Repeat("-", 50))
	}

	if cfg.StatusPort > 0 {
		publisher, err := micdaq.NewStatusPublisher(cfg.StatusPort)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer publisher.Close()
		pipeline.Sampler.Status = publisher
	}

	// Record the run and its files in the database, when one is configured.
	dbAbort := make(chan struct{})
	db := acquiredb.Start(dbAbort)
	defer close(dbAbort)
	runmsg := &acquiredb.RunMessage{
		ID:              acquiredb.NewID(),
		Hostname:        micdaq.Build.Host,
		Version:         micdaq.Build.Version,
		SourceName:      viper.GetString("source"),
		Frequency:       cfg.Frequency,
		DurationSeconds: cfg.Duration,
		WindowSamples:   cfg.WindowSamples(),
		RotationSeconds: cfg.RotationInterval().Seconds(),
		OutputStem:      cfg.OutputStem,
		Start:           micdaq.MicdaqStartTime,
	}
	db.RecordRun(runmsg)
	pipeline.Writer.OnRotate(func(info micdaq.FileInfo) {
		db.RecordFile(&acquiredb.FileMessage{
			RunID:    runmsg.ID,
			Filename: info.Path,
			Rows:     info.Rows,
			Opened:   info.Opened,
			Closed:   info.Closed,
		})
	})

	summary, err := pipeline.Run(interrupt)
	runmsg.Samples = summary.Samples
	runmsg.Skipped = summary.Skipped
	db.FinishRun(runmsg)

	fmt.Printf("\n\n%s\n", strings.Repeat("=", 50))
	fmt.Println("Recording Complete!")
	fmt.Println(strings.Repeat("=", 50))
	summary.Report(os.Stdout)
	for _, f := range pipeline.Writer.Files() {
		fmt.Printf("Data saved to:   %s (%d rows)\n", f.Path, f.Rows)
	}
	if err != nil {
		micdaq.ProblemLogger.Printf("run failed: %v", err)
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}
