package micdaq

import (
	"log"
	"os"
	"time"
)

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Date    string
	Summary string
	Host    string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.3.1",
	Githash: "no git hash computed",
	Date:    "no build date computed",
}

// MicdaqStartTime is a global holding the time init() was run
var MicdaqStartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *log.Logger

func init() {
	MicdaqStartTime = time.Now()

	// The micdaq main program will override this, but at least initialize
	// with a sensible value
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
}
