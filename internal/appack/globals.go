package appack

import (
	"runtime"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// We use a value of 1 for critical and 0 for non-critical/default.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	tmpDir           string
	workDir          string // per-run working directory, recreated at start
	appDir           string // the AppDir being assembled inside workDir
	installDeps      bool   // conservative emerge variant with runtime deps
	outputFormat     string // appimage | tar.gz | tar.xz | tar.zst
	appimagetoolURL  string
	Debug            bool
	Verbose          bool
	ConfigFile       = "/etc/appack.conf"
	version          = "dev"     // overridden at build time
	buildDate        = "unknown" // overridden at build time
	hostArch         = runtime.GOARCH
	// Global executors (assigned in Main)
	UserExec *Executor
	RootExec *Executor
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)
