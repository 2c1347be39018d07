package appack

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"strings"
)

// marchLevels are the portable x86-64 microarchitecture levels accepted
// as march modes. Anything else (besides detect/native) is treated as a
// custom -march value.
var marchLevels = map[string]bool{
	"x86-64":    true,
	"x86-64-v2": true,
	"x86-64-v3": true,
	"x86-64-v4": true,
}

// DefaultMarchMode is the portability-oriented baseline applied when the
// invocation does not name a mode.
const DefaultMarchMode = "x86-64"

// portageFlagVar queries portage for the current value of a flag
// variable. Falls back to the process environment when portageq is
// unavailable, so the policy still works outside a full Gentoo host.
func portageFlagVar(name string) string {
	if _, err := exec.LookPath("portageq"); err == nil {
		cmd := exec.Command("portageq", "envvar", name)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err == nil {
			return strings.TrimSpace(out.String())
		}
	}
	return os.Getenv(name)
}

// stripMarch removes every -march= and -mtune= token from a flag string.
// Stripping before appending keeps repeated invocations with different
// modes from stacking conflicting instruction-set flags.
func stripMarch(flags string) string {
	var kept []string
	for _, f := range strings.Fields(flags) {
		if strings.HasPrefix(f, "-march=") || strings.HasPrefix(f, "-mtune=") {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// marchOf returns the value of the first -march= token, or "".
func marchOf(flags string) string {
	for _, f := range strings.Fields(flags) {
		if strings.HasPrefix(f, "-march=") {
			return strings.TrimPrefix(f, "-march=")
		}
	}
	return ""
}

// applyMarch strips any instruction-set flags and appends the requested
// pair. mtune may be empty.
func applyMarch(flags, march, mtune string) string {
	out := stripMarch(flags)
	if out != "" {
		out += " "
	}
	out += "-march=" + march
	if mtune != "" {
		out += " -mtune=" + mtune
	}
	return out
}

// resolveCompilerFlags derives the CFLAGS/CXXFLAGS to export for the
// given march mode from the currently configured values. In detect
// mode the current flags are reported but left untouched.
func resolveCompilerFlags(mode, curC, curCXX string) (cflags, cxxflags string) {
	switch {
	case mode == "detect":
		march := marchOf(curC)
		colArrow.Print("-> ")
		if march == "" {
			colSuccess.Println("No -march flag configured; emerge will use portage defaults")
		} else {
			colSuccess.Printf("Detected -march=%s in portage CFLAGS\n", march)
			if march == "native" {
				colWarn.Println("Warning: -march=native binaries are not portable across machines")
			}
		}
		if lvl := detectHostLevel(); lvl != "" {
			debugf("Host CPU supports up to %s\n", lvl)
		}
		return curC, curCXX

	case mode == "native":
		colWarn.Println("Warning: building with -march=native; the bundle will not be portable")
		return applyMarch(curC, "native", "native"), applyMarch(curCXX, "native", "native")

	case marchLevels[mode]:
		return applyMarch(curC, mode, "generic"), applyMarch(curCXX, mode, "generic")

	default:
		// Custom instruction-set flag.
		colArrow.Print("-> ")
		colSuccess.Printf("Using custom -march=%s\n", mode)
		return applyMarch(curC, mode, ""), applyMarch(curCXX, mode, "")
	}
}

// exportCompilerFlags applies the policy for mode and exports the result
// so the emerge child process inherits it. Detect mode is advisory-only
// and exports nothing.
func exportCompilerFlags(mode string) {
	cflags, cxxflags := resolveCompilerFlags(mode, portageFlagVar("CFLAGS"), portageFlagVar("CXXFLAGS"))
	if mode == "detect" {
		return
	}
	os.Setenv("CFLAGS", cflags)
	os.Setenv("CXXFLAGS", cxxflags)
	colArrow.Print("-> ")
	colSuccess.Printf("CFLAGS=%s\n", cflags)
}

// detectHostLevel reads /proc/cpuinfo and reports the highest x86-64
// microarchitecture level the host supports.
func detectHostLevel() string {
	flags := make(map[string]bool)
	file, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "flags") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) >= 2 {
				for _, f := range strings.Fields(parts[1]) {
					flags[f] = true
				}
			}
			// Only need the first processor entry
			break
		}
	}

	switch {
	case flags["avx512f"]:
		return "x86-64-v4"
	case flags["avx2"]:
		return "x86-64-v3"
	case flags["sse4_2"]:
		return "x86-64-v2"
	case len(flags) > 0:
		return "x86-64"
	}
	return ""
}
