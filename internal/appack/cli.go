package appack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// invocation is the resolved configuration for one run, immutable once
// parsed.
type invocation struct {
	Pkg     string // portage package identifier, e.g. app-misc/jq
	Binary  string // executable name to look for in the staged tree
	Display string // human-readable name for the desktop entry
	Mode    string // march mode: detect, native, a level, or custom
}

var errUsage = errors.New("usage: too few arguments")

// parseArgs resolves positional arguments and fills in the defaults.
// No further validation happens here: a bad package identifier or
// binary name only surfaces downstream as a not-found failure.
func parseArgs(args []string) (*invocation, error) {
	if len(args) < 2 {
		return nil, errUsage
	}
	inv := &invocation{
		Pkg:    args[0],
		Binary: args[1],
	}
	if len(args) >= 3 {
		inv.Display = args[2]
	} else {
		inv.Display = strings.ToUpper(inv.Binary)
	}
	if len(args) >= 4 {
		inv.Mode = args[3]
	} else {
		inv.Mode = DefaultMarchMode
	}
	return inv, nil
}

func printUsage() {
	colSuccess.Println("Usage: appack <package> <binary> [display-name] [march-mode]")
	fmt.Println()
	color.Info.Println("Arguments:")
	fmt.Println("  package       portage package identifier (e.g. app-misc/jq)")
	fmt.Println("  binary        executable name to bundle (e.g. jq)")
	fmt.Println("  display-name  desktop entry name (default: uppercased binary)")
	fmt.Println("  march-mode    detect | native | x86-64[-v2|-v3|-v4] | custom -march value")
	fmt.Println("                (default: x86-64)")
	fmt.Println()
	color.Info.Println("Configuration: /etc/appack.conf, overridden by APPACK_* environment")
}

func printVersion() {
	fmt.Printf("appack %s (%s) built %s\n", version, hostArch, buildDate)
}

// Main is the CLI entrypoint for cmd/appack.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					// Critical phase (emerge writing the staging root):
					// block the first signal, force exit on the second.
					colArrow.Print("\n-> ")
					colError.Printf("Install in progress. Press Ctrl+C AGAIN to force exit NOW.\n")
					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						colError.Printf("Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					colArrow.Print("\n-> ")
					color.Danger.Printf("Received %v. Cancelling gracefully\n", sig)
					cancel()
					time.Sleep(100 * time.Millisecond)
					select {
					case <-sigs:
						os.Exit(130)
					case <-time.After(2 * time.Second):
						os.Exit(0)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "version", "--version":
			printVersion()
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	inv, err := parseArgs(os.Args[1:])
	if err != nil {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig(ConfigFile)
	if err != nil {
		colWarn.Printf("Warning: config read failed, using defaults: %v\n", err)
	}
	initConfig(cfg)

	UserExec = &Executor{Context: ctx}
	RootExec = &Executor{Context: ctx, ShouldRunAsRoot: true}

	if err := run(ctx, cfg, inv); err != nil {
		if errors.Is(err, errBinaryNotFound) {
			colError.Printf("Error: no executable named %q found in the installed tree for %s\n", inv.Binary, inv.Pkg)
			colError.Println("Check that the binary name matches what the package installs.")
			os.Exit(2)
		}
		colError.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the pipeline end to end. Steps are strictly sequential;
// each either finishes, warns and continues (audit, icon), or aborts
// the whole run.
func run(ctx context.Context, cfg *Config, inv *invocation) error {
	// 1. Compiler flags must be exported before emerge reads them.
	exportCompilerFlags(inv.Mode)

	// 2. Fresh working directory. A previous run for the same binary is
	// discarded; the staged tree may be root-owned, so removal goes
	// through the elevated executor.
	workDir = runWorkDir(inv.Binary)
	appDir = filepath.Join(workDir, inv.Binary+".AppDir")

	if fileExists(workDir) {
		rmCmd := exec.Command("rm", "-rf", workDir)
		if err := RootExec.Run(rmCmd); err != nil {
			return fmt.Errorf("failed to clear working directory %s: %w", workDir, err)
		}
	}
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", appDir, err)
	}

	// 3. Materialize the package into the staging tree.
	isCriticalAtomic.Store(1)
	err := materializePackage(inv.Pkg, RootExec)
	isCriticalAtomic.Store(0)
	if err != nil {
		return err
	}

	// 4. Normalize the staging layout (no-op for the leaf-only variant).
	if err := normalizeLayout(appDir); err != nil {
		return err
	}

	// 5. Locate the requested binary.
	binPath, err := locateBinary(appDir, inv.Binary)
	if err != nil {
		return err
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Found binary: %s\n", binPath)

	// 6. Launcher, desktop entry and icon.
	if err := ensureExecLink(appDir, binPath, inv.Binary); err != nil {
		return err
	}
	if err := writeLauncher(appDir, inv.Binary); err != nil {
		return err
	}
	if err := writeDesktopEntry(appDir, inv.Binary, inv.Display); err != nil {
		return err
	}
	generateIcon(appDir, inv.Binary, inv.Display)

	// 7. Bundle the runtime library dependencies (best-effort).
	auditLibraries(appDir, binPath, newDependencyLister(RootExec))

	// 8. Produce and report the final artifact.
	artifact, err := buildBundle(inv.Binary, UserExec)
	if err != nil {
		return err
	}
	reportArtifact(artifact)
	maybeUploadArtifact(ctx, cfg, artifact)
	return nil
}
