package appack

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the merged key=value configuration.
type Config struct {
	Values map[string]string
}

// loadConfig reads /etc/appack.conf (if present) and applies APPACK_* env
// overrides on top. A missing file is not an error; every key has a default.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	mergeEnvOverrides(cfg)

	if tmp := cfg.Values["APPACK_TMPDIR"]; tmp == "" {
		cfg.Values["APPACK_TMPDIR"] = "/tmp"
	}

	return cfg, nil
}

// mergeEnvOverrides merges APPACK_* and R2_* environment variables into cfg.
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "APPACK_") || strings.HasPrefix(env, "R2_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

func initConfig(cfg *Config) {
	tmpDir = cfg.Values["APPACK_TMPDIR"]
	if tmpDir == "" {
		tmpDir = "/tmp"
	}

	installDeps = isTruthy(cfg.Values["APPACK_INSTALL_DEPS"])

	outputFormat = cfg.Values["APPACK_OUTPUT_FORMAT"]
	if outputFormat == "" {
		outputFormat = "appimage"
	}

	appimagetoolURL = cfg.Values["APPACK_APPIMAGETOOL_URL"]

	Debug = isTruthy(cfg.Values["APPACK_DEBUG"])
	Verbose = isTruthy(cfg.Values["APPACK_VERBOSE"])
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// runWorkDir returns the per-run working directory for a binary name.
func runWorkDir(binName string) string {
	return filepath.Join(tmpDir, "appack-"+binName)
}
