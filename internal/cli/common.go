// Package cli carries the plumbing shared by the platdesc command-line
// tools: version reporting, environment-derived options, logger setup, and
// exit helpers.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version information for all CLI tools.
const (
	Version   = "0.3.0"
	BuildDate = "2026-08-25"
	CommitSHA = "unknown" // set during build
)

// VersionInfo contains version and build information.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	CommitSHA string `json:"commit_sha"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
}

// GetVersionInfo returns structured version information.
func GetVersionInfo() *VersionInfo {
	return &VersionInfo{
		Version:   Version,
		BuildDate: BuildDate,
		CommitSHA: CommitSHA,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// PrintVersion prints version information in a consistent format.
func PrintVersion(toolName string, jsonOutput bool) {
	info := GetVersionInfo()

	if jsonOutput {
		data, err := json.MarshalIndent(map[string]any{
			"tool":         toolName,
			"version_info": info,
		}, "", "  ")
		if err == nil {
			fmt.Println(string(data))
			return
		}
		fmt.Fprintf(os.Stderr, "Error: failed to marshal version info: %v\n", err)
	}

	fmt.Printf("%s v%s\n", toolName, info.Version)
	fmt.Printf("Build Date: %s\n", info.BuildDate)
	if info.CommitSHA != "unknown" && info.CommitSHA != "" {
		fmt.Printf("Commit: %s\n", info.CommitSHA)
	}
	fmt.Printf("Go Version: %s\n", info.GoVersion)
	fmt.Printf("Platform: %s/%s\n", info.Platform, info.Arch)
}

// Options are the settings every tool honors, populated from the
// environment before flags are applied on top.
type Options struct {
	NoColor bool   `env:"PLATDESC_NO_COLOR"`
	Verbose bool   `env:"PLATDESC_VERBOSE"`
	Config  string `env:"PLATDESC_CONFIG"`
}

// OptionsFromEnv reads tool options from PLATDESC_* environment variables.
func OptionsFromEnv() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, fmt.Errorf("parse environment options: %w", err)
	}
	return opts, nil
}

// NewLogger builds the console logger the tools use. Verbose enables debug
// level output.
func NewLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		// The development config only fails on invalid output paths.
		panic(err)
	}
	return logger
}

// UseColor decides whether reports should carry ANSI colors: only on a tty,
// and never when NO_COLOR semantics are requested.
func UseColor(opts Options) bool {
	return !opts.NoColor && stderrIsTerminal()
}

// ExitWithError prints an error message and exits with code 2 (bad usage or
// environment, as opposed to code 1 for an invalid layout).
func ExitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(2)
}
