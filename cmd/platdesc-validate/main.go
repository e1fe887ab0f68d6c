// platdesc-validate checks a platform descriptor file and reports every
// layout problem found. Exit codes: 0 the layout is valid, 1 the layout is
// invalid, 2 bad usage or an unreadable document.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/axle-os/platdesc/internal/cli"
	"github.com/axle-os/platdesc/internal/diagnostics"
	"github.com/axle-os/platdesc/internal/platform"
)

func usage() {
	fmt.Fprintf(os.Stderr, `platdesc-validate - validate a platform descriptor

USAGE:
    platdesc-validate [OPTIONS] <descriptor.toml>

OPTIONS:
    --json       Emit diagnostics as JSON on stdout
    --watch      Re-validate whenever the descriptor file changes
    --no-color   Disable ANSI colors (also: PLATDESC_NO_COLOR)
    --verbose    Debug logging (also: PLATDESC_VERBOSE)
    --version    Show version information
`)
}

func main() {
	opts, err := cli.OptionsFromEnv()
	if err != nil {
		cli.ExitWithError("%v", err)
	}

	jsonOut := flag.Bool("json", false, "emit diagnostics as JSON")
	watch := flag.Bool("watch", false, "re-validate on file changes")
	noColor := flag.Bool("no-color", opts.NoColor, "disable ANSI colors")
	verbose := flag.Bool("verbose", opts.Verbose, "debug logging")
	version := flag.Bool("version", false, "show version information")
	flag.Usage = usage
	flag.Parse()

	if *version {
		cli.PrintVersion("platdesc-validate", *jsonOut)
		return
	}

	path := flag.Arg(0)
	if path == "" {
		path = opts.Config
	}
	if path == "" || flag.NArg() > 1 {
		usage()
		os.Exit(2)
	}

	opts.NoColor = *noColor
	color := cli.UseColor(opts) && !*jsonOut

	if *watch {
		logger := cli.NewLogger(*verbose)
		defer logger.Sync() //nolint:errcheck // stderr sync is best-effort
		watchLoop(logger, path, *jsonOut, color)
		return
	}
	os.Exit(runOnce(path, *jsonOut, color, true))
}

// runOnce validates one descriptor file and renders its report.
func runOnce(path string, jsonOut, color, summary bool) int {
	p, diags, err := platform.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOut {
		if err := diagnostics.RenderJSON(os.Stdout, diags); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
	} else if err := diagnostics.Render(os.Stderr, diags, diagnostics.RenderOptions{Color: color}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if p == nil {
		if !jsonOut {
			fmt.Fprintf(os.Stderr, "%s: layout is invalid\n", path)
		}
		return 1
	}
	if summary && !jsonOut {
		name := p.Name()
		if name == "" {
			name = "platform"
		}
		fmt.Printf("%s: %s layout is valid\n", path, name)
	}
	return 0
}

// watchLoop re-validates the descriptor whenever it changes. The watch sits
// on the parent directory because editors typically replace the file by
// rename, which drops a watch placed on the file itself.
func watchLoop(logger *zap.Logger, path string, jsonOut, color bool) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cli.ExitWithError("create watcher: %v", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		cli.ExitWithError("watch %s: %v", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		cli.ExitWithError("resolve %s: %v", path, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	logger.Info("watching descriptor", zap.String("path", path))
	runOnce(path, jsonOut, color, true)

	// Editors fire bursts of events per save; coalesce them.
	const debounce = 100 * time.Millisecond
	var pending *time.Timer
	rerun := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || abs != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("descriptor changed", zap.String("op", ev.Op.String()))
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})

		case <-rerun:
			code := runOnce(path, jsonOut, color, true)
			logger.Info("re-validated", zap.Int("exit_code", code))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", zap.Error(err))

		case <-sig:
			logger.Info("stopping")
			return
		}
	}
}
