//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package cli

func stderrIsTerminal() bool { return false }
