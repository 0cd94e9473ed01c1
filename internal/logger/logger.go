// Package logger prints tagged, optionally coloured console lines.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

var mu sync.Mutex

// colorEnabled is evaluated per call because tests swap os.Stdout.
func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func paint(color, s string) string {
	if !colorEnabled() {
		return s
	}
	return color + s + reset
}

func line(color, symbol, tag, msg string) {
	mu.Lock()
	defer mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(os.Stdout, "%s %s %s %s\n",
		paint(dim, ts),
		paint(color, symbol),
		paint(bold, fmt.Sprintf("[%s]", tag)),
		msg)
}

// Info logs a neutral progress message.
func Info(tag, msg string) { line(cyan, "•", tag, msg) }

// Success logs a completed step.
func Success(tag, msg string) { line(green, "✓", tag, msg) }

// Warn logs a recoverable problem.
func Warn(tag, msg string) { line(yellow, "!", tag, msg) }

// Error logs a failure.
func Error(tag, msg string) { line(red, "✗", tag, msg) }

// Banner prints the startup banner.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(os.Stdout, paint(cyan, "  ┌─────────────────────────────┐"))
	fmt.Fprintln(os.Stdout, paint(cyan, "  │        E V E   A T L A S     │"))
	fmt.Fprintln(os.Stdout, paint(cyan, "  └─────────────────────────────┘"))
	fmt.Fprintf(os.Stdout, "  %s\n\n", paint(dim, "version "+version))
}

// Section prints a heading for a group of Stats lines.
func Section(title string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(os.Stdout, "\n  %s\n  %s\n", paint(bold, title), paint(dim, strings.Repeat("─", len(title))))
}

// Stats prints one aligned key/value line.
func Stats(key string, value interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(os.Stdout, "  %-20s %v\n", key+":", value)
}

// Server announces the listening address.
func Server(addr string) {
	line(green, "▶", "Server", "Listening on http://"+addr)
}
