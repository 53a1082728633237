// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ui provides terminal output helpers for the repograph CLI.
//
// Color output respects the --no-color flag and the NO_COLOR environment
// variable, and is disabled automatically when stdout is not a TTY
// (e.g. when piped into another tool).
//
// Color usage:
//   - Red: errors, failures
//   - Yellow: warnings
//   - Green: success, completions
//   - Cyan: informational messages
//   - Bold: headers
//   - Dim: paths and secondary detail
package ui

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Pre-configured color instances for consistent CLI output.
var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors configures global color output. Call once in main() after flag
// parsing. Colors are disabled when noColor is set or stdout is not a TTY.
func InitColors(noColor bool) {
	if noColor || !IsTerminal() {
		color.NoColor = true
	}
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Success prints a green success line.
func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

// Successf prints a formatted green success line.
func Successf(format string, args ...any) {
	_, _ = Green.Printf("✓ "+format+"\n", args...)
}

// Warning prints a yellow warning line.
func Warning(msg string) {
	_, _ = Yellow.Println("⚠ " + msg)
}

// Warningf prints a formatted yellow warning line.
func Warningf(format string, args ...any) {
	_, _ = Yellow.Printf("⚠ "+format+"\n", args...)
}

// Error prints a red error line.
func Error(msg string) {
	_, _ = Red.Println("✗ " + msg)
}

// Errorf prints a formatted red error line.
func Errorf(format string, args ...any) {
	_, _ = Red.Printf("✗ "+format+"\n", args...)
}

// Info prints a cyan informational line.
func Info(msg string) {
	_, _ = Cyan.Println("ℹ " + msg)
}

// Infof prints a formatted cyan informational line.
func Infof(format string, args ...any) {
	_, _ = Cyan.Printf("ℹ "+format+"\n", args...)
}
