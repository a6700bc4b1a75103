package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

// messages is where status lines go. Command results go to the command's
// output instead, so they can be piped.
var messages io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(messages, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(messages, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(messages, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(messages, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(messages, colorize(colorCyan, "→ "+msg))
}

// formatBytes renders n in decimal (kB) or IEC (KiB) units.
func formatBytes(n int64, iec bool) string {
	base, units := int64(1000), []string{"B", "kB", "MB", "GB", "TB"}
	if iec {
		base, units = 1024, []string{"B", "KiB", "MiB", "GiB", "TiB"}
	}
	if n < base {
		return fmt.Sprintf("%d B", n)
	}
	f := float64(n)
	i := 0
	for f >= float64(base) && i < len(units)-1 {
		f /= float64(base)
		i++
	}
	s := fmt.Sprintf("%.1f", f)
	s = strings.TrimSuffix(s, ".0")
	return s + " " + units[i]
}
