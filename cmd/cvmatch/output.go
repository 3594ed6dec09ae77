package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// scoreColor picks green for strong matches, yellow for partial, red below.
func scoreColor(score float64) string {
	switch {
	case score >= 70:
		return colorGreen
	case score >= 40:
		return colorYellow
	default:
		return colorRed
	}
}

// printAnalysis renders a match result for the terminal.
func printAnalysis(w io.Writer, a analysisResult) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Match score:"), colorize(scoreColor(a.MatchScore), fmt.Sprintf("%.1f", a.MatchScore)))
	if a.CVID != nil {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "CV:"), *a.CVID)
	} else {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "CV:"), "none stored (job description only)")
	}
	fmt.Fprintf(w, "\n%s\n", a.Summary)

	printList(w, "Strengths", colorGreen, a.Strengths)
	printList(w, "Gaps", colorRed, a.Gaps)
	printList(w, "Recommendations", colorCyan, a.Recommendations)

	if len(a.SkillsMatch) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Skills:"))
		for _, name := range sortedKeys(a.SkillsMatch) {
			fmt.Fprintf(w, "  %-24s %5.1f\n", name, a.SkillsMatch[name])
		}
	}
	fmt.Fprintf(w, "\n(%.0f ms)\n", a.ProcessingTimeMS)
}

func printList(w io.Writer, title, color string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, title+":"))
	for _, it := range items {
		fmt.Fprintf(w, "  %s %s\n", colorize(color, "•"), strings.TrimSpace(it))
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
