package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/danieljhkim/assetmirror/internal/state"
)

var (
	// fatih/color disables these when stdout is not a TTY.
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
	valueColor   = color.New(color.FgHiBlack)
	dimColor     = color.New(color.FgHiBlack)
)

// initColors is a hook for output setup; fatih/color detects the TTY itself.
func initColors() {}

// PrintSection prints a section header
func PrintSection(title string) {
	initColors()
	fmt.Println()
	_, _ = headerColor.Printf("▸ %s\n", title)
	fmt.Println()
}

// PrintSubsection prints a subsection header
func PrintSubsection(title string) {
	initColors()
	_, _ = infoColor.Printf("  %s\n", title)
}

// PrintSuccess prints a success message with a checkmark
func PrintSuccess(msg string) {
	initColors()
	_, _ = successColor.Printf("✓ %s\n", msg)
}

// PrintWarning prints a warning message with a warning symbol
func PrintWarning(msg string) {
	initColors()
	_, _ = warningColor.Printf("⚠ %s\n", msg)
}

// PrintError prints an error message to stderr
func PrintError(msg string) {
	initColors()
	_, _ = errorColor.Fprintf(os.Stderr, "✗ %s\n", msg)
}

// PrintInfo prints an informational message
func PrintInfo(msg string) {
	initColors()
	fmt.Println(msg)
}

// PrintList prints a list of items with bullet points
func PrintList(items []string, indent int) {
	initColors()
	indentStr := strings.Repeat("  ", indent)
	for _, item := range items {
		_, _ = infoColor.Printf("%s• %s\n", indentStr, item)
	}
}

// PrintTable prints an aligned table. cellColor picks the color of each
// body cell; nil colors every cell alike.
func PrintTable(headers []string, rows [][]string, cellColor func(col int, cell string) *color.Color) {
	initColors()
	if len(headers) == 0 || len(rows) == 0 {
		return
	}
	if cellColor == nil {
		cellColor = func(int, string) *color.Color { return valueColor }
	}

	colWidths := make([]int, len(headers))
	for i, header := range headers {
		colWidths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(colWidths) && len(cell) > colWidths[i] {
				colWidths[i] = len(cell)
			}
		}
	}

	_, _ = headerColor.Print("  ")
	for i, header := range headers {
		if i > 0 {
			fmt.Print("  ")
		}
		_, _ = headerColor.Printf("%-*s", colWidths[i], header)
	}
	fmt.Println()

	fmt.Print("  ")
	for i, width := range colWidths {
		if i > 0 {
			fmt.Print("  ")
		}
		fmt.Print(strings.Repeat("-", width))
	}
	fmt.Println()

	for _, row := range rows {
		fmt.Print("  ")
		for i, cell := range row {
			if i >= len(colWidths) {
				break
			}
			if i > 0 {
				fmt.Print("  ")
			}
			_, _ = cellColor(i, cell).Printf("%-*s", colWidths[i], cell)
		}
		fmt.Println()
	}
}

// resultColor colors a run record result.
func resultColor(result string) *color.Color {
	switch result {
	case state.ResultOK:
		return successColor
	case state.ResultNoSource:
		return warningColor
	case state.ResultError:
		return errorColor
	default:
		return dimColor
	}
}

// PrintEmptyState prints a message when there's no data to show
func PrintEmptyState(msg string) {
	initColors()
	_, _ = dimColor.Printf("  %s\n", msg)
}

// PrintCount formats a count with the singular or plural noun.
func PrintCount(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}
