package commands

import (
	"fmt"
)

// Shared output helpers so every command prints the same way.

// PrintKeyValue prints one aligned key-value pair.
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("  %-*s : %s\n", keyWidth, key, value)
}

// PrintTableHeader prints a table header with a separator line.
func PrintTableHeader(columns []string, widths []int) {
	for i, col := range columns {
		fmt.Printf("%-*s", widths[i], col)
		if i < len(columns)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2
		}
	}
	for i := 0; i < totalWidth; i++ {
		fmt.Print("─")
	}
	fmt.Println()
}

// PrintTableRow prints a table row aligned to the header widths.
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintSuccess prints a success message.
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintWarning prints a warning message.
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}
