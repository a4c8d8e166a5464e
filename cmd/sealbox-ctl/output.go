package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Color codes
var (
	colorEnabled = true

	resetCode  = "\033[0m"
	boldCode   = "\033[1m"
	dimCode    = "\033[2m"
	redCode    = "\033[31m"
	greenCode  = "\033[32m"
	yellowCode = "\033[33m"
)

// InitColor initializes color output based on environment
func InitColor(enabled bool) {
	colorEnabled = enabled

	// Disable colors if not a terminal
	if !isTerminal() {
		colorEnabled = false
	}

	// Check NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorEnabled = false
	}
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// Color functions
func colorize(s, code string) string {
	if !colorEnabled {
		return s
	}
	return code + s + resetCode
}

// Bold returns bold text
func Bold(s string) string {
	return colorize(s, boldCode)
}

// Dim returns dimmed text
func Dim(s string) string {
	return colorize(s, dimCode)
}

// Red returns red text
func Red(s string) string {
	return colorize(s, redCode)
}

// Green returns green text
func Green(s string) string {
	return colorize(s, greenCode)
}

// Yellow returns yellow text
func Yellow(s string) string {
	return colorize(s, yellowCode)
}

// printJSON prints data as formatted JSON
func printJSON(data interface{}) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// formatExpiry formats a unix expiration timestamp for display
func formatExpiry(ts int64) string {
	if ts <= 0 {
		return Dim("never")
	}

	t := time.Unix(ts, 0)
	remaining := time.Until(t)
	if remaining <= 0 {
		return Red("expired")
	}

	var rel string
	switch {
	case remaining < time.Minute:
		rel = "in less than a minute"
	case remaining < time.Hour:
		rel = fmt.Sprintf("in %d minutes", int(remaining.Minutes()))
	case remaining < 24*time.Hour:
		rel = fmt.Sprintf("in %d hours", int(remaining.Hours()))
	default:
		rel = fmt.Sprintf("in %d days", int(remaining.Hours()/24))
	}

	return fmt.Sprintf("%s %s", t.Format("2006-01-02 15:04:05 MST"), Dim("("+rel+")"))
}

// Spinner for long-running operations
var spinnerActive = false

// ShowSpinner displays a loading spinner with message
func ShowSpinner(msg string) {
	if !isTerminal() {
		fmt.Println(msg)
		return
	}
	spinnerActive = true
	fmt.Printf("\r%s %s", Dim("⠋"), msg)
}

// HideSpinner hides the spinner
func HideSpinner() {
	if !spinnerActive {
		return
	}
	spinnerActive = false
	fmt.Print("\r\033[K") // Clear line
}

// Success prints a success message
func Success(msg string) {
	fmt.Printf("%s %s\n", Green("✓"), msg)
}

// Warning prints a warning message
func Warning(msg string) {
	fmt.Printf("%s %s\n", Yellow("!"), msg)
}
