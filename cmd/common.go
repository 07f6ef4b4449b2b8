package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"psdkit/internal/config"
	"psdkit/internal/psd"

	"github.com/fatih/color"
)

// Global flags, bound by the root command.
var (
	ConfigPath string
	Verbose    bool
)

// Color functions using fatih/color library for better compatibility
var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// SetupLogging routes codec logs to stderr when --verbose is set
func SetupLogging() {
	if !Verbose {
		psd.SetLogger(nil)
		return
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	psd.SetLogger(slog.New(handler))
}

// loadConfig reads the settings file or exits with a readable error
func loadConfig() *config.Config {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		exitWithError(err.Error(), "Fix the settings file or pass --config with another path")
	}
	return cfg
}

// openDocument parses a PSD or PSB file. A document whose layer section is
// cut short comes back together with the error.
func openDocument(path string, opts psd.ReadOptions) (*psd.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer file.Close()

	doc, err := psd.ReadDocument(context.Background(), bufio.NewReaderSize(file, 1<<20), opts)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return doc, nil
}

// exitWithError prints error messages and exits with status code 1
// Provides consistent error handling across all commands
func exitWithError(message string, suggestion string) {
	if message != "" {
		printError(message)
		if suggestion != "" {
			printSuggestion(suggestion)
		}
	}
	os.Exit(1)
}

// printError prints an error message with red color formatting
func printError(message string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", red("Error"), message)
}

// printSuggestion prints a suggestion message with yellow color formatting
func printSuggestion(message string) {
	fmt.Fprintf(os.Stderr, "%s\n", yellow(message))
}

// printSuccess prints a success message with green color formatting
func printSuccess(message string) {
	fmt.Printf("%s %s\n", green("✓"), message)
}

// printWarning prints a warning message with yellow color formatting
func printWarning(message string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", yellow("Warning"), message)
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
