package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"psdkit/internal/scanner"

	"github.com/spf13/cobra"
)

// ScanCmd scans directories for PSD and PSB documents
var ScanCmd = &cobra.Command{
	Use:   "scan [folder]",
	Short: "Scan for documents",
	Long: `Discover PSD and PSB documents in the specified folder.
Shows file count, formats and total size. With --detailed every
document's layer records are parsed and the file is hashed.

Examples:
  psdkit scan                     # Scan current directory
  psdkit scan designs/ --detailed # List layers of every document`,
	Args: cobra.MaximumNArgs(1),
	Run:  runScan,
}

func init() {
	ScanCmd.Flags().BoolP("detailed", "d", false, "Parse layer records and hash every file")
	ScanCmd.Flags().Int("workers", 0, "Files read in parallel (0 = config value)")
	ScanCmd.Flags().Bool("json", false, "Output in JSON format")
}

// runScan performs scanning of documents
func runScan(cmd *cobra.Command, args []string) {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	cfg := loadConfig()
	detailed, _ := cmd.Flags().GetBool("detailed")
	asJSON, _ := cmd.Flags().GetBool("json")

	s := scanner.NewScanner()
	if detailed {
		s = scanner.NewDetailedScanner()
	}
	s.Workers = cfg.Decode.Workers
	if cmd.Flags().Changed("workers") {
		s.Workers, _ = cmd.Flags().GetInt("workers")
	}

	if !asJSON {
		fmt.Printf("Scanning documents in: %s\n", targetDir)
	}
	result, err := s.Scan(context.Background(), targetDir)
	if err != nil {
		exitWithError(err.Error(), "")
	}

	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			exitWithError(err.Error(), "")
		}
		fmt.Println(string(data))
		return
	}
	printScanResults(result)
}

// printScanResults displays scan results
func printScanResults(result *scanner.Result) {
	if result.TotalFiles == 0 {
		fmt.Println("No documents found.")
		fmt.Println("   Supported formats: .psd, .psb")
	} else {
		fmt.Printf("%s Found %d documents (%s)\n", green("✓"), result.TotalFiles, formatSize(result.TotalSize))
		for _, format := range []string{"psd", "psb"} {
			if n := result.TypeCounts[format]; n > 0 {
				fmt.Printf("   • %d %s files\n", n, strings.ToUpper(format))
			}
		}
		fmt.Println()
		for _, f := range result.Files {
			fmt.Printf("%s  %dx%d %s %d-bit, %s", bold(f.Path), f.Width, f.Height, f.ColorMode, f.Depth, formatSize(f.FileSize))
			if f.Detailed {
				fmt.Printf(", %s layers", cyan(f.Layers))
			}
			fmt.Println()
			if len(f.LayerNames) > 0 {
				fmt.Printf("   %s\n", strings.Join(f.LayerNames, ", "))
			}
		}
	}

	if len(result.ErrorFiles) > 0 {
		paths := make([]string, 0, len(result.ErrorFiles))
		for path := range result.ErrorFiles {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		fmt.Println()
		for _, path := range paths {
			printWarning(fmt.Sprintf("%s: %v", path, result.ErrorFiles[path]))
		}
	}

	fmt.Printf("\nScan completed in %v\n", result.ScanTime)
	if result.TotalFiles > 0 {
		fmt.Println("Use 'psdkit layers <file>' for detailed layer analysis")
	}
}
