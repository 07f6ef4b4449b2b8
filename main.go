package main

import (
	"fmt"
	"os"

	"psdkit/cmd"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "psdkit",
	Short: "psdkit - Photoshop layer record toolkit",
	Long: `psdkit reads and writes the layer records of PSD and PSB documents
bit for bit, including channel pixel data in every compression scheme.

Key Features:
- Directory scans for PSD and PSB documents
- Layer records, masks, blending ranges and additional info blocks
- Raw, RLE, Zip and Zip-with-prediction channel data at 8, 16 and 32 bits
- Plane extraction into lz4 or zstd archives
- Binary deltas between document versions`,
	PersistentPreRun: func(*cobra.Command, []string) {
		cmd.SetupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cmd.ConfigPath, "config", "", "Settings file (default ~/.psdkit.json)")
	rootCmd.PersistentFlags().BoolVarP(&cmd.Verbose, "verbose", "v", false, "Log codec activity to stderr")

	rootCmd.AddCommand(cmd.ScanCmd)
	rootCmd.AddCommand(cmd.InfoCmd)
	rootCmd.AddCommand(cmd.LayersCmd)
	rootCmd.AddCommand(cmd.ExtractCmd)
	rootCmd.AddCommand(cmd.RepackCmd)
	rootCmd.AddCommand(cmd.DeltaCmd)
	rootCmd.AddCommand(cmd.PatchCmd)
	rootCmd.AddCommand(cmd.ConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
