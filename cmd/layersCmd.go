package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"psdkit/internal/psd"

	"github.com/spf13/cobra"
)

// LayersCmd lists every layer record of a document
var LayersCmd = &cobra.Command{
	Use:   "layers <file>",
	Short: "List layer records",
	Long: `List the layer records of a document: bounds, blend mode,
channels, masks and additional info blocks.

Examples:
  psdkit layers design.psd
  psdkit layers design.psd --json`,
	Args: cobra.ExactArgs(1),
	Run:  runLayers,
}

func init() {
	LayersCmd.Flags().Bool("json", false, "Output in JSON format")
}

// layerView is the printed form of one layer record
type layerView struct {
	Index       int           `json:"index"`
	Name        string        `json:"name"`
	Bounds      [4]int32      `json:"bounds"` // top, left, bottom, right
	BlendMode   string        `json:"blend_mode"`
	Opacity     uint8         `json:"opacity"`
	Visible     bool          `json:"visible"`
	Clipping    bool          `json:"clipping"`
	Protected   bool          `json:"transparency_protected"`
	Irrelevant  bool          `json:"irrelevant,omitempty"`
	Section     string        `json:"section,omitempty"`
	Channels    []channelView `json:"channels"`
	Mask        *maskView     `json:"mask,omitempty"`
	InfoBlocks  []string      `json:"info_blocks"`
	HasEffects  bool          `json:"has_effects,omitempty"`
	RangesBytes int           `json:"blending_ranges_bytes"`
}

type channelView struct {
	ID     int16  `json:"id"`
	Role   string `json:"role"`
	Length uint64 `json:"length"`
}

type maskView struct {
	Bounds        [4]int32 `json:"bounds"`
	DefaultColor  uint8    `json:"default_color"`
	DefaultSample string   `json:"default_sample"` // Default color at document depth, hex
	Relative      bool     `json:"relative"`
	Disabled      bool     `json:"disabled"`
	Invert        bool     `json:"invert"`
}

func runLayers(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	doc, err := openDocument(args[0], psd.ReadOptions{HeadersOnly: true})
	if err != nil {
		exitWithError(err.Error(), "Check that the file is a PSD or PSB document")
	}

	views := make([]layerView, len(doc.Layers.Layers))
	for i, l := range doc.Layers.Layers {
		views[i] = newLayerView(i, l.Record, doc.Header)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(views); err != nil {
			exitWithError(fmt.Sprintf("failed to encode layers: %v", err), "")
		}
		return
	}
	printLayers(views)
}

func newLayerView(idx int, rec *psd.LayerRecord, hdr psd.Header) layerView {
	b := rec.Bounds
	v := layerView{
		Index:       idx,
		Name:        rec.Name,
		Bounds:      [4]int32{b.Top, b.Left, b.Bottom, b.Right},
		BlendMode:   rec.BlendKey,
		Opacity:     rec.Opacity,
		Visible:     rec.Visible,
		Clipping:    rec.Clipping == psd.ClippingNonBase,
		Protected:   rec.TransparencyProtected,
		Irrelevant:  rec.Irrelevant,
		InfoBlocks:  rec.Info.Keys(),
		RangesBytes: len(rec.BlendingRanges),
	}
	for _, ch := range rec.Channels {
		v.Channels = append(v.Channels, channelView{
			ID:     ch.ID,
			Role:   psd.ResolveChannel(ch.ID, hdr.ColorMode).Name,
			Length: ch.Length,
		})
	}
	if m := rec.Mask; m != nil {
		mb := m.Bounds
		v.Mask = &maskView{
			Bounds:        [4]int32{mb.Top, mb.Left, mb.Bottom, mb.Right},
			DefaultColor:  m.DefaultColor,
			DefaultSample: hex.EncodeToString(m.DefaultSample(hdr.SampleSize())),
			Relative:      m.RelativeToLayer,
			Disabled:      m.Disabled,
			Invert:        m.Invert,
		}
	}
	if d, ok := rec.Info.SectionDivider(); ok {
		v.Section = d.Type.String()
	}
	_, v.HasEffects = rec.Info.Effects()
	return v
}

func printLayers(views []layerView) {
	if len(views) == 0 {
		fmt.Println("No layers found.")
		return
	}
	fmt.Printf("%s %d\n\n", bold("Layers:"), len(views))
	for _, v := range views {
		state := green("visible")
		if !v.Visible {
			state = yellow("hidden")
		}
		fmt.Printf("%3d. %s [%s]\n", v.Index, bold(v.Name), state)
		fmt.Printf("     bounds (%d,%d)-(%d,%d)  blend %s  opacity %d",
			v.Bounds[1], v.Bounds[0], v.Bounds[3], v.Bounds[2], v.BlendMode, v.Opacity)
		if v.Clipping {
			fmt.Print("  clipped")
		}
		if v.Section != "" {
			fmt.Printf("  %s", cyan(v.Section))
		}
		fmt.Println()

		parts := make([]string, len(v.Channels))
		for i, ch := range v.Channels {
			parts[i] = fmt.Sprintf("%s=%s", ch.Role, formatSize(int64(ch.Length)))
		}
		fmt.Printf("     channels: %s\n", strings.Join(parts, ", "))
		if v.Mask != nil {
			fmt.Printf("     mask (%d,%d)-(%d,%d) default %d (0x%s)\n",
				v.Mask.Bounds[1], v.Mask.Bounds[0], v.Mask.Bounds[3], v.Mask.Bounds[2], v.Mask.DefaultColor, v.Mask.DefaultSample)
		}
		if len(v.InfoBlocks) > 0 {
			fmt.Printf("     info: %s\n", strings.Join(v.InfoBlocks, " "))
		}
	}
}
