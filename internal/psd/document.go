package psd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"
)

// Keys of the global info blocks that hold the layer section of 16 and
// 32-bit documents instead of the layer info section proper.
var layerBlockKeys = []string{"Lr16", "Lr32", "Layr"}

// layerInfoAlign is the alignment of the layer info section on write.
const layerInfoAlign = 4

// LayerResult is one layer of a section: its record, its decoded planes
// and whatever went wrong decoding them. A failed layer keeps its record.
type LayerResult struct {
	Record *LayerRecord
	Planes *Planes
	Err    error
}

// LayerSection is the decoded layer info section.
type LayerSection struct {
	// MergedAlpha is set when the layer count was stored negated, meaning
	// the first alpha channel of the composite holds merged transparency.
	MergedAlpha bool
	Layers      []LayerResult
}

// Failed returns the layers whose pixel data could not be decoded.
func (s *LayerSection) Failed() []int {
	var idx []int
	for i, l := range s.Layers {
		if l.Err != nil {
			idx = append(idx, i)
		}
	}
	return idx
}

// ReadOptions controls how a layer section is decoded.
type ReadOptions struct {
	// Workers bounds the number of layers decoded at once. Zero means
	// GOMAXPROCS.
	Workers int

	// HeadersOnly skips channel data. Planes stay nil.
	HeadersOnly bool
}

func (o ReadOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ReadLayerSection reads a length-prefixed layer info section. A record
// that fails to parse aborts the section; a layer whose pixel data fails
// to decode only sets that layer's Err.
func ReadLayerSection(ctx context.Context, r io.Reader, hdr Header, opts ReadOptions) (*LayerSection, error) {
	length, err := readLength(r, hdr.Large())
	if err != nil {
		return nil, fmt.Errorf("read layer info length: %w", err)
	}
	Logger().Debug("layer info section", "length", length)
	if length == 0 {
		return &LayerSection{}, nil
	}
	return readLayerBody(ctx, r, length, hdr, opts)
}

// readLayerBody reads the section payload: count, records, channel data.
// Exactly length bytes are consumed, trailing padding included.
func readLayerBody(ctx context.Context, r io.Reader, length uint64, hdr Header, opts ReadOptions) (*LayerSection, error) {
	cr := &countingReader{r: io.LimitReader(r, int64(min(length, math.MaxInt64)))}

	var count int16
	if err := binary.Read(cr, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read layer count: %w", err)
	}
	section := &LayerSection{MergedAlpha: count < 0}
	n := int(count)
	if n < 0 {
		n = -n
	}

	// Every record comes before any channel data.
	section.Layers = make([]LayerResult, n)
	for i := range section.Layers {
		rec := &LayerRecord{}
		if err := rec.Read(cr, hdr); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		section.Layers[i].Record = rec
	}

	if !opts.HeadersOnly {
		if err := decodeLayers(ctx, cr, hdr, section.Layers, opts.workers()); err != nil {
			return section, err
		}
	}

	if _, err := io.Copy(io.Discard, cr); err != nil {
		return section, fmt.Errorf("skip layer info padding: %w", err)
	}
	if cr.n != length {
		return section, fmt.Errorf("%w: layer info declares %d bytes, stream holds %d", ErrTruncatedChannel, length, cr.n)
	}
	return section, nil
}

// decodeLayers reads every layer's compressed payloads in order and hands
// them to a bounded pool of decoders.
func decodeLayers(ctx context.Context, r io.Reader, hdr Header, layers []LayerResult, workers int) error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	log := Logger()

	var stop error
	for i := range layers {
		if err := ctx.Err(); err != nil {
			stop = err
			for j := i; j < len(layers); j++ {
				layers[j].Err = err
			}
			break
		}
		l := &layers[i]
		raw, err := l.Record.readRawChannels(r)
		if err != nil {
			// The stream position is unknown past a truncated channel, so
			// no later layer can be located either.
			stop = err
			for j := i; j < len(layers); j++ {
				layers[j].Err = fmt.Errorf("layer %d: %w", j, err)
			}
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, l *LayerResult, raw [][]byte) {
			defer wg.Done()
			defer func() { <-sem }()
			planes := NewPlanes()
			if err := l.Record.decodeRawChannels(raw, hdr, planes); err != nil {
				log.Warn("layer decode failed", "layer", idx, "name", l.Record.Name, "err", err)
				l.Err = fmt.Errorf("layer %d: %w", idx, err)
				return
			}
			l.Planes = planes
		}(i, l, raw)
	}
	wg.Wait()
	if stop != nil {
		return fmt.Errorf("decode layers: %w", stop)
	}
	return nil
}

// WriteLayerSection writes the length-prefixed layer info section: every
// record, then every layer's channel data compressed with c. The section
// is padded to a multiple of 4 bytes.
func WriteLayerSection(w io.WriteSeeker, hdr Header, section *LayerSection, c Compression) error {
	mark, err := beginLength(w, hdr.lengthWidth(), layerInfoAlign)
	if err != nil {
		return fmt.Errorf("layer info: %w", err)
	}
	if err := writeLayerBody(w, hdr, section, c); err != nil {
		return err
	}
	size, err := mark.close()
	if err != nil {
		return fmt.Errorf("layer info: %w", err)
	}
	Logger().Debug("wrote layer info section", "length", size, "layers", len(section.Layers))
	return nil
}

func writeLayerBody(w io.WriteSeeker, hdr Header, section *LayerSection, c Compression) error {
	if len(section.Layers) > math.MaxInt16 {
		return fmt.Errorf("%w: %d layers do not fit the layer count", ErrMalformedLayer, len(section.Layers))
	}
	count := int16(len(section.Layers))
	if section.MergedAlpha {
		count = -count
	}
	if err := binary.Write(w, binary.BigEndian, count); err != nil {
		return fmt.Errorf("write layer count: %w", err)
	}
	for i, l := range section.Layers {
		if l.Record == nil {
			return fmt.Errorf("layer %d has no record", i)
		}
		if err := l.Record.Write(w, hdr); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	for i, l := range section.Layers {
		var src PixelSource = l.Planes
		if l.Planes == nil {
			src = NewPlanes()
		}
		if err := l.Record.WritePixelData(w, hdr, src, c); err != nil {
			return fmt.Errorf("layer %d pixel data: %w", i, err)
		}
	}
	return nil
}

// Document is a whole PSD or PSB file. Everything but the layer section is
// kept opaque.
type Document struct {
	Header         Header
	ColorModeData  []byte
	ImageResources []byte

	Layers *LayerSection

	// LayersKey names the global info block the layers were read from, for
	// documents that store them in Lr16, Lr32 or Layr. Empty means the
	// layer info section.
	LayersKey string

	GlobalMask []byte
	GlobalInfo *InfoBlocks

	// ImageData is the composite image: compression selector and data.
	ImageData []byte
}

// ReadDocument parses a whole document. A layer whose pixel data fails to
// decode is reported in its LayerResult and does not fail the document.
// When the layer section ends inside channel data, the document read so
// far is returned with the error, its earlier layers intact.
func ReadDocument(ctx context.Context, r io.Reader, opts ReadOptions) (*Document, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	log := Logger()
	log.Debug("document header", "version", hdr.Version, "width", hdr.Width, "height", hdr.Height,
		"depth", hdr.Depth, "mode", hdr.ColorMode)
	d := &Document{Header: hdr}

	if d.ColorModeData, err = readSection(r, false, "color mode data"); err != nil {
		return nil, err
	}
	if d.ImageResources, err = readSection(r, false, "image resources"); err != nil {
		return nil, err
	}

	total, err := readLength(r, hdr.Large())
	if err != nil {
		return nil, fmt.Errorf("read layer and mask info length: %w", err)
	}
	cr := &countingReader{r: io.LimitReader(r, int64(min(total, math.MaxInt64)))}
	d.Layers = &LayerSection{}
	d.GlobalInfo = NewInfoBlocks()

	if total > 0 {
		section, err := ReadLayerSection(ctx, cr, hdr, opts)
		if err != nil {
			return partialDocument(d, section, err)
		}
		d.Layers = section
		if total-cr.n >= 4 {
			if d.GlobalMask, err = readSection(cr, false, "global layer mask info"); err != nil {
				return nil, err
			}
		}
		info, _, err := readInfoBlocks(cr, total-cr.n, hdr)
		if err != nil {
			return nil, fmt.Errorf("global info: %w", err)
		}
		d.GlobalInfo = info
		if _, err := io.Copy(io.Discard, cr); err != nil {
			return nil, fmt.Errorf("skip layer and mask padding: %w", err)
		}
		if cr.n != total {
			return nil, fmt.Errorf("%w: layer and mask info declares %d bytes, stream holds %d",
				ErrTruncatedChannel, total, cr.n)
		}
	}

	if len(d.Layers.Layers) == 0 {
		if err := d.readLayerBlock(ctx, opts); err != nil {
			return partialDocument(d, nil, err)
		}
	}

	if d.ImageData, err = io.ReadAll(r); err != nil {
		return nil, fmt.Errorf("read image data: %w", err)
	}
	log.Debug("document read", "layers", len(d.Layers.Layers), "layers_key", d.LayersKey,
		"global_blocks", d.GlobalInfo.Len(), "image_data", len(d.ImageData))
	return d, nil
}

// partialDocument keeps the layers of a section that ran out of channel
// data. Any other failure discards the document.
func partialDocument(d *Document, section *LayerSection, err error) (*Document, error) {
	if !errors.Is(err, ErrTruncatedChannel) {
		return nil, err
	}
	if section != nil {
		d.Layers = section
	}
	if len(d.Layers.Layers) == 0 {
		return nil, err
	}
	return d, err
}

// readLayerBlock decodes layers stored in a global info block.
func (d *Document) readLayerBlock(ctx context.Context, opts ReadOptions) error {
	for _, key := range layerBlockKeys {
		b, ok := d.GlobalInfo.Get(key)
		if !ok || len(b.Data) == 0 {
			continue
		}
		section, err := readLayerBody(ctx, NewBuffer(b.Data), uint64(len(b.Data)), d.Header, opts)
		if err != nil {
			if section != nil {
				d.Layers = section
				d.LayersKey = key
			}
			return fmt.Errorf("%s block: %w", key, err)
		}
		d.Layers = section
		d.LayersKey = key
		return nil
	}
	return nil
}

// readSection reads a 4 or 8-byte length followed by that many bytes.
func readSection(r io.Reader, wide bool, what string) ([]byte, error) {
	n, err := readLength(r, wide)
	if err != nil {
		return nil, fmt.Errorf("read %s length: %w", what, err)
	}
	data, err := readBytes(r, n)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s declares %d bytes", ErrTruncatedChannel, what, n)
		}
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	return data, nil
}

func writeSection(w io.Writer, data []byte, what string) error {
	if err := writeLength(w, 4, uint64(len(data))); err != nil {
		return fmt.Errorf("write %s length: %w", what, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", what, err)
	}
	return nil
}

// Write encodes the document, compressing every layer channel with c.
func (d *Document) Write(w io.WriteSeeker, c Compression) error {
	hdr := d.Header
	if err := WriteHeader(w, hdr); err != nil {
		return err
	}
	if err := writeSection(w, d.ColorModeData, "color mode data"); err != nil {
		return err
	}
	if err := writeSection(w, d.ImageResources, "image resources"); err != nil {
		return err
	}

	section := d.Layers
	if section == nil {
		section = &LayerSection{}
	}
	info := d.GlobalInfo.Clone()
	if d.LayersKey != "" {
		body := NewBuffer(nil)
		if err := writeLayerBody(body, hdr, section, c); err != nil {
			return fmt.Errorf("%s block: %w", d.LayersKey, err)
		}
		if pad := body.Len() % layerInfoAlign; pad != 0 {
			body.Write(make([]byte, layerInfoAlign-pad))
		}
		info.Set(d.LayersKey, body.Bytes())
		section = &LayerSection{}
	}

	mark, err := beginLength(w, hdr.lengthWidth(), 1)
	if err != nil {
		return fmt.Errorf("layer and mask info: %w", err)
	}
	if len(section.Layers) == 0 {
		if err := writeLength(w, hdr.lengthWidth(), 0); err != nil {
			return fmt.Errorf("write layer info length: %w", err)
		}
	} else if err := WriteLayerSection(w, hdr, section, c); err != nil {
		return err
	}
	if err := writeSection(w, d.GlobalMask, "global layer mask info"); err != nil {
		return err
	}
	if err := info.Encode(w, hdr); err != nil {
		return fmt.Errorf("global info: %w", err)
	}
	if _, err := mark.close(); err != nil {
		return fmt.Errorf("layer and mask info: %w", err)
	}

	if _, err := w.Write(d.ImageData); err != nil {
		return fmt.Errorf("write image data: %w", err)
	}
	return nil
}
