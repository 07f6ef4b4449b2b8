package psd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Rect is a document-space rectangle. Bottom and Right are exclusive.
type Rect struct {
	Top    int32
	Left   int32
	Bottom int32
	Right  int32
}

// Width returns Right - Left.
func (r Rect) Width() int { return int(r.Right) - int(r.Left) }

// Height returns Bottom - Top.
func (r Rect) Height() int { return int(r.Bottom) - int(r.Top) }

// Empty reports whether the rectangle holds no pixels.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Valid reports whether top <= bottom and left <= right.
func (r Rect) Valid() bool { return r.Top <= r.Bottom && r.Left <= r.Right }

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// Clipping is the layer clipping mode.
type Clipping uint8

const (
	ClippingBase    Clipping = 0
	ClippingNonBase Clipping = 1
)

const (
	layerFlagTransparencyProtected = 1 << 0
	layerFlagHidden                = 1 << 1
	layerFlagIrrelevantValid       = 1 << 3
	layerFlagIrrelevant            = 1 << 4
)

// DefaultBlendKey is the key of the normal blend mode.
const DefaultBlendKey = "norm"

const maxLegacyName = 255

// LayerRecord is the persisted metadata of one layer. Pixel data is read
// and written separately because the container stores every layer's
// record before any channel data.
type LayerRecord struct {
	Bounds   Rect
	Channels []ChannelDescriptor

	BlendKey              string
	Opacity               uint8
	Clipping              Clipping
	TransparencyProtected bool
	Visible               bool
	Irrelevant            bool

	// Name is the presentation name. When a luni block is present it wins
	// over the legacy name.
	Name string

	// LegacyName keeps the legacy Pascal name bytes verbatim, without the
	// alignment padding. When nil, Name is encoded on write.
	LegacyName []byte

	Mask           *LayerMask
	BlendingRanges []byte
	Info           *InfoBlocks
}

// NewLayerRecord returns a visible, fully opaque normal layer with the
// given channels.
func NewLayerRecord(name string, bounds Rect, channelIDs ...int16) *LayerRecord {
	channels := make([]ChannelDescriptor, len(channelIDs))
	for i, id := range channelIDs {
		channels[i].ID = id
	}
	return &LayerRecord{
		Bounds:   bounds,
		Channels: channels,
		BlendKey: DefaultBlendKey,
		Opacity:  255,
		Visible:  true,
		Name:     name,
		Info:     NewInfoBlocks(),
	}
}

// recordHead is the fixed prefix of a layer record.
type recordHead struct {
	Bounds   Rect
	Channels uint16
}

// blendHead follows the channel table.
type blendHead struct {
	Signature [4]byte
	Key       [4]byte
	Opacity   uint8
	Clipping  uint8
	Flags     uint8
	Filler    uint8
}

// Read decodes one layer record. On error l is left untouched: a
// half-decoded layer is never returned.
func (l *LayerRecord) Read(r io.Reader, hdr Header) error {
	log := Logger()

	var head recordHead
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return fmt.Errorf("read layer bounds: %w", err)
	}
	if !head.Bounds.Valid() {
		return fmt.Errorf("%w: inverted bounds %v", ErrMalformedLayer, head.Bounds)
	}
	log.Debug("layer record", "bounds", head.Bounds, "channels", head.Channels)

	channels, err := readChannelTable(r, head.Channels, hdr)
	if err != nil {
		return err
	}

	var blend blendHead
	if err := binary.Read(r, binary.BigEndian, &blend); err != nil {
		return fmt.Errorf("read blend mode: %w", err)
	}
	if string(blend.Signature[:]) != signature8BIM {
		return fmt.Errorf("%w: blend mode signature %q", ErrBadSignature, string(blend.Signature[:]))
	}
	if blend.Clipping > uint8(ClippingNonBase) {
		return fmt.Errorf("%w: clipping %d", ErrMalformedLayer, blend.Clipping)
	}
	if blend.Filler != 0 {
		return fmt.Errorf("%w: filler byte %d", ErrMalformedLayer, blend.Filler)
	}

	next := LayerRecord{
		Bounds:                head.Bounds,
		Channels:              channels,
		BlendKey:              string(blend.Key[:]),
		Opacity:               blend.Opacity,
		Clipping:              Clipping(blend.Clipping),
		TransparencyProtected: blend.Flags&layerFlagTransparencyProtected != 0,
		Visible:               blend.Flags&layerFlagHidden == 0,
		Irrelevant: blend.Flags&layerFlagIrrelevantValid != 0 &&
			blend.Flags&layerFlagIrrelevant != 0,
	}

	var extraLen uint32
	if err := binary.Read(r, binary.BigEndian, &extraLen); err != nil {
		return fmt.Errorf("read extra data length: %w", err)
	}
	if extraLen == 0 {
		next.Info = NewInfoBlocks()
	} else if err := next.readExtra(r, uint64(extraLen), hdr); err != nil {
		return err
	}

	next.Name = decodeLegacyName(next.LegacyName)
	if name, ok := next.Info.UnicodeName(); ok && name != "" {
		next.Name = name
	}
	log.Debug("layer record done", "name", next.Name, "blend", next.BlendKey, "info_blocks", next.Info.Len())

	*l = next
	return nil
}

// readExtra reads the length-prefixed block holding the mask, blending
// ranges, legacy name and info blocks. It must be consumed exactly.
func (l *LayerRecord) readExtra(r io.Reader, extraLen uint64, hdr Header) error {
	cr := &countingReader{r: io.LimitReader(r, int64(extraLen))}

	// Running into the limit means a nested field claims more than the
	// block declares.
	overrun := func(what string, err error) error {
		if cr.n == extraLen && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
			return fmt.Errorf("%w: %s runs past the %d-byte block", ErrExtraDataLength, what, extraLen)
		}
		return err
	}

	mask, err := readLayerMask(cr)
	if err != nil {
		return overrun("mask record", err)
	}

	var rangesLen uint32
	if err := binary.Read(cr, binary.BigEndian, &rangesLen); err != nil {
		return overrun("blending ranges length", fmt.Errorf("read blending ranges length: %w", err))
	}
	if uint64(rangesLen) > extraLen-cr.n {
		return fmt.Errorf("%w: blending ranges declare %d bytes, %d left", ErrExtraDataLength, rangesLen, extraLen-cr.n)
	}
	ranges, err := readBytes(cr, uint64(rangesLen))
	if err != nil {
		return fmt.Errorf("read blending ranges: %w", err)
	}

	var nameLen uint8
	if err := binary.Read(cr, binary.BigEndian, &nameLen); err != nil {
		return overrun("layer name", fmt.Errorf("read layer name length: %w", err))
	}
	padded := uint64((int(nameLen)+1+3)&^3) - 1
	if padded > extraLen-cr.n {
		return fmt.Errorf("%w: layer name needs %d bytes, %d left", ErrExtraDataLength, padded, extraLen-cr.n)
	}
	name, err := readBytes(cr, padded)
	if err != nil {
		return fmt.Errorf("read layer name: %w", err)
	}

	info, _, err := readInfoBlocks(cr, extraLen-cr.n, hdr)
	if err != nil {
		return err
	}
	if cr.n != extraLen {
		return fmt.Errorf("%w: declared %d, consumed %d", ErrExtraDataLength, extraLen, cr.n)
	}

	l.Mask = mask
	l.BlendingRanges = ranges
	l.LegacyName = name[:nameLen:nameLen]
	l.Info = info
	return nil
}

// Write encodes the record with zero placeholders for every channel
// length. WritePixelData patches them later, so w must stay seekable
// until then. The extra data length is patched before Write returns.
func (l *LayerRecord) Write(w io.WriteSeeker, hdr Header) error {
	if !l.Bounds.Valid() {
		return fmt.Errorf("%w: inverted bounds %v", ErrMalformedLayer, l.Bounds)
	}
	blendKey := l.BlendKey
	if blendKey == "" {
		blendKey = DefaultBlendKey
	}
	if len(blendKey) != 4 {
		return fmt.Errorf("%w: blend key %q is not 4 bytes", ErrBadSignature, blendKey)
	}
	if l.Clipping > ClippingNonBase {
		return fmt.Errorf("%w: clipping %d", ErrMalformedLayer, l.Clipping)
	}
	Logger().Debug("write layer record", "name", l.Name, "bounds", l.Bounds, "channels", len(l.Channels))

	if len(l.Channels) < 1 || len(l.Channels) > MaxChannels {
		return fmt.Errorf("%w: channel count %d outside 1..%d", ErrMalformedLayer, len(l.Channels), MaxChannels)
	}
	head := recordHead{Bounds: l.Bounds, Channels: uint16(len(l.Channels))}
	if err := binary.Write(w, binary.BigEndian, &head); err != nil {
		return fmt.Errorf("write layer bounds: %w", err)
	}

	ids := make([]int16, len(l.Channels))
	for i, ch := range l.Channels {
		ids[i] = ch.ID
	}
	channels, err := beginChannelTable(w, ids, hdr)
	if err != nil {
		return err
	}
	l.Channels = channels

	blend := blendHead{Opacity: l.Opacity, Clipping: uint8(l.Clipping)}
	copy(blend.Signature[:], signature8BIM)
	copy(blend.Key[:], blendKey)
	if l.TransparencyProtected {
		blend.Flags |= layerFlagTransparencyProtected
	}
	if !l.Visible {
		blend.Flags |= layerFlagHidden
	}
	if l.Irrelevant {
		blend.Flags |= layerFlagIrrelevantValid | layerFlagIrrelevant
	}
	if err := binary.Write(w, binary.BigEndian, &blend); err != nil {
		return fmt.Errorf("write blend mode: %w", err)
	}

	extra, err := beginLength(w, 4, 1)
	if err != nil {
		return fmt.Errorf("extra data: %w", err)
	}
	if err := writeLayerMask(w, l.Mask); err != nil {
		return fmt.Errorf("write mask record: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(l.BlendingRanges))); err != nil {
		return fmt.Errorf("write blending ranges length: %w", err)
	}
	if _, err := w.Write(l.BlendingRanges); err != nil {
		return fmt.Errorf("write blending ranges: %w", err)
	}
	if err := writeLegacyName(w, l.legacyName()); err != nil {
		return fmt.Errorf("write layer name: %w", err)
	}
	if err := l.infoForWrite().Encode(w, hdr); err != nil {
		return err
	}
	if _, err := extra.close(); err != nil {
		return fmt.Errorf("extra data: %w", err)
	}
	return nil
}

// infoForWrite returns the info table with luni refreshed from Name. An
// existing luni that already decodes to Name is kept byte for byte, and no
// luni is added when the legacy name already spells Name.
func (l *LayerRecord) infoForWrite() *InfoBlocks {
	info := l.Info.Clone()
	if l.Name == "" {
		return info
	}
	current, ok := info.UnicodeName()
	if !ok && decodeLegacyName(l.legacyName()) == l.Name {
		return info
	}
	if !ok || current != l.Name {
		info.SetUnicodeName(l.Name)
	}
	return info
}

func (l *LayerRecord) legacyName() []byte {
	if l.LegacyName != nil {
		return l.LegacyName
	}
	return encodeLegacyName(l.Name)
}

// writeLegacyName writes a Pascal string padded so that the length byte
// plus the name is a multiple of 4.
func writeLegacyName(w io.Writer, name []byte) error {
	if len(name) > maxLegacyName {
		name = name[:maxLegacyName]
	}
	padded := (len(name)+1+3)&^3 - 1
	buf := make([]byte, 1+padded)
	buf[0] = byte(len(name))
	copy(buf[1:], name)
	_, err := w.Write(buf)
	return err
}

// Legacy names are stored in the Mac OS Roman code page.
func decodeLegacyName(b []byte) string {
	s, err := charmap.Macintosh.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func encodeLegacyName(name string) []byte {
	b, err := encoding.ReplaceUnsupported(charmap.Macintosh.NewEncoder()).Bytes([]byte(name))
	if err != nil {
		return nil
	}
	if len(b) > maxLegacyName {
		b = b[:maxLegacyName]
	}
	return b
}

// channelBounds returns the rectangle a channel's plane covers: mask
// channels use the mask bounds, everything else the layer bounds.
func (l *LayerRecord) channelBounds(d ChannelDescriptor) Rect {
	if d.IsMask() && l.Mask != nil {
		return l.Mask.Bounds
	}
	return l.Bounds
}
