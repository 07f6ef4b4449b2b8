package psd

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxChannels is the largest channel count a layer or document may declare.
const MaxChannels = 56

// Reserved negative channel ids.
const (
	ChannelTransparency int16 = -1
	ChannelUserMask     int16 = -2
	ChannelRealUserMask int16 = -3 // user mask when a vector mask is present too
)

// ChannelDescriptor is one entry of a layer's channel table.
type ChannelDescriptor struct {
	ID int16

	// Length is the on-disk size of the channel data, including its 2-byte
	// compression selector.
	Length uint64

	// Compression and Residual are filled in once pixel data is read or
	// written. Residual counts trailing bytes the scheme did not need.
	Compression Compression
	Residual    int

	offset int64 // position of the length field, set by beginChannelTable
}

// IsMask reports whether the channel is a user or vector mask and thus
// laid out over the mask bounds rather than the layer bounds.
func (d ChannelDescriptor) IsMask() bool {
	return d.ID < ChannelTransparency
}

// readChannelTable reads count (id, length) pairs. Nothing is returned
// unless the whole table is valid.
func readChannelTable(r io.Reader, count uint16, hdr Header) ([]ChannelDescriptor, error) {
	if count < 1 || count > MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d outside 1..%d", ErrMalformedLayer, count, MaxChannels)
	}
	channels := make([]ChannelDescriptor, count)
	for i := range channels {
		if err := binary.Read(r, binary.BigEndian, &channels[i].ID); err != nil {
			return nil, fmt.Errorf("read id of channel %d: %w", i, err)
		}
		length, err := readLength(r, hdr.Large())
		if err != nil {
			return nil, fmt.Errorf("read length of channel %d: %w", i, err)
		}
		channels[i].Length = length
	}
	return channels, nil
}

// beginChannelTable writes every id followed by a zero length placeholder
// and remembers where each placeholder lives.
func beginChannelTable(w io.WriteSeeker, ids []int16, hdr Header) ([]ChannelDescriptor, error) {
	if len(ids) < 1 || len(ids) > MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d outside 1..%d", ErrMalformedLayer, len(ids), MaxChannels)
	}
	channels := make([]ChannelDescriptor, len(ids))
	for i, id := range ids {
		if err := binary.Write(w, binary.BigEndian, id); err != nil {
			return nil, fmt.Errorf("write id of channel %d: %w", i, err)
		}
		mark, err := beginLength(w, hdr.lengthWidth(), 1)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		channels[i] = ChannelDescriptor{ID: id, offset: mark.pos}
	}
	return channels, nil
}

// patchChannel overwrites the placeholder of d with length.
func patchChannel(w io.WriteSeeker, d *ChannelDescriptor, length uint64, hdr Header) error {
	if d.offset <= 0 {
		return fmt.Errorf("channel %d has no length placeholder", d.ID)
	}
	if err := patchAt(w, d.offset, hdr.lengthWidth(), length); err != nil {
		return fmt.Errorf("channel %d: %w", d.ID, err)
	}
	d.Length = length
	return nil
}

// ChannelKind classifies a channel id.
type ChannelKind int

const (
	KindUnknown ChannelKind = iota
	KindColor
	KindAlpha
	KindTransparency
	KindUserMask
	KindRealUserMask
)

var kindNames = [...]string{"unknown", "color", "alpha", "transparency", "user mask", "real user mask"}

func (k ChannelKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ChannelKind(%d)", int(k))
}

// ChannelRole is what a channel id means under a color model.
type ChannelRole struct {
	Kind ChannelKind
	Name string
}

// IsColor reports whether the channel carries a color component.
func (r ChannelRole) IsColor() bool { return r.Kind == KindColor }

// colorModel lists the fixed color channels of a mode. With numbered set,
// every non-negative id is a color channel named prefix + id. With
// extraAlpha unset, ids past the fixed list are unknown instead of alpha.
type colorModel struct {
	names      []string
	numbered   bool
	prefix     string
	extraAlpha bool
}

// The 16 and 32-bit variants (RGB48, CMYK64, Gray16, ...) share the table
// of their 8-bit mode; depth travels separately in Header.
var colorModels = map[ColorMode]colorModel{
	RGB:          {names: []string{"red", "green", "blue"}, extraAlpha: true},
	Lab:          {names: []string{"L", "a", "b"}, extraAlpha: true},
	CMYK:         {names: []string{"cyan", "magenta", "yellow", "black"}, extraAlpha: true},
	Grayscale:    {names: []string{"gray"}, extraAlpha: true},
	Multichannel: {numbered: true, prefix: "channel "},
	Duotone:      {numbered: true, prefix: "duotone "},
	Bitmap:       {names: []string{"bitmap"}},
	Indexed:      {names: []string{"index"}},
}

var reservedRoles = map[int16]ChannelRole{
	ChannelTransparency: {Kind: KindTransparency, Name: "transparency"},
	ChannelUserMask:     {Kind: KindUserMask, Name: "user mask"},
	ChannelRealUserMask: {Kind: KindRealUserMask, Name: "real user mask"},
}

// ResolveChannel maps a channel id to its role under mode.
func ResolveChannel(id int16, mode ColorMode) ChannelRole {
	if role, ok := reservedRoles[id]; ok {
		return role
	}
	m, ok := colorModels[mode]
	if !ok || id < 0 {
		return ChannelRole{Kind: KindUnknown, Name: fmt.Sprintf("unknown %d", id)}
	}
	switch {
	case m.numbered:
		return ChannelRole{Kind: KindColor, Name: fmt.Sprintf("%s%d", m.prefix, id)}
	case int(id) < len(m.names):
		return ChannelRole{Kind: KindColor, Name: m.names[id]}
	case m.extraAlpha:
		return ChannelRole{Kind: KindAlpha, Name: fmt.Sprintf("alpha %d", id)}
	default:
		return ChannelRole{Kind: KindUnknown, Name: fmt.Sprintf("unknown %d", id)}
	}
}
