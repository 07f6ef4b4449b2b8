package psd

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Declared lengths of the mask sub-record.
const (
	maskAbsent   = 0
	maskBasic    = 20
	maskExtended = 36
)

const (
	maskFlagRelative = 1 << 0
	maskFlagDisabled = 1 << 1
	maskFlagInvert   = 1 << 2
)

// LayerMask describes the user or vector mask of a layer.
type LayerMask struct {
	Bounds          Rect
	DefaultColor    uint8
	RelativeToLayer bool
	Disabled        bool
	Invert          bool

	// Extended is set when the record was read in its 36-byte form. It is
	// informational only: masks are always written in the 20-byte form.
	Extended bool
}

// maskGroup is one flags/default/bounds group as stored on disk.
type maskGroup struct {
	Bounds       Rect
	DefaultColor uint8
	Flags        uint8
}

// realMaskGroup is the trailing group of the 36-byte form. Its fields come
// in a different order.
type realMaskGroup struct {
	Flags        uint8
	DefaultColor uint8
	Bounds       Rect
}

// readLayerMask reads the mask sub-record. A zero length yields nil.
func readLayerMask(r io.Reader) (*LayerMask, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("read mask record length: %w", err)
	}
	switch length {
	case maskAbsent:
		return nil, nil
	case maskBasic, maskExtended:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMaskLength, length)
	}

	var basic maskGroup
	if err := binary.Read(r, binary.BigEndian, &basic); err != nil {
		return nil, fmt.Errorf("read mask record: %w", err)
	}
	m := &LayerMask{Bounds: basic.Bounds, DefaultColor: basic.DefaultColor}
	flags := basic.Flags

	if length == maskBasic {
		var padding uint16
		if err := binary.Read(r, binary.BigEndian, &padding); err != nil {
			return nil, fmt.Errorf("read mask record padding: %w", err)
		}
	} else {
		var second realMaskGroup
		if err := binary.Read(r, binary.BigEndian, &second); err != nil {
			return nil, fmt.Errorf("read real mask record: %w", err)
		}
		// The leading group then describes the vector mask. It is dropped:
		// the real group wins, and every mask channel is laid out on its bounds.
		flags = second.Flags
		m.DefaultColor = second.DefaultColor
		m.Bounds = second.Bounds
		m.Extended = true
	}

	m.RelativeToLayer = flags&maskFlagRelative != 0
	m.Disabled = flags&maskFlagDisabled != 0
	m.Invert = flags&maskFlagInvert != 0
	return m, nil
}

// writeLayerMask writes m in the 20-byte form, or a zero length for nil.
func writeLayerMask(w io.Writer, m *LayerMask) error {
	if m == nil {
		return binary.Write(w, binary.BigEndian, uint32(maskAbsent))
	}
	var flags uint8
	if m.RelativeToLayer {
		flags |= maskFlagRelative
	}
	if m.Disabled {
		flags |= maskFlagDisabled
	}
	if m.Invert {
		flags |= maskFlagInvert
	}
	record := struct {
		Length  uint32
		Group   maskGroup
		Padding uint16
	}{
		Length: maskBasic,
		Group:  maskGroup{Bounds: m.Bounds, DefaultColor: m.DefaultColor, Flags: flags},
	}
	return binary.Write(w, binary.BigEndian, &record)
}

// DefaultSample returns the mask default color as one big-endian sample of
// the given width. The stored value is a single byte whatever the depth.
func (m *LayerMask) DefaultSample(depth int) []byte {
	switch depth {
	case 2:
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(m.DefaultColor)*257)
		return out
	case 4:
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, math.Float32bits(float32(m.DefaultColor)/255))
		return out
	default:
		return []byte{m.DefaultColor}
	}
}
