package psd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func maskBytes(length uint32, groups ...[]byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, length)
	for _, g := range groups {
		buf.Write(g)
	}
	return buf.Bytes()
}

func rectBytes(top, left, bottom, right int32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, Rect{top, left, bottom, right})
	return buf.Bytes()
}

func TestReadLayerMaskRelative(t *testing.T) {
	group := append(rectBytes(1, 2, 11, 12), 255, 0x01)
	data := maskBytes(20, group, []byte{0, 0})
	m, err := readLayerMask(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("readLayerMask returned error: %v", err)
	}
	if !m.RelativeToLayer || m.Disabled || m.Invert {
		t.Fatalf("flags = relative %v disabled %v invert %v, want true false false", m.RelativeToLayer, m.Disabled, m.Invert)
	}
	if m.Bounds != (Rect{1, 2, 11, 12}) || m.DefaultColor != 255 {
		t.Fatalf("got bounds %v default %d", m.Bounds, m.DefaultColor)
	}
}

func TestReadLayerMaskExtended(t *testing.T) {
	basic := append(rectBytes(0, 0, 4, 4), 0, 0x01)
	second := append([]byte{0x06, 128}, rectBytes(10, 20, 30, 40)...)
	r := bytes.NewReader(maskBytes(36, basic, second))
	m, err := readLayerMask(r)
	if err != nil {
		t.Fatalf("readLayerMask returned error: %v", err)
	}
	if !m.Extended || m.RelativeToLayer || !m.Disabled || !m.Invert {
		t.Fatalf("got %+v, want the second group's flags", m)
	}
	if m.Bounds != (Rect{10, 20, 30, 40}) || m.DefaultColor != 128 {
		t.Fatalf("got bounds %v default %d, want the second group's", m.Bounds, m.DefaultColor)
	}
	if r.Len() != 0 {
		t.Fatalf("%d bytes left unread", r.Len())
	}
}

func TestReadLayerMaskLengths(t *testing.T) {
	padding := make([]byte, 40)
	tests := []struct {
		length uint32
		want   error
	}{
		{0, nil},
		{20, nil},
		{36, nil},
		{21, ErrUnknownMaskLength},
		{5, ErrUnknownMaskLength},
	}
	for _, tt := range tests {
		_, err := readLayerMask(bytes.NewReader(maskBytes(tt.length, padding)))
		if !errors.Is(err, tt.want) {
			t.Errorf("length %d: got %v, want %v", tt.length, err, tt.want)
		}
	}
}

func TestWriteLayerMask(t *testing.T) {
	var buf bytes.Buffer
	if err := writeLayerMask(&buf, nil); err != nil {
		t.Fatalf("writeLayerMask(nil) returned error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0, 0, 0, 0}) {
		t.Fatalf("nil mask wrote % x", buf.Bytes())
	}

	in := &LayerMask{Bounds: Rect{1, 2, 3, 4}, DefaultColor: 7, Invert: true, Extended: true}
	buf.Reset()
	if err := writeLayerMask(&buf, in); err != nil {
		t.Fatalf("writeLayerMask returned error: %v", err)
	}
	if buf.Len() != 4+maskBasic {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), 4+maskBasic)
	}
	out, err := readLayerMask(&buf)
	if err != nil {
		t.Fatalf("readLayerMask returned error: %v", err)
	}
	in.Extended = false
	if *out != *in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestMaskDefaultSample(t *testing.T) {
	m := &LayerMask{DefaultColor: 255}
	if got := m.DefaultSample(1); !bytes.Equal(got, []byte{255}) {
		t.Fatalf("8-bit: got % x", got)
	}
	if got := m.DefaultSample(2); !bytes.Equal(got, []byte{0xFF, 0xFF}) {
		t.Fatalf("16-bit: got % x", got)
	}
	got := m.DefaultSample(4)
	if f := math.Float32frombits(binary.BigEndian.Uint32(got)); f != 1 {
		t.Fatalf("32-bit: got %v, want 1", f)
	}
}
