package psd

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func randomPlane(seed int64, n int) []byte {
	rng := rand.New(rand.NewSource(seed))
	p := make([]byte, n)
	for i := range p {
		// Mostly runs with some noise, so RLE sees both run kinds.
		if rng.Intn(4) == 0 {
			p[i] = byte(rng.Intn(256))
		} else if i > 0 {
			p[i] = p[i-1]
		}
	}
	return p
}

func TestChannelRoundTrip(t *testing.T) {
	schemes := []Compression{Raw, RLE, Zip, ZipPrediction}
	shapes := []PlaneShape{
		{Width: 4, Height: 4, Depth: 1},
		{Width: 7, Height: 3, Depth: 2},
		{Width: 5, Height: 6, Depth: 4},
		{Width: 300, Height: 2, Depth: 1},
		{Width: 9, Height: 5, Depth: 2, Large: true},
		{Width: 1, Height: 1, Depth: 4},
	}
	for _, c := range schemes {
		for i, shape := range shapes {
			samples := randomPlane(int64(i), shape.Len())
			enc, err := EncodeChannel(samples, c, shape)
			if err != nil {
				t.Fatalf("%s %+v: encode: %v", c, shape, err)
			}
			dec, consumed, err := decodeChannel(enc, c, shape)
			if err != nil {
				t.Fatalf("%s %+v: decode: %v", c, shape, err)
			}
			if !bytes.Equal(dec, samples) {
				t.Fatalf("%s %+v: samples differ after round trip", c, shape)
			}
			if consumed != len(enc) {
				t.Fatalf("%s %+v: consumed %d of %d bytes", c, shape, consumed, len(enc))
			}
		}
	}
}

func TestRawGrayscale4x4(t *testing.T) {
	shape := PlaneShape{Width: 4, Height: 4, Depth: 1}
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i * 3)
	}
	dec, err := DecodeChannel(data, Raw, shape)
	if err != nil {
		t.Fatalf("DecodeChannel returned error: %v", err)
	}
	if !bytes.Equal(dec, data) {
		t.Fatalf("got %v, want %v", dec, data)
	}
	enc, err := EncodeChannel(dec, Raw, shape)
	if err != nil {
		t.Fatalf("EncodeChannel returned error: %v", err)
	}
	if !bytes.Equal(enc, data) {
		t.Fatalf("re-encoded block differs: got %v, want %v", enc, data)
	}
}

func TestRLERepeatRun(t *testing.T) {
	tests := []struct {
		name  string
		shape PlaneShape
		data  []byte
	}{
		{"psd", PlaneShape{Width: 5, Height: 1, Depth: 1}, []byte{0x00, 0x02, 0xFC, 0x05}},
		{"psb", PlaneShape{Width: 5, Height: 1, Depth: 1, Large: true}, []byte{0x00, 0x00, 0x00, 0x02, 0xFC, 0x05}},
	}
	want := []byte{5, 5, 5, 5, 5}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := DecodeChannel(tt.data, RLE, tt.shape)
			if err != nil {
				t.Fatalf("DecodeChannel returned error: %v", err)
			}
			if !bytes.Equal(dec, want) {
				t.Fatalf("got %v, want %v", dec, want)
			}
			enc, err := EncodeChannel(want, RLE, tt.shape)
			if err != nil {
				t.Fatalf("EncodeChannel returned error: %v", err)
			}
			if !bytes.Equal(enc, tt.data) {
				t.Fatalf("encoded % x, want % x", enc, tt.data)
			}
		})
	}
}

func TestPackBits(t *testing.T) {
	tests := []struct {
		src  []byte
		want []byte
	}{
		{[]byte{1, 2, 3}, []byte{0x02, 1, 2, 3}},
		{[]byte{1, 2, 2, 3}, []byte{0x00, 1, 0xFF, 2, 0x00, 3}},
		{[]byte{9}, []byte{0x00, 9}},
		{bytes.Repeat([]byte{7}, 130), []byte{0x81, 7, 0xFF, 7}},
	}
	for _, tt := range tests {
		got := packBits(nil, tt.src)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("packBits(% x) = % x, want % x", tt.src, got, tt.want)
		}
		back := make([]byte, len(tt.src))
		if err := unpackBits(back, got); err != nil {
			t.Fatalf("unpackBits(% x): %v", got, err)
		}
		if !bytes.Equal(back, tt.src) {
			t.Errorf("unpackBits(% x) = % x, want % x", got, back, tt.src)
		}
	}
}

func TestUnpackBitsNoOp(t *testing.T) {
	dst := make([]byte, 2)
	if err := unpackBits(dst, []byte{0x80, 0x01, 4, 5}); err != nil {
		t.Fatalf("unpackBits returned error: %v", err)
	}
	if !bytes.Equal(dst, []byte{4, 5}) {
		t.Fatalf("got %v, want [4 5]", dst)
	}
}

func TestPredictLayouts(t *testing.T) {
	t.Run("16-bit", func(t *testing.T) {
		p := []byte{0x00, 0x01, 0x00, 0x03, 0x01, 0x00}
		predict(p, PlaneShape{Width: 3, Height: 1, Depth: 2})
		want := []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0xFD}
		if !bytes.Equal(p, want) {
			t.Fatalf("got % x, want % x", p, want)
		}
	})
	t.Run("32-bit", func(t *testing.T) {
		p := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
		predict(p, PlaneShape{Width: 2, Height: 1, Depth: 4})
		want := []byte{0x01, 0x04, 0xFD, 0x04, 0xFD, 0x04, 0xFD, 0x04}
		if !bytes.Equal(p, want) {
			t.Fatalf("got % x, want % x", p, want)
		}
		unpredict(p, PlaneShape{Width: 2, Height: 1, Depth: 4})
		if !bytes.Equal(p, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
			t.Fatalf("unpredict got % x", p)
		}
	})
}

func TestDecodeChannelErrors(t *testing.T) {
	shape := PlaneShape{Width: 8, Height: 8, Depth: 1}
	zipped, err := EncodeChannel(randomPlane(1, shape.Len()), Zip, shape)
	if err != nil {
		t.Fatalf("EncodeChannel returned error: %v", err)
	}
	tests := []struct {
		name  string
		data  []byte
		c     Compression
		shape PlaneShape
		want  error
	}{
		{"raw short", make([]byte, 63), Raw, shape, ErrTruncatedChannel},
		{"rle counts short", []byte{0x00}, RLE, shape, ErrTruncatedChannel},
		{"rle count past end", []byte{0x00, 0x09, 0xFC}, RLE, PlaneShape{Width: 5, Height: 1, Depth: 1}, ErrTruncatedChannel},
		{"rle run overflows row", []byte{0x00, 0x02, 0xFE, 0x07}, RLE, PlaneShape{Width: 2, Height: 1, Depth: 1}, ErrCorruptChannel},
		{"zip cut short", zipped[:len(zipped)/2], Zip, shape, ErrTruncatedChannel},
		{"zip garbage", []byte{0x12, 0x34, 0x56, 0x78}, Zip, shape, ErrCorruptChannel},
		{"unknown scheme", make([]byte, 64), Compression(4), shape, ErrUnsupportedCompression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeChannel(tt.data, tt.c, tt.shape)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeChannelResidual(t *testing.T) {
	shape := PlaneShape{Width: 2, Height: 2, Depth: 1}
	_, consumed, err := decodeChannel([]byte{1, 2, 3, 4, 0xAA, 0xBB}, Raw, shape)
	if err != nil {
		t.Fatalf("decodeChannel returned error: %v", err)
	}
	if consumed != 4 {
		t.Fatalf("consumed %d, want 4", consumed)
	}
}

func TestEmptyPlane(t *testing.T) {
	for _, c := range []Compression{Raw, RLE, Zip, ZipPrediction} {
		shape := PlaneShape{Width: 0, Height: 3, Depth: 1}
		enc, err := EncodeChannel(nil, c, shape)
		if err != nil || len(enc) != 0 {
			t.Fatalf("%s: EncodeChannel = %v, %v; want empty", c, enc, err)
		}
		dec, err := DecodeChannel(nil, c, shape)
		if err != nil || len(dec) != 0 {
			t.Fatalf("%s: DecodeChannel = %v, %v; want empty", c, dec, err)
		}
	}
}

func TestEncodeChannelShapeMismatch(t *testing.T) {
	if _, err := EncodeChannel(make([]byte, 15), Raw, PlaneShape{Width: 4, Height: 4, Depth: 1}); err == nil {
		t.Fatal("expected error for short sample buffer")
	}
	if _, err := EncodeChannel(make([]byte, 16), Compression(9), PlaneShape{Width: 4, Height: 4, Depth: 1}); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("got %v, want ErrUnsupportedCompression", err)
	}
}

func TestParseCompression(t *testing.T) {
	tests := map[string]Compression{"raw": Raw, "RLE": RLE, " zip ": Zip, "Zip-Prediction": ZipPrediction}
	for name, want := range tests {
		got, err := ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseCompression("lzw"); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("got %v, want ErrUnsupportedCompression", err)
	}
}

func FuzzDecodeChannel(f *testing.F) {
	f.Add([]byte{0x00, 0x02, 0xFC, 0x05}, uint16(RLE), uint8(5), uint8(1), uint8(0))
	f.Add(make([]byte, 16), uint16(Raw), uint8(4), uint8(4), uint8(0))
	f.Add(deflate([]byte{1, 2, 3, 4}), uint16(Zip), uint8(2), uint8(1), uint8(1))
	f.Fuzz(func(t *testing.T, data []byte, c uint16, w, h, depthSel uint8) {
		shape := PlaneShape{Width: int(w), Height: int(h), Depth: []int{1, 2, 4}[depthSel%3], Large: depthSel&0x80 != 0}
		out, err := DecodeChannel(data, Compression(c), shape)
		if err == nil && len(out) != shape.Len() {
			t.Fatalf("decoded %d bytes for a %d-byte plane", len(out), shape.Len())
		}
	})
}
