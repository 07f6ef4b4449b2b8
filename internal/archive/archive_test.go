package archive

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func testEntries() []Entry {
	return []Entry{
		{Layer: 0, Channel: -1, Width: 3, Height: 2, Depth: 1, Data: []byte{1, 2, 3, 4, 5, 6}},
		{Layer: 0, Channel: 0, Width: 2, Height: 2, Depth: 2, Data: bytes.Repeat([]byte{0xAB}, 8)},
		{Layer: 1, Channel: -2, Width: 0, Height: 0, Depth: 1, Data: nil},
		{Layer: 2, Channel: 3, Width: 64, Height: 64, Depth: 4, Data: bytes.Repeat([]byte{1, 2, 3, 4}, 64*64)},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, opts := range []Options{{}, {Codec: "lz4", Level: 9}, {Codec: "zstd"}, {Codec: "ZSTD", Level: 19}} {
		var buf bytes.Buffer
		stats, err := Write(&buf, testEntries(), opts)
		if err != nil {
			t.Fatalf("%+v: Write returned error: %v", opts, err)
		}
		if stats.Entries != 4 || stats.OriginalSize != 6+8+64*64*4 || stats.CompressedSize != int64(buf.Len()) {
			t.Fatalf("%+v: stats = %+v", opts, stats)
		}
		if !strings.HasPrefix(buf.String(), Magic+"\n") {
			t.Fatalf("%+v: archive does not start with the magic line", opts)
		}

		got, codec, err := Read(&buf)
		if err != nil {
			t.Fatalf("%+v: Read returned error: %v", opts, err)
		}
		if codec != stats.Codec {
			t.Fatalf("codec %q, want %q", codec, stats.Codec)
		}
		want := testEntries()
		if len(got) != len(want) {
			t.Fatalf("%+v: read %d entries, want %d", opts, len(got), len(want))
		}
		for i := range want {
			g, w := got[i], want[i]
			if g.Layer != w.Layer || g.Channel != w.Channel || g.Width != w.Width || g.Height != w.Height ||
				g.Depth != w.Depth || !bytes.Equal(g.Data, w.Data) {
				t.Fatalf("%+v: entry %d = %+v", opts, i, g)
			}
		}
	}
}

func TestWriteRejectsBadInput(t *testing.T) {
	if _, err := Write(&bytes.Buffer{}, nil, Options{Codec: "brotli"}); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("got %v, want ErrUnknownCodec", err)
	}
	if _, err := Write(&bytes.Buffer{}, nil, Options{Codec: "lz4", Level: 10}); err == nil {
		t.Fatal("expected error for lz4 level 10")
	}
	bad := []Entry{{Width: 2, Height: 2, Depth: 1, Data: []byte{1}}}
	if _, err := Write(&bytes.Buffer{}, bad, Options{}); !errors.Is(err, ErrBadRecord) {
		t.Fatalf("got %v, want ErrBadRecord", err)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, _, err := Read(strings.NewReader("GIF89a\n")); !errors.Is(err, ErrBadArchive) {
		t.Fatalf("got %v, want ErrBadArchive", err)
	}
	if _, _, err := Read(strings.NewReader(Magic + "\nsnappy\n")); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("got %v, want ErrUnknownCodec", err)
	}

	var buf bytes.Buffer
	if _, err := Write(&buf, testEntries(), Options{Codec: CodecZstd}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, _, err := Read(bytes.NewReader(buf.Bytes()[:buf.Len()/2])); err == nil {
		t.Fatal("expected error for a truncated archive")
	}
}

func TestParseHeader(t *testing.T) {
	e, n, err := parseHeader("LAYER:4:-3:5x6:2:60")
	if err != nil {
		t.Fatalf("parseHeader returned error: %v", err)
	}
	if e.Layer != 4 || e.Channel != -3 || e.Width != 5 || e.Height != 6 || e.Depth != 2 || n != 60 {
		t.Fatalf("got %+v, %d", e, n)
	}
	for _, line := range []string{
		"FILE:a.psd:10",
		"LAYER:1:0:5:1:5",
		"LAYER:1:0:5x1:1:6",
		"LAYER:-1:0:1x1:1:1",
		"LAYER:1:40000:1x1:1:1",
	} {
		if _, _, err := parseHeader(line); !errors.Is(err, ErrBadRecord) {
			t.Errorf("parseHeader(%q) = %v, want ErrBadRecord", line, err)
		}
	}
}

func TestDeltaApply(t *testing.T) {
	if _, err := exec.LookPath("bzip2"); err != nil {
		t.Skip("bzip2 not installed")
	}
	base := bytes.Repeat([]byte("8BPS layer data "), 512)
	target := append([]byte(nil), base...)
	copy(target[1000:], "changed pixels")
	target = append(target, "appended"...)

	var patch bytes.Buffer
	if err := Delta(bytes.NewReader(base), bytes.NewReader(target), &patch); err != nil {
		t.Fatalf("Delta returned error: %v", err)
	}
	var out bytes.Buffer
	if err := Apply(bytes.NewReader(base), &out, &patch); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !bytes.Equal(out.Bytes(), target) {
		t.Fatal("patched output differs from target")
	}
}

func TestApplyRejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	if err := Apply(strings.NewReader("base"), &out, strings.NewReader("not a patch")); err == nil {
		t.Fatal("expected error for an invalid patch")
	}
}
