package psd

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"
)

const (
	signature8BIM = "8BIM"
	signature8B64 = "8B64"

	keyUnicodeName    = "luni"
	keySectionDivider = "lsct"
	keyNestedSection  = "lsdk"
	keyEffects        = "lfx2"
	keyEffectsFX      = "lfxs"

	// blockHeaderSize is the smallest possible block header: signature,
	// key and a 4-byte length.
	blockHeaderSize = 12
)

// wideKeys carry an 8-byte length in PSB documents.
var wideKeys = map[string]bool{
	"LMsk": true, "Lr16": true, "Lr32": true, "Layr": true,
	"Mt16": true, "Mt32": true, "Mtrn": true, "Alph": true,
	"FMsk": true, "lnk2": true, "FEid": true, "FXid": true,
	"PxSD": true,
}

// InfoBlock is one tagged additional info block. Data excludes the pad
// byte that follows an odd-sized payload.
type InfoBlock struct {
	Signature string
	Key       string
	Data      []byte
}

// InfoBlocks is an ordered table of info blocks. Blocks the codec does not
// interpret are kept opaque so a read-then-write round trip is lossless.
type InfoBlocks struct {
	blocks []InfoBlock
}

// NewInfoBlocks returns an empty table.
func NewInfoBlocks() *InfoBlocks {
	return &InfoBlocks{}
}

// Len returns the number of blocks.
func (t *InfoBlocks) Len() int {
	if t == nil {
		return 0
	}
	return len(t.blocks)
}

// Blocks returns the blocks in table order.
func (t *InfoBlocks) Blocks() []InfoBlock {
	if t == nil {
		return nil
	}
	return t.blocks
}

// Keys returns the block keys in table order.
func (t *InfoBlocks) Keys() []string {
	keys := make([]string, 0, t.Len())
	for _, b := range t.Blocks() {
		keys = append(keys, b.Key)
	}
	return keys
}

// Get returns the first block with the given key.
func (t *InfoBlocks) Get(key string) (InfoBlock, bool) {
	for _, b := range t.Blocks() {
		if b.Key == key {
			return b, true
		}
	}
	return InfoBlock{}, false
}

// Set replaces the first block with the key in place, or appends one.
func (t *InfoBlocks) Set(key string, data []byte) {
	for i := range t.blocks {
		if t.blocks[i].Key == key {
			t.blocks[i].Data = data
			return
		}
	}
	t.blocks = append(t.blocks, InfoBlock{Signature: signature8BIM, Key: key, Data: data})
}

// Delete removes every block with the key.
func (t *InfoBlocks) Delete(key string) {
	kept := t.blocks[:0]
	for _, b := range t.blocks {
		if b.Key != key {
			kept = append(kept, b)
		}
	}
	t.blocks = kept
}

// Clone returns a deep copy of the table.
func (t *InfoBlocks) Clone() *InfoBlocks {
	c := &InfoBlocks{blocks: make([]InfoBlock, t.Len())}
	for i, b := range t.Blocks() {
		b.Data = append([]byte(nil), b.Data...)
		c.blocks[i] = b
	}
	return c
}

func (b InfoBlock) wide(hdr Header) bool {
	return hdr.Large() && wideKeys[b.Key]
}

// ReadInfoBlocks reads blocks until exactly total bytes are consumed.
func ReadInfoBlocks(r io.Reader, total uint64, hdr Header) (*InfoBlocks, error) {
	t, consumed, err := readInfoBlocks(r, total, hdr)
	if err != nil {
		return nil, err
	}
	if consumed != total {
		return nil, fmt.Errorf("%w: %d trailing bytes cannot hold a block", ErrInfoBlockLength, total-consumed)
	}
	return t, nil
}

// readInfoBlocks reads blocks while at least a block header fits into
// limit and reports the bytes consumed. Whatever is left is the caller's
// to judge.
func readInfoBlocks(r io.Reader, limit uint64, hdr Header) (*InfoBlocks, uint64, error) {
	t := NewInfoBlocks()
	var consumed uint64
	for limit-consumed >= blockHeaderSize {
		var head struct {
			Signature [4]byte
			Key       [4]byte
		}
		if err := binary.Read(r, binary.BigEndian, &head); err != nil {
			return nil, consumed, fmt.Errorf("read info block %d header: %w", len(t.blocks), err)
		}
		b := InfoBlock{Signature: string(head.Signature[:]), Key: string(head.Key[:])}
		if b.Signature != signature8BIM && b.Signature != signature8B64 {
			return nil, consumed, fmt.Errorf("%w: info block signature %q", ErrBadSignature, b.Signature)
		}
		headerSize := uint64(blockHeaderSize)
		if b.wide(hdr) {
			headerSize += 4
			if limit-consumed < headerSize {
				return nil, consumed, fmt.Errorf("%w: block %q header crosses table end", ErrInfoBlockLength, b.Key)
			}
		}
		length, err := readLength(r, b.wide(hdr))
		if err != nil {
			return nil, consumed, fmt.Errorf("read length of info block %q: %w", b.Key, err)
		}
		padded := length + length&1
		if padded < length || padded > limit-consumed-headerSize {
			return nil, consumed, fmt.Errorf("%w: block %q declares %d bytes, %d left in table",
				ErrInfoBlockLength, b.Key, length, limit-consumed-headerSize)
		}
		if b.Data, err = readBytes(r, length); err != nil {
			return nil, consumed, fmt.Errorf("read info block %q: %w", b.Key, err)
		}
		if length&1 != 0 {
			if _, err := readBytes(r, 1); err != nil {
				return nil, consumed, fmt.Errorf("read info block %q padding: %w", b.Key, err)
			}
		}
		consumed += headerSize + padded
		Logger().Debug("info block", "key", b.Key, "signature", b.Signature, "length", length)
		t.blocks = append(t.blocks, b)
	}
	return t, consumed, nil
}

// Encode writes every block in table order.
func (t *InfoBlocks) Encode(w io.Writer, hdr Header) error {
	for _, b := range t.Blocks() {
		if len(b.Signature) != 4 || len(b.Key) != 4 {
			return fmt.Errorf("%w: info block %q/%q is not a 4-byte tag", ErrBadSignature, b.Signature, b.Key)
		}
		if _, err := io.WriteString(w, b.Signature+b.Key); err != nil {
			return fmt.Errorf("write info block %q: %w", b.Key, err)
		}
		width := 4
		if b.wide(hdr) {
			width = 8
		}
		if err := writeLength(w, width, uint64(len(b.Data))); err != nil {
			return fmt.Errorf("write info block %q length: %w", b.Key, err)
		}
		if _, err := w.Write(b.Data); err != nil {
			return fmt.Errorf("write info block %q: %w", b.Key, err)
		}
		if len(b.Data)&1 != 0 {
			if _, err := w.Write([]byte{0}); err != nil {
				return fmt.Errorf("write info block %q padding: %w", b.Key, err)
			}
		}
	}
	return nil
}

// UnicodeName returns the name stored in the luni block.
func (t *InfoBlocks) UnicodeName() (string, bool) {
	b, ok := t.Get(keyUnicodeName)
	if !ok || len(b.Data) < 4 {
		return "", false
	}
	count := uint64(binary.BigEndian.Uint32(b.Data))
	if count*2 > uint64(len(b.Data)-4) {
		return "", false
	}
	units := make([]uint16, count)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b.Data[4+2*i:])
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units)), true
}

// SetUnicodeName stores name in the luni block. The unit count includes a
// terminating NUL, which is written too.
func (t *InfoBlocks) SetUnicodeName(name string) {
	units := append(utf16.Encode([]rune(name)), 0)
	data := make([]byte, 4+2*len(units))
	binary.BigEndian.PutUint32(data, uint32(len(units)))
	for i, u := range units {
		binary.BigEndian.PutUint16(data[4+2*i:], u)
	}
	t.Set(keyUnicodeName, data)
}

// SectionType is the kind of a section divider.
type SectionType uint32

const (
	SectionOther           SectionType = 0
	SectionOpenFolder      SectionType = 1
	SectionClosedFolder    SectionType = 2
	SectionBoundingDivider SectionType = 3
)

var sectionNames = [...]string{"other", "open folder", "closed folder", "bounding divider"}

func (s SectionType) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return fmt.Sprintf("SectionType(%d)", uint32(s))
}

// SectionDivider is the payload of an lsct (or nested lsdk) block.
type SectionDivider struct {
	Type SectionType

	// BlendKey overrides the layer blend key for the group; "pass" marks a
	// pass-through group. Empty when the block is 4 bytes long.
	BlendKey string

	// SubType is 0 for a normal and 1 for a scene group. Only present in
	// the 16-byte form.
	SubType    uint32
	HasSubType bool
}

// PassThrough reports whether the group composites in pass-through mode.
func (d SectionDivider) PassThrough() bool {
	return d.BlendKey == "pass"
}

// SectionDivider returns the lsct block, falling back to lsdk.
func (t *InfoBlocks) SectionDivider() (SectionDivider, bool) {
	b, ok := t.Get(keySectionDivider)
	if !ok {
		if b, ok = t.Get(keyNestedSection); !ok {
			return SectionDivider{}, false
		}
	}
	if len(b.Data) < 4 {
		return SectionDivider{}, false
	}
	d := SectionDivider{Type: SectionType(binary.BigEndian.Uint32(b.Data))}
	if len(b.Data) >= 12 && string(b.Data[4:8]) == signature8BIM {
		d.BlendKey = string(b.Data[8:12])
	}
	if len(b.Data) >= 16 {
		d.SubType = binary.BigEndian.Uint32(b.Data[12:])
		d.HasSubType = true
	}
	return d, true
}

// SetSectionDivider stores d in the lsct block using the shortest form
// that holds its fields.
func (t *InfoBlocks) SetSectionDivider(d SectionDivider) {
	size := 4
	if d.BlendKey != "" || d.HasSubType {
		size = 12
	}
	if d.HasSubType {
		size = 16
	}
	data := make([]byte, size)
	binary.BigEndian.PutUint32(data, uint32(d.Type))
	if size >= 12 {
		key := d.BlendKey
		if key == "" {
			key = "norm"
		}
		copy(data[4:], signature8BIM)
		copy(data[8:12], key)
	}
	if size == 16 {
		binary.BigEndian.PutUint32(data[12:], d.SubType)
	}
	t.Set(keySectionDivider, data)
}

// Effects is a serialized layer-effects descriptor. The descriptor body is
// consumed by the layer styles renderer and stays opaque here.
type Effects struct {
	Key               string // lfx2 or lfxs
	ObjectVersion     uint32
	DescriptorVersion uint32
	Descriptor        []byte
}

const (
	effectsObjectVersion     = 0
	effectsDescriptorVersion = 16
)

// Effects returns the lfx2 block, falling back to lfxs.
func (t *InfoBlocks) Effects() (Effects, bool) {
	b, ok := t.Get(keyEffects)
	if !ok {
		if b, ok = t.Get(keyEffectsFX); !ok {
			return Effects{}, false
		}
	}
	if len(b.Data) < 8 {
		return Effects{}, false
	}
	return Effects{
		Key:               b.Key,
		ObjectVersion:     binary.BigEndian.Uint32(b.Data),
		DescriptorVersion: binary.BigEndian.Uint32(b.Data[4:]),
		Descriptor:        b.Data[8:],
	}, true
}

// SetEffects stores e under its key, lfx2 when none is given. Zero
// versions are replaced by the current ones.
func (t *InfoBlocks) SetEffects(e Effects) {
	key := e.Key
	if key == "" {
		key = keyEffects
	}
	if e.DescriptorVersion == 0 {
		e.ObjectVersion = effectsObjectVersion
		e.DescriptorVersion = effectsDescriptorVersion
	}
	data := make([]byte, 8+len(e.Descriptor))
	binary.BigEndian.PutUint32(data, e.ObjectVersion)
	binary.BigEndian.PutUint32(data[4:], e.DescriptorVersion)
	copy(data[8:], e.Descriptor)
	t.Set(key, data)
}
