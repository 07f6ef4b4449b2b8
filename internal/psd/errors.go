package psd

import "errors"

// Structural errors. Every one of them aborts decoding of the current layer;
// callers match them with errors.Is.
var (
	// ErrMalformedLayer reports an out of range channel count, inverted
	// bounds or a non-zero filler byte in a layer record.
	ErrMalformedLayer = errors.New("psd: malformed layer record")

	// ErrUnknownMaskLength reports a mask sub-record whose declared length
	// is not 0, 20 or 36.
	ErrUnknownMaskLength = errors.New("psd: unknown layer mask record length")

	// ErrExtraDataLength reports an extra data block whose declared length
	// differs from the bytes consumed by its nested fields.
	ErrExtraDataLength = errors.New("psd: extra data length mismatch")

	// ErrInfoBlockLength reports an additional info block that runs past
	// the end of its table.
	ErrInfoBlockLength = errors.New("psd: additional info block length mismatch")

	// ErrTruncatedChannel reports channel data that ends before the plane
	// is complete.
	ErrTruncatedChannel = errors.New("psd: truncated channel data")

	// ErrCorruptChannel reports channel data that cannot be decoded, such
	// as a run crossing a scanline or a damaged zlib stream.
	ErrCorruptChannel = errors.New("psd: corrupt channel data")

	// ErrUnsupportedCompression reports a compression selector outside
	// Raw, RLE, Zip and ZipPrediction.
	ErrUnsupportedCompression = errors.New("psd: unsupported compression scheme")

	// ErrBadSignature reports an unexpected 4-byte signature.
	ErrBadSignature = errors.New("psd: bad signature")

	// ErrBadHeader reports a document header that cannot be used.
	ErrBadHeader = errors.New("psd: bad file header")
)
