package recorder

import (
	"bufio"
	"encoding/binary"
	"io"

	"calc/internal/errors"
)

var ErrChecksumMismatch = errors.New("journal: checksum mismatch")

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes journal records sequentially.
type Reader struct {
	r       *bufio.Reader
	opts    ReaderOptions
	header  []byte
	payload []byte
}

func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:      bufio.NewReader(r),
		opts:   opts,
		header: make([]byte, headerSize),
	}
}

// Next returns the next record. The payload is only valid until the next
// call to Next. A clean end of input is io.EOF; a record cut short is
// io.ErrUnexpectedEOF.
func (r *Reader) Next() (Header, []byte, error) {
	n, err := io.ReadFull(r.r, r.header)
	if err != nil {
		if err == io.EOF && n == 0 {
			return Header{}, nil, io.EOF
		}
		return Header{}, nil, err
	}

	h, size, err := decodeHeader(r.header)
	if err != nil {
		return Header{}, nil, err
	}
	if r.opts.MaxPayloadSize > 0 && size > uint32(r.opts.MaxPayloadSize) {
		return h, nil, errors.Wrapf(ErrPayloadTooLarge, "record %d is %d bytes", h.Seq, size)
	}

	if cap(r.payload) < int(size) {
		r.payload = make([]byte, size)
	}
	r.payload = r.payload[:size]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return h, nil, noEOF(err)
	}

	var sum [checksumSize]byte
	if _, err := io.ReadFull(r.r, sum[:]); err != nil {
		return h, nil, noEOF(err)
	}
	if !r.opts.DisableChecksum && binary.LittleEndian.Uint32(sum[:]) != checksum(r.header, r.payload) {
		return h, nil, errors.Wrapf(ErrChecksumMismatch, "record %d", h.Seq)
	}
	return h, r.payload, nil
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
