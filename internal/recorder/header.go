package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"calc/internal/errors"
	"calc/internal/host"
)

const (
	headerVersion uint16 = 1
	headerSize           = 48
	checksumSize         = 4
)

var (
	headerMagic = [4]byte{'C', 'J', 'R', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic       = errors.New("journal: invalid magic")
	ErrUnsupportedVersion = errors.New("journal: unsupported header version")
	ErrInvalidHeaderSize  = errors.New("journal: invalid header size")
	ErrUnknownKind        = errors.New("journal: unknown record kind")
)

// Kind request, response
type Kind uint8

const (
	_kind_beg Kind = iota
	KindRequest
	KindResponse
	_kind_end
)

func (k Kind) IsAvailable() bool {
	return k > _kind_beg && k < _kind_end
}

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Header frames one journal record. Seq grows by one per record; a request
// and its response share TraceID.
type Header struct {
	Kind    Kind
	Entry   host.Entry
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// layout, little endian:
//
//	0  magic      4
//	4  version    2
//	6  size       2
//	8  kind       1
//	9  entry      1
//	10 reserved   2
//	12 payload    4
//	16 seq        8
//	24 ts event   8
//	32 ts recv    8
//	40 trace id   8
func encodeHeader(dst []byte, h Header, payloadLen int) {
	_ = dst[headerSize-1]
	copy(dst[0:4], headerMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], headerVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(headerSize))
	dst[8] = byte(h.Kind)
	dst[9] = byte(h.Entry)
	binary.LittleEndian.PutUint16(dst[10:12], 0)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[16:24], h.Seq)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(h.TsEvent))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(h.TsRecv))
	binary.LittleEndian.PutUint64(dst[40:48], h.TraceID)
}

func decodeHeader(src []byte) (Header, uint32, error) {
	if len(src) < headerSize {
		return Header{}, 0, ErrInvalidHeaderSize
	}
	if !bytes.Equal(src[0:4], headerMagic[:]) {
		return Header{}, 0, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(src[4:6]); v != headerVersion {
		return Header{}, 0, errors.Wrapf(ErrUnsupportedVersion, "version %d", v)
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != headerSize {
		return Header{}, 0, ErrInvalidHeaderSize
	}
	h := Header{
		Kind:    Kind(src[8]),
		Entry:   host.Entry(src[9]),
		Seq:     binary.LittleEndian.Uint64(src[16:24]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[24:32])),
		TsRecv:  int64(binary.LittleEndian.Uint64(src[32:40])),
		TraceID: binary.LittleEndian.Uint64(src[40:48]),
	}
	if !h.Kind.IsAvailable() {
		return Header{}, 0, errors.Wrapf(ErrUnknownKind, "kind %d", src[8])
	}
	return h, binary.LittleEndian.Uint32(src[12:16]), nil
}

func checksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}
