package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
)

// PutHeader writes h into the first common.HeaderSize bytes of buf.
// Field order: type, peerId, commandId, payloadSize (all big-endian).
func PutHeader(buf []byte, h common.Header) {
	_ = buf[common.HeaderSize-1] // bounds check hint
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.PeerID))
	binary.BigEndian.PutUint32(buf[8:12], h.CommandID)
	binary.BigEndian.PutUint32(buf[12:16], h.PayloadSize)
}

// EncodeHeader returns the wire representation of h
func EncodeHeader(h common.Header) []byte {
	buf := make([]byte, common.HeaderSize)
	PutHeader(buf, h)
	return buf
}

// DecodeHeader parses a header from exactly common.HeaderSize bytes.
// The command type is not validated, unknown types are passed on to the caller.
func DecodeHeader(b []byte) (common.Header, error) {
	if len(b) != common.HeaderSize {
		return common.Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrMalformedPayload, common.HeaderSize, len(b))
	}
	return common.Header{
		Type:        common.CommandType(binary.BigEndian.Uint32(b[0:4])),
		PeerID:      int32(binary.BigEndian.Uint32(b[4:8])),
		CommandID:   binary.BigEndian.Uint32(b[8:12]),
		PayloadSize: binary.BigEndian.Uint32(b[12:16]),
	}, nil
}
