package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
	"io"
	"net"
	"time"
)

// errPeerClosed is returned by readCommand if the peer sent a header with a negative peer id
var errPeerClosed = errors.New("peer sent close signal")

// writeCommand writes a command to the connection with the format:
// - 16 bytes: header (see serializer.PutHeader)
// - N bytes: payload
//
// Header and payload are handed to the kernel in a single call.
func writeCommand(conn net.Conn, cmd common.Command, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %v", err)
		}
	}

	header := make([]byte, common.HeaderSize)
	cmd.Header.PayloadSize = uint32(len(cmd.Payload))
	serializer.PutHeader(header, cmd.Header)

	b := net.Buffers{header}
	if len(cmd.Payload) > 0 {
		b = append(b, cmd.Payload)
	}
	_, err := b.WriteTo(conn)
	return err
}

// readCommand reads one command from the connection. headerBuf must hold at
// least common.HeaderSize bytes and is reused between calls; the payload is
// always freshly allocated because it is handed on to the application.
func readCommand(conn net.Conn, headerBuf []byte, maxPayload uint32) (common.Command, error) {
	if _, err := io.ReadFull(conn, headerBuf[:common.HeaderSize]); err != nil {
		return common.Command{}, err
	}

	header, err := serializer.DecodeHeader(headerBuf[:common.HeaderSize])
	if err != nil {
		return common.Command{}, err
	}

	if header.PeerID < 0 {
		return common.Command{}, errPeerClosed
	}

	if maxPayload > 0 && header.PayloadSize > maxPayload {
		return common.Command{}, fmt.Errorf("%w: %d bytes announced, limit is %d",
			serializer.ErrPayloadTooLarge, header.PayloadSize, maxPayload)
	}

	// no payload, return the header only
	if header.PayloadSize == 0 {
		return common.Command{Header: header}, nil
	}

	payload := make([]byte, header.PayloadSize)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return common.Command{}, err
	}

	return common.Command{Header: header, Payload: payload}, nil
}
