package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// The handshake is exchanged before any compression is negotiated, so it is written and read directly on the
// connection, byte-for-byte, without any buffering that could swallow the first frame that follows it.

// WriteHello sends the worker's half of the handshake.
func WriteHello(w io.Writer, hello *Hello) error {
	if len(hello.Name) == 0 || len(hello.Name) > MaxNameLength {
		return errors.Errorf("invalid worker name length: %d", len(hello.Name))
	}

	msg := make([]byte, 0, 4+2+len(hello.Name)+1)
	msg = binary.BigEndian.AppendUint32(msg, Magic)
	msg = binary.BigEndian.AppendUint16(msg, uint16(len(hello.Name)))
	msg = append(msg, hello.Name...)
	msg = append(msg, boolByte(hello.WantsCompression))

	_, err := w.Write(msg)
	return err
}

// ReadHello reads the worker's half of the handshake.
func ReadHello(r io.Reader) (*Hello, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read handshake header")
	}

	if magic := binary.BigEndian.Uint32(header[:4]); magic != Magic {
		return nil, errors.Wrapf(ErrBadMagic, "received 0x%08X", magic)
	}

	nameLength := int(binary.BigEndian.Uint16(header[4:]))
	if nameLength == 0 || nameLength > MaxNameLength {
		return nil, errors.Errorf("invalid worker name length: %d", nameLength)
	}

	body := make([]byte, nameLength+1)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "failed to read handshake body")
	}

	return &Hello{
		Name:             string(body[:nameLength]),
		WantsCompression: body[nameLength] != 0,
	}, nil
}

// WriteWelcome sends the master's reply to a Hello.
func WriteWelcome(w io.Writer, welcome *Welcome) error {
	status := byte(1)
	if welcome.Accepted {
		status = 0
	}

	_, err := w.Write([]byte{status, boolByte(welcome.Compression)})
	return err
}

// ReadWelcome reads the master's reply to a Hello.
//
// If the master rejected the worker, ReadWelcome returns ErrRejected.
func ReadWelcome(r io.Reader) (*Welcome, error) {
	var reply [2]byte
	if _, err := io.ReadFull(r, reply[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read handshake reply")
	}

	welcome := &Welcome{
		Accepted:    reply[0] == 0,
		Compression: reply[1] != 0,
	}

	if !welcome.Accepted {
		return welcome, ErrRejected
	}

	return welcome, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}

	return 0
}
