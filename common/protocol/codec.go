package protocol

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/pkg/errors"
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds the maximum permitted size")
	ErrUnknownKind   = errors.New("unknown job kind")
	ErrBadMagic      = errors.New("handshake did not begin with the expected magic number")
	ErrRejected      = errors.New("the master rejected the handshake")
)

// Encoder writes JobFrame and ResultFrame messages onto a stream.
//
// Every message is flushed through the (optional) compression layer as soon as it has been written, so that the
// peer can decode it without waiting for more data.
type Encoder struct {
	buf        *bufio.Writer
	compressor *s2.Writer
}

// NewEncoder creates an Encoder that writes to w. If compress is true, the stream is wrapped in s2 stream framing.
func NewEncoder(w io.Writer, compress bool) *Encoder {
	enc := &Encoder{}
	if compress {
		enc.compressor = s2.NewWriter(w, s2.WriterConcurrency(1))
		enc.buf = bufio.NewWriter(enc.compressor)
	} else {
		enc.buf = bufio.NewWriter(w)
	}

	return enc
}

// WriteJob encodes f and flushes it onto the stream.
func (e *Encoder) WriteJob(f *JobFrame) error {
	if !f.Kind.Valid() {
		return errors.Wrapf(ErrUnknownKind, "cannot encode job %s", f.ID)
	}
	if len(f.Blobs) != len(f.Subpopulations) {
		return errors.Errorf("job %s has %d blobs but %d subpopulations", f.ID, len(f.Blobs), len(f.Subpopulations))
	}
	if f.Kind == GroupedJob && len(f.UpdateFitness) != len(f.Blobs) {
		return errors.Errorf("grouped job %s has %d blobs but %d update flags", f.ID, len(f.Blobs), len(f.UpdateFitness))
	}

	e.putUint8(uint8(f.Kind))
	e.putString(f.ID)
	e.putUint32(uint32(len(f.Blobs)))
	for i, blob := range f.Blobs {
		e.putUint32(uint32(f.Subpopulations[i]))
		e.putBytes(blob)
	}

	if f.Kind == GroupedJob {
		e.putBool(f.CountVictoriesOnly)
		for _, update := range f.UpdateFitness {
			e.putBool(update)
		}
	}

	return e.flush()
}

// WriteResult encodes f and flushes it onto the stream.
func (e *Encoder) WriteResult(f *ResultFrame) error {
	e.putString(f.JobID)
	e.putUint32(uint32(len(f.Blobs)))
	for _, blob := range f.Blobs {
		e.putBytes(blob)
	}
	e.putBytes(f.RandomState)

	return e.flush()
}

func (e *Encoder) flush() error {
	if err := e.buf.Flush(); err != nil {
		return err
	}

	if e.compressor != nil {
		return e.compressor.Flush()
	}

	return nil
}

// bufio.Writer records the first error and returns it from Flush, so the put* helpers ignore write errors.

func (e *Encoder) putUint8(v uint8) {
	_ = e.buf.WriteByte(v)
}

func (e *Encoder) putBool(v bool) {
	if v {
		e.putUint8(1)
	} else {
		e.putUint8(0)
	}
}

func (e *Encoder) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, _ = e.buf.Write(b[:])
}

func (e *Encoder) putString(s string) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	_, _ = e.buf.Write(b[:])
	_, _ = e.buf.WriteString(s)
}

func (e *Encoder) putBytes(p []byte) {
	e.putUint32(uint32(len(p)))
	_, _ = e.buf.Write(p)
}

// Decoder reads JobFrame and ResultFrame messages from a stream.
type Decoder struct {
	buf *bufio.Reader
}

// NewDecoder creates a Decoder that reads from r. The compress flag must match the peer's Encoder.
func NewDecoder(r io.Reader, compress bool) *Decoder {
	if compress {
		return &Decoder{buf: bufio.NewReader(s2.NewReader(r))}
	}

	return &Decoder{buf: bufio.NewReader(r)}
}

// ReadJob blocks until the next JobFrame arrives.
//
// io.EOF is returned unwrapped if the stream ends cleanly between two frames.
func (d *Decoder) ReadJob() (*JobFrame, error) {
	kind, err := d.buf.ReadByte()
	if err != nil {
		return nil, err
	}

	f := &JobFrame{Kind: JobKind(kind)}
	if !f.Kind.Valid() {
		return nil, errors.Wrapf(ErrUnknownKind, "received kind %d", kind)
	}

	if f.ID, err = d.getString(); err != nil {
		return nil, unexpected(err)
	}

	count, err := d.getCount()
	if err != nil {
		return nil, err
	}

	f.Subpopulations = make([]int32, count)
	f.Blobs = make([][]byte, count)
	for i := 0; i < count; i++ {
		subpop, err := d.getUint32()
		if err != nil {
			return nil, unexpected(err)
		}
		f.Subpopulations[i] = int32(subpop)

		if f.Blobs[i], err = d.getBytes(); err != nil {
			return nil, err
		}
	}

	if f.Kind == GroupedJob {
		if f.CountVictoriesOnly, err = d.getBool(); err != nil {
			return nil, unexpected(err)
		}

		f.UpdateFitness = make([]bool, count)
		for i := 0; i < count; i++ {
			if f.UpdateFitness[i], err = d.getBool(); err != nil {
				return nil, unexpected(err)
			}
		}
	}

	return f, nil
}

// ReadResult blocks until the next ResultFrame arrives.
//
// io.EOF is returned unwrapped if the stream ends cleanly between two frames.
func (d *Decoder) ReadResult() (*ResultFrame, error) {
	if _, err := d.buf.Peek(1); err != nil {
		return nil, err
	}

	f := &ResultFrame{}

	var err error
	if f.JobID, err = d.getString(); err != nil {
		return nil, unexpected(err)
	}

	count, err := d.getCount()
	if err != nil {
		return nil, err
	}

	f.Blobs = make([][]byte, count)
	for i := 0; i < count; i++ {
		if f.Blobs[i], err = d.getBytes(); err != nil {
			return nil, err
		}
	}

	if f.RandomState, err = d.getBytes(); err != nil {
		return nil, err
	}
	if len(f.RandomState) == 0 {
		f.RandomState = nil
	}

	return f, nil
}

func (d *Decoder) getBool() (bool, error) {
	b, err := d.buf.ReadByte()
	if err != nil {
		return false, err
	}

	return b != 0, nil
}

func (d *Decoder) getUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(d.buf, b[:]); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b[:]), nil
}

func (d *Decoder) getCount() (int, error) {
	count, err := d.getUint32()
	if err != nil {
		return 0, unexpected(err)
	}

	if count > MaxIndividuals {
		return 0, errors.Wrapf(ErrFrameTooLarge, "frame declares %d individuals", count)
	}

	return int(count), nil
}

func (d *Decoder) getString() (string, error) {
	var b [2]byte
	if _, err := io.ReadFull(d.buf, b[:]); err != nil {
		return "", err
	}

	s := make([]byte, binary.BigEndian.Uint16(b[:]))
	if _, err := io.ReadFull(d.buf, s); err != nil {
		return "", err
	}

	return string(s), nil
}

func (d *Decoder) getBytes() ([]byte, error) {
	n, err := d.getUint32()
	if err != nil {
		return nil, unexpected(err)
	}

	if n > MaxBlobSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "frame declares a %d-byte payload", n)
	}

	p := make([]byte, n)
	if _, err := io.ReadFull(d.buf, p); err != nil {
		return nil, unexpected(err)
	}

	return p, nil
}

// unexpected converts a clean io.EOF in the middle of a frame into io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}
