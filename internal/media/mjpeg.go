package media

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
)

// JPEG markers needed to delimit frames in a Motion-JPEG stream.
const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
	markerSOS    = 0xDA
	markerTEM    = 0x01
	markerRST0   = 0xD0
	markerRST7   = 0xD7
)

// MJPEGReader reads concatenated JPEG frames.
type MJPEGReader struct {
	br     *bufio.Reader
	closer io.Closer
	frames int
	err    error
}

// NewMJPEGReader reads frames from r. Close closes r when it is an
// io.Closer.
func NewMJPEGReader(r io.Reader) *MJPEGReader {
	mr := &MJPEGReader{br: bufio.NewReaderSize(r, 64<<10)}
	if c, ok := r.(io.Closer); ok {
		mr.closer = c
	}
	return mr
}

// OpenMJPEG opens a Motion-JPEG file.
func OpenMJPEG(path string) (*MJPEGReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewMJPEGReader(f), nil
}

// Frames returns how many frames have been decoded so far.
func (m *MJPEGReader) Frames() int { return m.frames }

// Next decodes the next frame.
func (m *MJPEGReader) Next() (image.Image, error) {
	if m.err != nil {
		return nil, m.err
	}
	raw, err := readJPEGFrame(m.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			m.err = io.EOF
		} else {
			m.err = fmt.Errorf("%w: frame %d: %v", ErrCorruptFrame, m.frames+1, err)
		}
		return nil, m.err
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		m.err = fmt.Errorf("%w: frame %d: %v", ErrCorruptFrame, m.frames+1, err)
		return nil, m.err
	}
	m.frames++
	return img, nil
}

// Close releases the underlying reader.
func (m *MJPEGReader) Close() error {
	if m.closer == nil {
		return nil
	}
	c := m.closer
	m.closer = nil
	return c.Close()
}

// readJPEGFrame returns the bytes of one SOI..EOI frame. It returns io.EOF
// only when the stream ends cleanly between frames.
func readJPEGFrame(br *bufio.Reader) ([]byte, error) {
	first, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	second, err := br.ReadByte()
	if err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	if first != markerPrefix || second != markerSOI {
		return nil, fmt.Errorf("missing start-of-image marker, found %#02x %#02x", first, second)
	}

	buf := []byte{markerPrefix, markerSOI}
	marker, err := readMarker(br)
	for {
		if err != nil {
			return nil, unexpected(err)
		}
		buf = append(buf, markerPrefix, marker)

		switch {
		case marker == markerEOI:
			return buf, nil
		case marker == markerTEM, marker >= markerRST0 && marker <= markerRST7:
			marker, err = readMarker(br)
			continue
		}

		var segment []byte
		segment, err = readSegment(br)
		if err != nil {
			return nil, unexpected(err)
		}
		buf = append(buf, segment...)

		if marker == markerSOS {
			buf, marker, err = readEntropy(br, buf)
			continue
		}
		marker, err = readMarker(br)
	}
}

// readMarker consumes 0xFF, any fill bytes, and returns the marker code.
func readMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != markerPrefix {
		return 0, fmt.Errorf("expected marker, found %#02x", b)
	}
	for b == markerPrefix {
		if b, err = br.ReadByte(); err != nil {
			return 0, err
		}
	}
	if b == 0x00 {
		return 0, errors.New("stuffed zero where a marker was expected")
	}
	return b, nil
}

// readSegment reads a length-prefixed marker segment, length bytes included.
func readSegment(br *bufio.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, err
	}
	n := int(hdr[0])<<8 | int(hdr[1])
	if n < 2 {
		return nil, fmt.Errorf("invalid segment length %d", n)
	}
	seg := make([]byte, n)
	copy(seg, hdr[:])
	if _, err := io.ReadFull(br, seg[2:]); err != nil {
		return nil, err
	}
	return seg, nil
}

// readEntropy copies entropy-coded scan data into buf until the next real
// marker and returns that marker.
func readEntropy(br *bufio.Reader, buf []byte) ([]byte, byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return buf, 0, err
		}
		if b != markerPrefix {
			buf = append(buf, b)
			continue
		}
		next, err := br.ReadByte()
		if err != nil {
			return buf, 0, err
		}
		for next == markerPrefix {
			if next, err = br.ReadByte(); err != nil {
				return buf, 0, err
			}
		}
		if next == 0x00 || (next >= markerRST0 && next <= markerRST7) {
			buf = append(buf, markerPrefix, next)
			continue
		}
		return buf, next, nil
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// MJPEGWriter writes frames as concatenated baseline JPEGs.
type MJPEGWriter struct {
	bw      *bufio.Writer
	closer  io.Closer
	quality int
	frames  int
}

// NewMJPEGWriter writes frames to w. Close closes w when it is an
// io.Closer.
func NewMJPEGWriter(w io.Writer, quality int) *MJPEGWriter {
	mw := &MJPEGWriter{bw: bufio.NewWriterSize(w, 64<<10), quality: quality}
	if c, ok := w.(io.Closer); ok {
		mw.closer = c
	}
	return mw
}

// CreateMJPEG creates or truncates a Motion-JPEG file. The parent directory
// must exist.
func CreateMJPEG(path string, opts FrameOptions) (*MJPEGWriter, error) {
	opts = opts.withDefaults()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return NewMJPEGWriter(f, opts.Quality), nil
}

// Frames returns how many frames have been written.
func (m *MJPEGWriter) Frames() int { return m.frames }

// WriteFrame encodes one frame.
func (m *MJPEGWriter) WriteFrame(img image.Image) error {
	if err := jpeg.Encode(m.bw, img, &jpeg.Options{Quality: m.quality}); err != nil {
		return fmt.Errorf("encode frame %d: %w", m.frames+1, err)
	}
	m.frames++
	return nil
}

// Close flushes buffered frames and closes the destination.
func (m *MJPEGWriter) Close() error {
	err := m.bw.Flush()
	if m.closer != nil {
		if cerr := m.closer.Close(); err == nil {
			err = cerr
		}
		m.closer = nil
	}
	return err
}
