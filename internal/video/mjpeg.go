package video

import (
	"bufio"
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
)

// JPEG stream markers.
const (
	markerPrefix = 0xff
	markerSOI    = 0xd8 // start of image
	markerEOI    = 0xd9 // end of image
)

// maxFrameBytes bounds a single encoded frame so a corrupt stream cannot
// grow the scan buffer without limit.
const maxFrameBytes = 8 << 20

// mjpegScanner splits a raw MJPEG byte stream (concatenated JPEG images)
// into individual frames. It tolerates inter-frame padding and garbage by
// scanning forward to the next SOI marker.
type mjpegScanner struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func newMJPEGScanner(r io.Reader) *mjpegScanner {
	return &mjpegScanner{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the raw bytes of the next JPEG image in the stream.
// Returns io.EOF when the stream is exhausted.
func (s *mjpegScanner) Next() ([]byte, error) {
	if err := s.seekSOI(); err != nil {
		return nil, err
	}

	s.buf.Reset()
	s.buf.WriteByte(markerPrefix)
	s.buf.WriteByte(markerSOI)

	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		s.buf.WriteByte(b)
		if s.buf.Len() > maxFrameBytes {
			return nil, fmt.Errorf("video: frame exceeds %d bytes", maxFrameBytes)
		}
		if prev == markerPrefix && b == markerEOI {
			out := make([]byte, s.buf.Len())
			copy(out, s.buf.Bytes())
			return out, nil
		}
		prev = b
	}
}

// seekSOI discards bytes until the next SOI marker pair.
func (s *mjpegScanner) seekSOI() error {
	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == markerPrefix && b == markerSOI {
			return nil
		}
		prev = b
	}
}

// decodeJPEG decodes one frame's bytes into an image.
func decodeJPEG(data []byte) (frame Frame, err error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("video: jpeg decode: %w", err)
	}
	frame.Image = img
	return frame, nil
}
