package capture

import (
	"bufio"
	"bytes"
	"io"
)

const (
	scanBufferSize = 512 * 1024
	maxFrameSize   = 10 * 1024 * 1024
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// splitJPEG is a bufio.SplitFunc yielding each SOI..EOI image from an MJPEG pipe.
// Bytes between images and a truncated trailing image are discarded.
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF that may begin the next marker.
		return max(0, len(data)-1), nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// newJPEGScanner scans concatenated JPEG images from r.
func newJPEGScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, scanBufferSize), maxFrameSize)
	sc.Split(splitJPEG)
	return sc
}
