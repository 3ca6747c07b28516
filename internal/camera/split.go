package camera

import "bytes"

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// SplitJPEG is a bufio.SplitFunc that yields complete JPEG images from an MJPEG pipe.
// Bytes before a start-of-image marker are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		// keep a trailing 0xFF, it may be the first half of a marker
		if n := len(data); n > 1 {
			return n - 1, nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
