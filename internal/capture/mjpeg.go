package capture

import "bytes"

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// scanJPEG is a bufio.SplitFunc yielding complete JPEG images from an MJPEG
// byte stream such as ffmpeg's image2pipe output. Bytes outside an image
// are discarded.
func scanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xff that may begin the next marker.
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end += start + len(jpegSOI) + len(jpegEOI)
	return end, data[start:end], nil
}
