package process

import (
	"bytes"
	"io"
	"os"
)

// TailBytes is how much of the end of a log file Tail reads.
const TailBytes = 50 * 1024

// Tail returns the lines in the last TailBytes of path, newline terminators
// kept. When the window starts mid-file the first, partial line is dropped.
func Tail(path string) ([]string, error) {
	// #nosec G304 -- path built from validated names
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	partial := false
	if fi.Size() > TailBytes {
		if _, err := f.Seek(-TailBytes, io.SeekEnd); err != nil {
			return nil, err
		}
		partial = true
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	lines := splitLines(b)
	if partial && len(lines) > 0 {
		lines = lines[1:]
	}
	return lines, nil
}

func splitLines(b []byte) []string {
	lines := make([]string, 0, bytes.Count(b, []byte{'\n'})+1)
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			lines = append(lines, string(b))
			break
		}
		lines = append(lines, string(b[:i+1]))
		b = b[i+1:]
	}
	return lines
}
