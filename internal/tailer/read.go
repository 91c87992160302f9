package tailer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// chunkSize is the step of the backward scan used for the initial window.
const chunkSize = 4096

// readInitial opens path and returns the initial text together with the
// offset where incremental reads resume.
func readInitial(path string, readFromStart bool, lines int) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return "", 0, fmt.Errorf("%s is a directory", path)
	}

	if readFromStart {
		b, err := io.ReadAll(f)
		if err != nil {
			return "", 0, fmt.Errorf("read: %w", err)
		}
		n := completeLen(b)
		return decode(b[:n], true), int64(n), nil
	}

	size, err := completeSize(f, info.Size())
	if err != nil {
		return "", 0, fmt.Errorf("read tail: %w", err)
	}
	text, err := lastLines(f, size, lines)
	if err != nil {
		return "", 0, fmt.Errorf("read tail: %w", err)
	}
	return text, size, nil
}

// completeSize shortens size so that it does not end inside a multibyte
// rune. The held-back bytes are read with the rest of the rune later.
func completeSize(r io.ReaderAt, size int64) (int64, error) {
	n := min(size, int64(utf8.UTFMax))
	if n == 0 {
		return size, nil
	}
	tail := make([]byte, n)
	read, err := r.ReadAt(tail, size-n)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	tail = tail[:read]
	return size - int64(len(tail)-completeLen(tail)), nil
}

// lastLines returns up to n lines from the end of the first size bytes of r.
// It walks backwards in chunkSize steps; the partial line at the front of each
// chunk is carried over and only becomes a line once the chunk before it
// shows where it starts. Empty lines at the very end are not counted.
func lastLines(r io.ReaderAt, size int64, n int) (string, error) {
	if size <= 0 || n <= 0 {
		return "", nil
	}

	var (
		reversed [][]byte
		leftover []byte
		pos      = size
		buf      = make([]byte, chunkSize)
	)

	for pos > 0 && len(reversed) < n {
		step := int64(chunkSize)
		if pos < step {
			step = pos
		}
		pos -= step

		read, err := r.ReadAt(buf[:step], pos)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		chunk := make([]byte, 0, read+len(leftover))
		chunk = append(chunk, buf[:read]...)
		chunk = append(chunk, leftover...)

		parts := bytes.Split(chunk, []byte{'\n'})
		leftover = parts[0]

		for i := len(parts) - 1; i > 0; i-- {
			line := bytes.TrimSuffix(parts[i], []byte{'\r'})
			if len(line) == 0 && len(reversed) == 0 {
				continue
			}
			reversed = append(reversed, line)
			if len(reversed) >= n {
				break
			}
		}
	}

	// The loop only ends short of n at the start of the file, where the
	// leftover is a complete first line.
	atStart := false
	if len(leftover) > 0 && len(reversed) < n {
		reversed = append(reversed, bytes.TrimSuffix(leftover, []byte{'\r'}))
		atStart = true
	}

	lines := make([][]byte, len(reversed))
	for i, line := range reversed {
		lines[len(reversed)-1-i] = line
	}
	return decode(bytes.Join(lines, []byte{'\n'}), atStart), nil
}

// decode converts file bytes to text. Invalid sequences become U+FFFD. A
// byte-order mark is only honored when the bytes start at offset zero.
func decode(b []byte, atStart bool) string {
	if len(b) == 0 {
		return ""
	}
	var dec *encoding.Decoder
	if atStart {
		dec = unicode.UTF8BOM.NewDecoder()
	} else {
		dec = unicode.UTF8.NewDecoder()
	}
	out, _, err := transform.Bytes(dec, b)
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return string(out)
}

// completeLen returns the length of b without a trailing, incomplete UTF-8
// sequence.
func completeLen(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
