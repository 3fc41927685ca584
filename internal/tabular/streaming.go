package tabular

// streaming.go provides the io.Reader wrappers that sit in front of the CSV
// tokenizer. None of them buffer the whole file:
//
//   - bomSkippingReader drops a leading UTF-8 BOM written by spreadsheet tools
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?' (opt-in)
//   - CountingReader tracks bytes read and enforces the size limit
//
// wrapReader applies them in the order the parser needs.

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"unicode/utf8"
)

// ErrFileTooLarge is returned once more than the configured number of bytes
// has been read.
var ErrFileTooLarge = errors.New("file too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkippingReader strips the UTF-8 byte order mark if the stream starts
// with one.
type bomSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{br: bufio.NewReader(r)}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		head, err := r.br.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			if _, err := r.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return r.br.Read(p)
}

// utf8Sanitizer rewrites invalid UTF-8 bytes as '?' on the fly. A multi-byte
// sequence split across two reads is held back until the next call.
type utf8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[offset:]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if isASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes ready to
// hand to the caller. Unless atEOF, an incomplete trailing sequence is moved
// to pending.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(data[read:]) {
				s.pending = append(s.pending, data[read:]...)
				return write
			}
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// CountingReader tracks bytes read and fails with ErrFileTooLarge once Limit
// is exceeded. A zero Limit disables the check.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Limit     int64
}

// NewCountingReader wraps r with byte counting and an optional limit.
func NewCountingReader(r io.Reader, limit int64) *CountingReader {
	return &CountingReader{reader: r, Limit: limit}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.BytesRead += int64(n)
	if c.Limit > 0 && c.BytesRead > c.Limit {
		return n, ErrFileTooLarge
	}
	return n, err
}

// wrapReader applies counting first so the limit applies to raw bytes, then
// BOM removal, then optional sanitization.
func wrapReader(r io.Reader, opts ParseOptions) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r, opts.MaxBytes)
	var out io.Reader = newBOMSkippingReader(counter)
	if opts.SanitizeUTF8 {
		out = newUTF8Sanitizer(out)
	}
	return out, counter
}
