package nem12

// streaming.go wraps raw upload streams so the CSV layer only ever sees
// clean UTF-8 without a byte-order mark, while tracking how far into the
// file reading has progressed.
//
// NEM12 exports usually come out of Windows tooling, so the wrappers deal
// with the usual artifacts up front:
//
//   - bomSkippingReader drops a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - utf8SanitizingReader replaces invalid UTF-8 bytes with '?'
//   - countingReader counts consumed bytes for progress reporting
//
// NewBatchReader composes all three in that order. Everything works on
// O(buffer) memory; no wrapper ever buffers the whole file.

import (
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

// bomSkippingReader removes a UTF-8 BOM from the start of the stream if one
// is present. The first Read inspects the first three bytes; anything that
// is not a BOM is handed through untouched.
type bomSkippingReader struct {
	r       io.Reader
	started bool
	buf     []byte // head bytes held back when they were not a BOM
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{r: r}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if !b.started {
		b.started = true

		head := make([]byte, 3)
		n, err := io.ReadFull(b.r, head)
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if !(n == 3 && bytes.Equal(head, utf8BOM[:])) {
			b.buf = head[:n]
		}
		if len(b.buf) == 0 && err == io.EOF {
			return 0, io.EOF
		}
	}

	if len(b.buf) > 0 {
		n := copy(p, b.buf)
		b.buf = b.buf[n:]
		return n, nil
	}

	return b.r.Read(p)
}

// utf8SanitizingReader replaces invalid UTF-8 bytes with '?' on the fly.
// The replacement is a single byte, never the three-byte replacement rune,
// so sanitizing can be done in place without growing the buffer.
//
// A multi-byte sequence split across two Reads is held in pending until the
// rest arrives instead of being mangled at the boundary.
type utf8SanitizingReader struct {
	r       io.Reader
	pending []byte
}

func newUTF8SanitizingReader(r io.Reader) *utf8SanitizingReader {
	return &utf8SanitizingReader{
		r:       r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8SanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	return s.scrub(p[:n], err == io.EOF), err
}

// scrub rewrites data in place so it contains only valid UTF-8. A trailing
// sequence that may continue in the next read is moved to pending rather
// than replaced, unless the stream already hit EOF. Returns the usable
// length.
func (s *utf8SanitizingReader) scrub(data []byte, atEOF bool) int {
	// Fast path: most NEM12 files are pure ASCII.
	if allASCII(data) {
		return len(data)
	}

	if !atEOF {
		if tail := incompleteTail(data); tail > 0 {
			s.pending = append(s.pending, data[len(data)-tail:]...)
			data = data[:len(data)-tail]
		}
	}

	if utf8.Valid(data) {
		return len(data)
	}

	w := 0
	for r := 0; r < len(data); {
		ch, size := utf8.DecodeRune(data[r:])
		if ch == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// incompleteTail reports how many trailing bytes form the start of a
// multi-byte sequence whose remainder has not arrived yet.
func incompleteTail(data []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue // continuation byte, keep walking back
		}
		if b < utf8.RuneSelf {
			return 0
		}
		if seqLen(b) > i {
			return i
		}
		return 0
	}
	return 0
}

// seqLen gives the declared length of a UTF-8 sequence from its lead byte,
// or 0 for a continuation byte.
func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// countingReader tracks bytes consumed from the stream. Combined with the
// upload's declared size it drives byte-based progress percentages.
type countingReader struct {
	r         io.Reader
	bytesRead int64
}

func newCountingReader(r io.Reader) *countingReader {
	return &countingReader{r: r}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.bytesRead += int64(n)
	return n, err
}
