package nem12

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "file with BOM",
			input: append([]byte{0xEF, 0xBB, 0xBF}, []byte("200,NMI123")...),
			want:  "200,NMI123",
		},
		{
			name:  "file without BOM",
			input: []byte("200,NMI123"),
			want:  "200,NMI123",
		},
		{
			name:  "empty file",
			input: []byte{},
			want:  "",
		},
		{
			name:  "only BOM",
			input: []byte{0xEF, 0xBB, 0xBF},
			want:  "",
		},
		{
			name:  "partial BOM is real data",
			input: []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			want:  string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:  "input shorter than a BOM",
			input: []byte("ab"),
			want:  "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newBOMSkippingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", string(got), tt.want)
			}
		})
	}
}

func TestUTF8SanitizingReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "plain ASCII untouched",
			input: []byte("200,NMI123,30"),
			want:  "200,NMI123,30",
		},
		{
			name:  "valid multibyte untouched",
			input: []byte("zählpunkt,10.5"),
			want:  "zählpunkt,10.5",
		},
		{
			name:  "invalid byte replaced",
			input: []byte{'h', 'e', 0x80, 'l', 'o'},
			want:  "he?lo",
		},
		{
			name:  "empty input",
			input: []byte{},
			want:  "",
		},
		{
			name:  "truncated sequence at end of stream",
			input: []byte{'a', 'b', 0xC3},
			want:  "ab?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newUTF8SanitizingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", string(got), tt.want)
			}
		})
	}
}

// A multi-byte rune split across Read calls must survive intact instead of
// being replaced at the boundary.
func TestUTF8SanitizingReaderSplitSequence(t *testing.T) {
	const input = "zähler" // ä is two bytes

	r := newUTF8SanitizingReader(iotest.OneByteReader(strings.NewReader(input)))
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != input {
		t.Errorf("got %q, want %q", string(got), input)
	}
}

func TestCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	r := newCountingReader(strings.NewReader(input))

	buf := make([]byte, 100)
	total := 0
	for {
		n, err := r.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if total != len(input) {
		t.Errorf("total read = %d, want %d", total, len(input))
	}
	if r.bytesRead != int64(len(input)) {
		t.Errorf("bytesRead = %d, want %d", r.bytesRead, len(input))
	}
}

func TestStreamingComposition(t *testing.T) {
	// BOM followed by an invalid byte: the BOM is stripped and the byte
	// replaced, in that order.
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'h', 'e', 0x80, 'l', 'o'}...)

	counting := newCountingReader(newUTF8SanitizingReader(newBOMSkippingReader(bytes.NewReader(input))))
	got, err := io.ReadAll(counting)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(got) != "he?lo" {
		t.Errorf("got %q, want %q", string(got), "he?lo")
	}
	if counting.bytesRead == 0 {
		t.Error("bytesRead should be > 0")
	}
}
